package repository

import (
	"context"
	"fmt"
	"strings"

	"CapIot.readings/internal/config"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

// NewStore opens the backend selected by cfg.StoreBackend.
func NewStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		store, err = OpenGorm(ctx, sqlite.Open(sqliteDSN(cfg.SQLitePath)), logger, cfg.StoreConnectTimeout)
	case config.BackendPostgres:
		store, err = OpenGorm(ctx, postgres.Open(cfg.Database.DSN()), logger, cfg.StoreConnectTimeout)
	case config.BackendInfluxDB:
		store, err = openInflux(ctx, cfg, logger)
	case config.BackendMemory:
		logger.Warn("using in-memory store, readings are lost on restart")
		store = NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// sqliteDSN makes writers from other processes wait for the lock and lets
// reads run beside a write.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

func openInflux(ctx context.Context, cfg config.Config, logger *zap.Logger) (*InfluxDBRepository, error) {
	repo, err := NewInfluxDBRepository(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, 1, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.StoreConnectTimeout)
	defer cancel()

	connect := func() error {
		if err := repo.Ping(ctx); err != nil {
			logger.Warn("InfluxDB not ready, retrying", zap.Error(err))
			return err
		}
		return repo.EnsureBucket(ctx)
	}
	if err := backoff.Retry(connect, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		repo.Close()
		return nil, err
	}
	logger.Info("connected to InfluxDB", zap.String("url", cfg.Influx.URL), zap.String("bucket", cfg.Influx.Bucket))
	return repo, nil
}
