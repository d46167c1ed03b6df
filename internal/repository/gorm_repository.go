package repository

import (
	"context"
	"time"

	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// readingRecord is the row layout of the readings table.
type readingRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	DeviceUUID  string `gorm:"column:device_uuid;not null;index:idx_readings_device_date,priority:1"`
	Type        string `gorm:"column:type;not null"`
	Value       int    `gorm:"column:value;not null"`
	DateCreated int64  `gorm:"column:date_created;not null;index:idx_readings_device_date,priority:2"`
}

func (readingRecord) TableName() string { return "readings" }

func (rec readingRecord) toModel() models.Reading {
	return models.Reading{
		ID:          rec.ID,
		DeviceUUID:  rec.DeviceUUID,
		Type:        models.SensorType(rec.Type),
		Value:       rec.Value,
		DateCreated: rec.DateCreated,
	}
}

// GormRepository stores readings in a SQL database through gorm. SQLite and
// PostgreSQL are both supported; the dialector decides which.
type GormRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenGorm connects with the given dialector, retrying until timeout, and
// migrates the readings table.
func OpenGorm(ctx context.Context, dialector gorm.Dialector, logger *zap.Logger, timeout time.Duration) (*GormRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var db *gorm.DB
	connectDb := func() error {
		var err error
		// pinged below so a failed attempt can close its pool
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger:               newGormLogger(logger.Sugar()),
			DisableAutomaticPing: true,
		})
		if err != nil {
			logger.Warn("database connection failed, retrying", zap.String("dialect", dialector.Name()), zap.Error(err))
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			logger.Warn("database ping failed, retrying", zap.String("dialect", dialector.Name()), zap.Error(err))
			_ = sqlDB.Close()
			return err
		}
		if dialector.Name() == "sqlite" {
			// SQLite has a single writer; one connection queues sessions in
			// the pool instead of failing them with "database is locked".
			sqlDB.SetMaxOpenConns(1)
		}
		return nil
	}
	if err := backoff.Retry(connectDb, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, unavailable("connecting to "+dialector.Name(), err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&readingRecord{}); err != nil {
		return nil, unavailable("migrating readings table", err)
	}
	logger.Info("connected to database", zap.String("dialect", dialector.Name()))
	return &GormRepository{db: db, logger: logger}, nil
}

func (r *GormRepository) WithSession(ctx context.Context, fn func(Session) error) error {
	acquired := false
	err := r.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		acquired = true
		return fn(&gormSession{db: tx})
	})
	if err != nil && !acquired {
		return unavailable("acquiring connection", err)
	}
	return err
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormSession struct {
	db *gorm.DB
}

func (s *gormSession) Insert(ctx context.Context, r models.Reading) (models.Reading, error) {
	rec := readingRecord{
		DeviceUUID:  r.DeviceUUID,
		Type:        string(r.Type),
		Value:       r.Value,
		DateCreated: r.DateCreated,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.Reading{}, unavailable("inserting reading", err)
	}
	return rec.toModel(), nil
}

func (s *gormSession) QueryAll(ctx context.Context, p filter.Predicate) ([]models.Reading, error) {
	q := s.db.WithContext(ctx).Model(&readingRecord{})
	if p.DeviceUUID != "" {
		q = q.Where("device_uuid = ?", p.DeviceUUID)
	}
	if p.Type != nil {
		q = q.Where("type = ?", string(*p.Type))
	}
	if p.Start != nil {
		q = q.Where("date_created >= ?", *p.Start)
	}
	if p.End != nil {
		q = q.Where("date_created <= ?", *p.End)
	}

	var records []readingRecord
	if err := q.Order("id ASC").Find(&records).Error; err != nil {
		return nil, unavailable("querying readings", err)
	}
	readings := make([]models.Reading, len(records))
	for i, rec := range records {
		readings[i] = rec.toModel()
	}
	return readings, nil
}
