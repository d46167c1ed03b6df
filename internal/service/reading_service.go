package service

import (
	"context"
	"fmt"

	"CapIot.readings/internal/aggregate"
	"CapIot.readings/internal/cache"
	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
	"CapIot.readings/internal/observability"
	"CapIot.readings/internal/repository"
	"go.uber.org/zap"
)

// ReadingService handles the business logic for storing and aggregating
// sensor readings. Every method that touches the store does so inside one
// store session.
type ReadingService struct {
	store   repository.Store
	cache   cache.Cache
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewReadingService creates a new ReadingService. A nil cache disables
// result caching; nil metrics disable instrumentation.
func NewReadingService(store repository.Store, c cache.Cache, metrics *observability.Metrics, logger *zap.Logger) *ReadingService {
	if c == nil {
		c = cache.Noop{}
	}
	return &ReadingService{
		store:   store,
		cache:   c,
		metrics: metrics,
		logger:  logger,
	}
}

// Record stores a validated reading for device and returns it with its ID.
func (s *ReadingService) Record(ctx context.Context, device string, nr models.NewReading) (models.Reading, error) {
	var stored models.Reading
	err := s.store.WithSession(ctx, func(sess repository.Session) error {
		var err error
		stored, err = sess.Insert(ctx, models.Reading{
			DeviceUUID:  device,
			Type:        nr.Type,
			Value:       nr.Value,
			DateCreated: nr.DateCreated,
		})
		return err
	})
	if err != nil {
		return models.Reading{}, err
	}

	s.metrics.ReadingWritten(string(stored.Type))
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate aggregate cache", zap.Error(err))
	}
	s.logger.Debug("reading stored",
		zap.Uint64("id", stored.ID),
		zap.String("device_uuid", stored.DeviceUUID),
		zap.String("type", string(stored.Type)),
	)
	return stored, nil
}

// List returns the readings matching p in store order. The result is never nil.
func (s *ReadingService) List(ctx context.Context, p filter.Predicate) ([]models.Reading, error) {
	readings, err := s.query(ctx, p)
	if err != nil {
		return nil, err
	}
	if readings == nil {
		readings = []models.Reading{}
	}
	return readings, nil
}

func (s *ReadingService) Min(ctx context.Context, p filter.Predicate) (models.Reading, bool, error) {
	return cached(ctx, s, "min", p, func(readings []models.Reading) (models.Reading, bool, error) {
		r, ok := aggregate.Min(readings)
		return r, ok, nil
	})
}

func (s *ReadingService) Max(ctx context.Context, p filter.Predicate) (models.Reading, bool, error) {
	return cached(ctx, s, "max", p, func(readings []models.Reading) (models.Reading, bool, error) {
		r, ok := aggregate.Max(readings)
		return r, ok, nil
	})
}

func (s *ReadingService) Mean(ctx context.Context, p filter.Predicate) (models.MeanValue, bool, error) {
	return cached(ctx, s, "mean", p, func(readings []models.Reading) (models.MeanValue, bool, error) {
		mean, ok := aggregate.Mean(readings)
		return models.MeanValue{Value: mean}, ok, nil
	})
}

func (s *ReadingService) Median(ctx context.Context, p filter.Predicate) (models.Reading, bool, error) {
	return cached(ctx, s, "median", p, aggregate.Median)
}

func (s *ReadingService) Quartiles(ctx context.Context, p filter.Predicate) (models.Quartiles, bool, error) {
	return cached(ctx, s, "quartiles", p, aggregate.Quartiles)
}

// Summary returns one summary per device with readings matching p.
func (s *ReadingService) Summary(ctx context.Context, p filter.Predicate) ([]models.DeviceSummary, error) {
	summaries, _, err := cached(ctx, s, "summary", p, func(readings []models.Reading) ([]models.DeviceSummary, bool, error) {
		out, err := aggregate.Summarize(readings)
		return out, true, err
	})
	return summaries, err
}

// query loads the readings matching p and checks the store honored p.
func (s *ReadingService) query(ctx context.Context, p filter.Predicate) ([]models.Reading, error) {
	if p.Unsatisfiable() {
		return nil, nil
	}
	var readings []models.Reading
	err := s.store.WithSession(ctx, func(sess repository.Session) error {
		var err error
		readings, err = sess.QueryAll(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := aggregate.Verify(p, readings); err != nil {
		return nil, err
	}
	return readings, nil
}

type entry[T any] struct {
	Found bool `json:"found"`
	Value T    `json:"value"`
}

// cached serves op over p from the result cache, computing and storing it on
// a miss. Cache failures are logged and the store is used instead.
func cached[T any](ctx context.Context, s *ReadingService, op string, p filter.Predicate, compute func([]models.Reading) (T, bool, error)) (T, bool, error) {
	var hit entry[T]
	key, ok, err := s.cache.Lookup(ctx, op, p.Key(), &hit)
	switch {
	case err != nil:
		s.metrics.CacheError()
		s.logger.Warn("aggregate cache lookup failed", zap.String("op", op), zap.Error(err))
		key = ""
	case ok:
		s.metrics.CacheHit()
		return hit.Value, hit.Found, nil
	case key != "":
		s.metrics.CacheMiss()
	}

	var zero T
	readings, err := s.query(ctx, p)
	if err != nil {
		return zero, false, err
	}
	value, found, err := compute(readings)
	if err != nil {
		return zero, false, fmt.Errorf("computing %s: %w", op, err)
	}
	if err := s.cache.Store(ctx, key, entry[T]{Found: found, Value: value}); err != nil {
		s.logger.Warn("aggregate cache store failed", zap.String("op", op), zap.Error(err))
	}
	return value, found, nil
}

// Ping reports whether the store is reachable.
func (s *ReadingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
