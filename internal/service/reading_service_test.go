package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"CapIot.readings/internal/aggregate"
	"CapIot.readings/internal/cache"
	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
	"CapIot.readings/internal/observability"
	"CapIot.readings/internal/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

func ptr[T any](v T) *T { return &v }

const device = "test_device"

// brokenStore fails every session, as an unreachable database would.
type brokenStore struct{ sessions int }

func (b *brokenStore) WithSession(context.Context, func(repository.Session) error) error {
	b.sessions++
	return repository.ErrStorageUnavailable
}
func (b *brokenStore) Ping(context.Context) error { return repository.ErrStorageUnavailable }
func (b *brokenStore) Close() error               { return nil }

// leakyStore returns every reading regardless of the predicate.
type leakyStore struct{ *repository.MemoryRepository }

func (l leakyStore) WithSession(ctx context.Context, fn func(repository.Session) error) error {
	return l.MemoryRepository.WithSession(ctx, func(sess repository.Session) error {
		return fn(leakySession{sess})
	})
}

type leakySession struct{ repository.Session }

func (l leakySession) QueryAll(ctx context.Context, _ filter.Predicate) ([]models.Reading, error) {
	return l.Session.QueryAll(ctx, filter.AllDevices(models.ReadingQuery{}))
}

type ReadingServiceSuite struct {
	suite.Suite
	store   *repository.MemoryRepository
	redis   *miniredis.Miniredis
	service *ReadingService
	ctx     context.Context
}

func TestReadingServiceSuite(t *testing.T) {
	suite.Run(t, new(ReadingServiceSuite))
}

func (s *ReadingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repository.NewMemoryRepository()
	s.redis = miniredis.RunT(s.T())
	c, err := cache.Dial(s.ctx, s.redis.Addr(), "", 0, time.Minute)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	s.service = NewReadingService(s.store, c, observability.NewMetrics(prometheus.NewRegistry()), zaptest.NewLogger(s.T()))

	for _, r := range []struct {
		device string
		typ    models.SensorType
		value  int
		date   int64
	}{
		{device, models.SensorTemperature, 22, 5},
		{device, models.SensorTemperature, 50, 10},
		{device, models.SensorTemperature, 100, 20},
		{device, models.SensorTemperature, 10, 25},
		{"other_uuid", models.SensorTemperature, 22, 30},
		{device, models.SensorHumidity, 42, 40},
		{device, models.SensorHumidity, 23, 50},
	} {
		_, err := s.service.Record(s.ctx, r.device, models.NewReading{Type: r.typ, Value: r.value, DateCreated: r.date})
		s.Require().NoError(err)
	}
}

func (s *ReadingServiceSuite) temperature(start, end *int64) filter.Predicate {
	return filter.ForDevice(device, models.ReadingQuery{Type: ptr(models.SensorTemperature), Start: start, End: end})
}

func (s *ReadingServiceSuite) TestRecordReturnsStoredReading() {
	r, err := s.service.Record(s.ctx, "new_device", models.NewReading{Type: models.SensorHumidity, Value: 0, DateCreated: 7})
	s.Require().NoError(err)
	s.Equal(models.Reading{ID: 8, DeviceUUID: "new_device", Type: models.SensorHumidity, Value: 0, DateCreated: 7}, r)
}

func (s *ReadingServiceSuite) TestList() {
	all, err := s.service.List(s.ctx, filter.ForDevice(device, models.ReadingQuery{}))
	s.Require().NoError(err)
	s.Len(all, 6)

	temps, err := s.service.List(s.ctx, s.temperature(ptr[int64](10), ptr[int64](20)))
	s.Require().NoError(err)
	s.Require().Len(temps, 2)
	s.Equal(50, temps[0].Value)
	s.Equal(100, temps[1].Value)

	none, err := s.service.List(s.ctx, filter.ForDevice("unknown", models.ReadingQuery{}))
	s.Require().NoError(err)
	s.NotNil(none)
	s.Empty(none)
}

func (s *ReadingServiceSuite) TestMetrics() {
	lo, ok, err := s.service.Min(s.ctx, s.temperature(nil, nil))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(10, lo.Value)
	s.EqualValues(25, lo.DateCreated)

	hi, ok, err := s.service.Max(s.ctx, s.temperature(nil, nil))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(100, hi.Value)
	s.EqualValues(20, hi.DateCreated)

	mean, ok, err := s.service.Mean(s.ctx, s.temperature(nil, nil))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(45.5, mean.Value)

	median, ok, err := s.service.Median(s.ctx, s.temperature(nil, nil))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(22, median.Value)
	s.EqualValues(5, median.DateCreated)

	q, ok, err := s.service.Quartiles(s.ctx, s.temperature(ptr[int64](0), ptr[int64](100)))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(models.Quartiles{Quartile1: 10, Quartile3: 50}, q)
}

func (s *ReadingServiceSuite) TestEmptyResults() {
	_, ok, err := s.service.Min(s.ctx, s.temperature(ptr[int64](1000), nil))
	s.Require().NoError(err)
	s.False(ok)

	_, ok, err = s.service.Mean(s.ctx, filter.ForDevice("unknown", models.ReadingQuery{Type: ptr(models.SensorHumidity)}))
	s.Require().NoError(err)
	s.False(ok)

	_, ok, err = s.service.Quartiles(s.ctx, s.temperature(ptr[int64](20), ptr[int64](10)))
	s.Require().NoError(err)
	s.False(ok)

	summaries, err := s.service.Summary(s.ctx, filter.AllDevices(models.ReadingQuery{Start: ptr[int64](1000)}))
	s.Require().NoError(err)
	s.NotNil(summaries)
	s.Empty(summaries)
}

func (s *ReadingServiceSuite) TestSummary() {
	summaries, err := s.service.Summary(s.ctx, filter.AllDevices(models.ReadingQuery{Type: ptr(models.SensorTemperature)}))
	s.Require().NoError(err)
	s.Require().Len(summaries, 2)
	s.Equal(device, summaries[0].DeviceUUID)
	s.Equal(4, summaries[0].NumberOfReadings)
	s.Equal(45.5, summaries[0].MeanReadingValue)
	s.Equal("other_uuid", summaries[1].DeviceUUID)
}

func (s *ReadingServiceSuite) TestCachedResultIsReusedUntilNextWrite() {
	p := s.temperature(nil, nil)
	first, _, err := s.service.Min(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(10, first.Value)
	s.Len(s.redis.Keys(), 2) // generation + one entry

	// bypass the service so the cache is not invalidated
	err = s.store.WithSession(s.ctx, func(sess repository.Session) error {
		_, err := sess.Insert(s.ctx, models.Reading{DeviceUUID: device, Type: models.SensorTemperature, Value: 0, DateCreated: 1})
		return err
	})
	s.Require().NoError(err)
	cachedMin, _, err := s.service.Min(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(10, cachedMin.Value)

	_, err = s.service.Record(s.ctx, device, models.NewReading{Type: models.SensorTemperature, Value: 0, DateCreated: 2})
	s.Require().NoError(err)
	lo, _, err := s.service.Min(s.ctx, p)
	s.Require().NoError(err)
	s.Equal(0, lo.Value)
	s.EqualValues(1, lo.DateCreated)
}

func (s *ReadingServiceSuite) TestCacheOutageFallsBackToStore() {
	s.redis.Close()
	mean, ok, err := s.service.Mean(s.ctx, s.temperature(nil, nil))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(45.5, mean.Value)

	_, err = s.service.Record(s.ctx, device, models.NewReading{Type: models.SensorHumidity, Value: 1, DateCreated: 1})
	s.NoError(err)
}

func TestStorageUnavailable(t *testing.T) {
	store := &brokenStore{}
	svc := NewReadingService(store, nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.Record(ctx, device, models.NewReading{Type: models.SensorTemperature, Value: 1})
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

	_, _, err = svc.Median(ctx, filter.ForDevice(device, models.ReadingQuery{Type: ptr(models.SensorTemperature)}))
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

	_, err = svc.Summary(ctx, filter.AllDevices(models.ReadingQuery{}))
	assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	assert.Equal(t, 3, store.sessions)
}

func TestUnsatisfiableRangeSkipsStore(t *testing.T) {
	store := &brokenStore{}
	svc := NewReadingService(store, nil, nil, zaptest.NewLogger(t))

	readings, err := svc.List(context.Background(), filter.ForDevice(device, models.ReadingQuery{Start: ptr[int64](2), End: ptr[int64](1)}))
	require.NoError(t, err)
	assert.Empty(t, readings)
	assert.Zero(t, store.sessions)
}

func TestRowsOutsidePredicateAreRejected(t *testing.T) {
	store := leakyStore{repository.NewMemoryRepository()}
	svc := NewReadingService(store, nil, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := svc.Record(ctx, "intruder", models.NewReading{Type: models.SensorTemperature, Value: 1})
	require.NoError(t, err)

	_, _, err = svc.Max(ctx, filter.ForDevice(device, models.ReadingQuery{Type: ptr(models.SensorTemperature)}))
	assert.True(t, errors.Is(err, aggregate.ErrInvariantViolation))
}
