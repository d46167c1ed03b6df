package aggregate

import (
	"errors"
	"slices"
	"testing"

	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const device = "test_device"

func reading(id uint64, dev string, typ models.SensorType, value int, date int64) models.Reading {
	return models.Reading{ID: id, DeviceUUID: dev, Type: typ, Value: value, DateCreated: date}
}

// fixture mirrors the readings used by the HTTP tests.
func fixture() []models.Reading {
	return []models.Reading{
		reading(1, device, models.SensorTemperature, 22, 5),
		reading(2, device, models.SensorTemperature, 50, 10),
		reading(3, device, models.SensorTemperature, 100, 20),
		reading(4, device, models.SensorTemperature, 10, 25),
		reading(5, "other_uuid", models.SensorTemperature, 22, 30),
		reading(6, device, models.SensorHumidity, 42, 40),
		reading(7, device, models.SensorHumidity, 23, 50),
	}
}

func only(readings []models.Reading, dev string, typ models.SensorType, start, end int64) []models.Reading {
	p := filter.ForDevice(dev, models.ReadingQuery{Type: &typ, Start: &start, End: &end})
	var out []models.Reading
	for _, r := range readings {
		if p.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func values(tiles []Tile) []int {
	out := make([]int, len(tiles))
	for i, t := range tiles {
		out[i] = t.Reading.Value
	}
	return out
}

func TestMinMax(t *testing.T) {
	temps := only(fixture(), device, models.SensorTemperature, 0, 100)

	lo, ok := Min(temps)
	require.True(t, ok)
	assert.Equal(t, 10, lo.Value)
	assert.EqualValues(t, 25, lo.DateCreated)

	hi, ok := Max(temps)
	require.True(t, ok)
	assert.Equal(t, 100, hi.Value)
	assert.EqualValues(t, 20, hi.DateCreated)

	ranged := only(fixture(), device, models.SensorTemperature, 10, 20)
	lo, _ = Min(ranged)
	hi, _ = Max(ranged)
	assert.Equal(t, 50, lo.Value)
	assert.Equal(t, 100, hi.Value)

	_, ok = Min(nil)
	assert.False(t, ok)
	_, ok = Max([]models.Reading{})
	assert.False(t, ok)
}

func TestMinMaxTiesPickEarliestReading(t *testing.T) {
	readings := []models.Reading{
		reading(9, device, models.SensorHumidity, 5, 900),
		reading(3, device, models.SensorHumidity, 5, 300),
		reading(7, device, models.SensorHumidity, 80, 700),
		reading(4, device, models.SensorHumidity, 80, 400),
	}
	for i := 0; i < 3; i++ {
		lo, _ := Min(readings)
		hi, _ := Max(readings)
		assert.EqualValues(t, 3, lo.ID)
		assert.EqualValues(t, 4, hi.ID)
		slices.Reverse(readings)
	}
}

func TestMean(t *testing.T) {
	cases := []struct {
		name  string
		input []models.Reading
		want  float64
	}{
		{"temperature", only(fixture(), device, models.SensorTemperature, 0, 100), 45.5},
		{"humidity", only(fixture(), device, models.SensorHumidity, 0, 100), 32.5},
		{"temperature range", only(fixture(), device, models.SensorTemperature, 10, 20), 75},
		{"two thirds", []models.Reading{reading(1, device, models.SensorHumidity, 1, 0), reading(2, device, models.SensorHumidity, 1, 0), reading(3, device, models.SensorHumidity, 0, 0)}, 0.67},
		{"half rounds away from zero", []models.Reading{
			reading(1, device, models.SensorHumidity, 45, 0), reading(2, device, models.SensorHumidity, 45, 0),
			reading(3, device, models.SensorHumidity, 45, 0), reading(4, device, models.SensorHumidity, 45, 0),
			reading(5, device, models.SensorHumidity, 45, 0), reading(6, device, models.SensorHumidity, 45, 0),
			reading(7, device, models.SensorHumidity, 46, 0), reading(8, device, models.SensorHumidity, 45, 0),
		}, 45.13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Mean(tc.input)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, ok := Mean(nil)
	assert.False(t, ok)
}

func TestRoundedMean(t *testing.T) {
	assert.Equal(t, 0.01, roundedMean(1, 200))
	assert.Equal(t, 0.0, roundedMean(1, 201))
	assert.Equal(t, -0.01, roundedMean(-1, 200))
	assert.Equal(t, 33.33, roundedMean(100, 3))
	assert.Equal(t, 66.67, roundedMean(200, 3))
}

func TestTilesBucketSizes(t *testing.T) {
	seq := func(n int) []models.Reading {
		out := make([]models.Reading, n)
		for i := range out {
			// insert in descending value order to exercise the sort
			out[i] = reading(uint64(i+1), device, models.SensorTemperature, n-i, int64(i))
		}
		return out
	}
	cases := map[int][]int{
		1: {1},
		2: {1, 2},
		3: {1, 2, 3},
		4: {1, 2, 3, 4},
		5: {2, 3, 4, 5},
		6: {2, 4, 5, 6},
		7: {2, 4, 6, 7},
		8: {2, 4, 6, 8},
		9: {3, 5, 7, 9},
	}
	for n, want := range cases {
		tiles := Tiles(seq(n))
		assert.Equal(t, want, values(tiles), "n=%d", n)
		for i, tile := range tiles {
			assert.Equal(t, i+1, tile.Bucket, "n=%d", n)
		}
	}
	assert.Empty(t, Tiles(nil))
}

func TestTilesRepresentativeTies(t *testing.T) {
	readings := []models.Reading{
		reading(5, device, models.SensorTemperature, 7, 50),
		reading(2, device, models.SensorTemperature, 7, 20),
		reading(1, device, models.SensorTemperature, 7, 10),
		reading(4, device, models.SensorTemperature, 7, 40),
		reading(3, device, models.SensorTemperature, 7, 30),
	}
	tiles := Tiles(readings)
	require.Len(t, tiles, 4)
	// sorted by id within equal values: [1 2] [3] [4] [5]
	ids := []uint64{tiles[0].Reading.ID, tiles[1].Reading.ID, tiles[2].Reading.ID, tiles[3].Reading.ID}
	assert.Equal(t, []uint64{1, 3, 4, 5}, ids)
}

func TestNormalize(t *testing.T) {
	tile := func(bucket, value int, date int64) Tile {
		return Tile{Bucket: bucket, Reading: reading(uint64(bucket), device, models.SensorTemperature, value, date)}
	}
	a, b, c, d := tile(1, 10, 1), tile(2, 20, 2), tile(3, 30, 3), tile(4, 40, 4)

	cases := []struct {
		in   []Tile
		want [Slots]Tile
	}{
		{[]Tile{a}, [Slots]Tile{a, a, a, a}},
		{[]Tile{a, b}, [Slots]Tile{a, a, b, b}},
		{[]Tile{a, b, c}, [Slots]Tile{a, b, c, c}},
		{[]Tile{a, b, c, d}, [Slots]Tile{a, b, c, d}},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	single, err := Normalize([]Tile{tile(1, 55, 99)})
	require.NoError(t, err)
	for _, slot := range single {
		assert.Equal(t, 55, slot.Reading.Value)
		assert.EqualValues(t, 99, slot.Reading.DateCreated)
	}

	_, err = Normalize(nil)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
	_, err = Normalize([]Tile{a, b, c, d, a})
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestMedian(t *testing.T) {
	cases := []struct {
		name  string
		input []models.Reading
		value int
		date  int64
	}{
		// tiles [10] [22] [50] [100], slot 2 holds 22
		{"temperature", only(fixture(), device, models.SensorTemperature, 0, 100), 22, 5},
		// tiles [23] [42] -> 23 23 42 42
		{"humidity", only(fixture(), device, models.SensorHumidity, 0, 100), 23, 50},
		// tiles [10] [50] [100] -> 10 50 100 100
		{"temperature range", only(fixture(), device, models.SensorTemperature, 10, 25), 50, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok, err := Median(tc.input)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.value, got.Value)
			assert.Equal(t, tc.date, got.DateCreated)
			assert.Equal(t, device, got.DeviceUUID)
		})
	}

	_, ok, err := Median(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuartiles(t *testing.T) {
	got, ok, err := Quartiles(only(fixture(), device, models.SensorTemperature, 10, 20))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Quartiles{Quartile1: 50, Quartile3: 100}, got)

	got, ok, err = Quartiles(only(fixture(), device, models.SensorTemperature, 0, 100))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.Quartiles{Quartile1: 10, Quartile3: 50}, got)

	_, ok, err = Quartiles(only(fixture(), device, models.SensorTemperature, 1000, 2000))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummarize(t *testing.T) {
	got, err := Summarize(fixture())
	require.NoError(t, err)
	assert.Equal(t, []models.DeviceSummary{
		{
			DeviceUUID:       device,
			NumberOfReadings: 6,
			MinReadingValue:  10,
			MaxReadingValue:  100,
			MeanReadingValue: 41.17,
			// tiles [10 22] [23 42] [50] [100]
			MedianValue:    42,
			Quartile1Value: 22,
			Quartile3Value: 50,
		},
		{
			DeviceUUID:       "other_uuid",
			NumberOfReadings: 1,
			MinReadingValue:  22,
			MaxReadingValue:  22,
			MeanReadingValue: 22,
			MedianValue:      22,
			Quartile1Value:   22,
			Quartile3Value:   22,
		},
	}, got)
}

func TestSummarizeOrderIsIndependentOfInputOrder(t *testing.T) {
	readings := fixture()
	want, err := Summarize(readings)
	require.NoError(t, err)

	slices.Reverse(readings)
	got, err := Summarize(readings)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSummarizeOmitsAbsentDevices(t *testing.T) {
	got, err := Summarize(only(fixture(), "other_uuid", models.SensorTemperature, 0, 100))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "other_uuid", got[0].DeviceUUID)

	got, err = Summarize(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerify(t *testing.T) {
	temp := models.SensorTemperature
	p := filter.ForDevice(device, models.ReadingQuery{Type: &temp})

	assert.NoError(t, Verify(p, only(fixture(), device, models.SensorTemperature, 0, 100)))

	err := Verify(p, fixture())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}
