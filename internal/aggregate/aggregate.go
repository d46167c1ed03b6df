// Package aggregate reduces filtered readings to the statistics served by the
// API. Every function is pure over its input; ties are always broken by the
// lowest reading ID (the earliest in store order), so identical input yields
// identical output regardless of slice order.
package aggregate

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
)

// ErrInvariantViolation marks a result that contradicts what the store or a
// previous step guaranteed. It maps to a 500.
var ErrInvariantViolation = errors.New("internal invariant violation")

// Slots is the number of normalized quartile slots.
const Slots = 4

// Tile is the representative of one NTILE(4) bucket: the bucket's maximum
// value and the reading that holds it. Bucket is 1-based.
type Tile struct {
	Bucket  int
	Reading models.Reading
}

// Verify checks that every reading satisfies p.
func Verify(p filter.Predicate, readings []models.Reading) error {
	for _, r := range readings {
		if !p.Matches(r) {
			return fmt.Errorf("%w: reading %d (device %q, type %q, date_created %d) does not match %s",
				ErrInvariantViolation, r.ID, r.DeviceUUID, r.Type, r.DateCreated, p.Key())
		}
	}
	return nil
}

// Min returns the reading with the smallest value.
func Min(readings []models.Reading) (models.Reading, bool) {
	return extreme(readings, func(a, b int) bool { return a < b })
}

// Max returns the reading with the largest value.
func Max(readings []models.Reading) (models.Reading, bool) {
	return extreme(readings, func(a, b int) bool { return a > b })
}

func extreme(readings []models.Reading, better func(a, b int) bool) (models.Reading, bool) {
	if len(readings) == 0 {
		return models.Reading{}, false
	}
	best := readings[0]
	for _, r := range readings[1:] {
		if better(r.Value, best.Value) || (r.Value == best.Value && r.ID < best.ID) {
			best = r
		}
	}
	return best, true
}

// Mean returns the arithmetic mean of the values rounded to two decimals,
// half away from zero. The rounding is done on integers so that x.xx5 means
// are never mis-rounded by binary floating point.
func Mean(readings []models.Reading) (float64, bool) {
	if len(readings) == 0 {
		return 0, false
	}
	var sum int64
	for _, r := range readings {
		sum += int64(r.Value)
	}
	return roundedMean(sum, int64(len(readings))), true
}

func roundedMean(sum, n int64) float64 {
	num, den := 200*sum, 2*n
	var hundredths int64
	if num >= 0 {
		hundredths = (num + n) / den
	} else {
		hundredths = -((-num + n) / den)
	}
	return float64(hundredths) / 100
}

// Tiles partitions the readings, ordered by value, into at most four buckets
// the way SQL NTILE(4) does: sizes differ by at most one and the earlier
// buckets take the remainder. Fewer than four readings give one bucket each.
func Tiles(readings []models.Reading) []Tile {
	if len(readings) == 0 {
		return nil
	}
	sorted := slices.Clone(readings)
	slices.SortFunc(sorted, func(a, b models.Reading) int {
		return cmp.Or(cmp.Compare(a.Value, b.Value), cmp.Compare(a.ID, b.ID))
	})

	n := len(sorted)
	base, extra := n/Slots, n%Slots
	tiles := make([]Tile, 0, Slots)
	offset := 0
	for i := 0; i < Slots; i++ {
		size := base
		if i < extra {
			size++
		}
		if size == 0 {
			continue
		}
		bucket := sorted[offset : offset+size]
		offset += size
		tiles = append(tiles, Tile{Bucket: i + 1, Reading: representative(bucket)})
	}
	return tiles
}

// representative picks the earliest reading holding the bucket's max value.
// The bucket is sorted by (value, id).
func representative(bucket []models.Reading) models.Reading {
	top := bucket[len(bucket)-1].Value
	i, _ := slices.BinarySearchFunc(bucket, top, func(r models.Reading, v int) int {
		return cmp.Compare(r.Value, v)
	})
	return bucket[i]
}

// slotLayout maps a count of bucket representatives to the representative
// shown in each of the four output slots.
var slotLayout = [Slots + 1][Slots]int{
	1: {0, 0, 0, 0},
	2: {0, 0, 1, 1},
	3: {0, 1, 2, 2},
	4: {0, 1, 2, 3},
}

// Normalize expands one to four bucket representatives into exactly four
// slots: [a] -> a a a a, [a b] -> a a b b, [a b c] -> a b c c, and four
// representatives are kept as they are.
func Normalize(tiles []Tile) ([Slots]Tile, error) {
	var out [Slots]Tile
	if len(tiles) == 0 || len(tiles) > Slots {
		return out, fmt.Errorf("%w: expected 1 to %d bucket representatives, got %d",
			ErrInvariantViolation, Slots, len(tiles))
	}
	for slot, src := range slotLayout[len(tiles)] {
		out[slot] = tiles[src]
	}
	return out, nil
}

// NormalizedSlots computes the tiles of readings and normalizes them. ok is
// false when readings is empty.
func NormalizedSlots(readings []models.Reading) (slots [Slots]Tile, ok bool, err error) {
	if len(readings) == 0 {
		return slots, false, nil
	}
	slots, err = Normalize(Tiles(readings))
	if err != nil {
		return slots, false, err
	}
	return slots, true, nil
}

// Median returns the reading in normalized slot 2.
func Median(readings []models.Reading) (models.Reading, bool, error) {
	slots, ok, err := NormalizedSlots(readings)
	if !ok || err != nil {
		return models.Reading{}, false, err
	}
	return slots[1].Reading, true, nil
}

// Quartiles returns the values in normalized slots 1 and 3.
func Quartiles(readings []models.Reading) (models.Quartiles, bool, error) {
	slots, ok, err := NormalizedSlots(readings)
	if !ok || err != nil {
		return models.Quartiles{}, false, err
	}
	return models.Quartiles{
		Quartile1: slots[0].Reading.Value,
		Quartile3: slots[2].Reading.Value,
	}, true, nil
}

// Summarize computes one DeviceSummary per device present in readings,
// ordered by each device's earliest reading. Devices without readings do
// not appear.
func Summarize(readings []models.Reading) ([]models.DeviceSummary, error) {
	type group struct {
		first    uint64
		readings []models.Reading
	}
	groups := map[string]*group{}
	for _, r := range readings {
		g, ok := groups[r.DeviceUUID]
		if !ok {
			g = &group{first: r.ID}
			groups[r.DeviceUUID] = g
		}
		g.first = min(g.first, r.ID)
		g.readings = append(g.readings, r)
	}

	devices := make([]string, 0, len(groups))
	for device := range groups {
		devices = append(devices, device)
	}
	slices.SortFunc(devices, func(a, b string) int {
		return cmp.Or(cmp.Compare(groups[a].first, groups[b].first), cmp.Compare(a, b))
	})

	out := make([]models.DeviceSummary, 0, len(devices))
	for _, device := range devices {
		s, err := summarizeDevice(device, groups[device].readings)
		if err != nil {
			return nil, fmt.Errorf("summarizing device %q: %w", device, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func summarizeDevice(device string, readings []models.Reading) (models.DeviceSummary, error) {
	lo, _ := Min(readings)
	hi, _ := Max(readings)
	mean, _ := Mean(readings)
	slots, ok, err := NormalizedSlots(readings)
	if err != nil {
		return models.DeviceSummary{}, err
	}
	if !ok {
		return models.DeviceSummary{}, fmt.Errorf("%w: device %q grouped with no readings", ErrInvariantViolation, device)
	}
	return models.DeviceSummary{
		DeviceUUID:       device,
		NumberOfReadings: len(readings),
		MinReadingValue:  lo.Value,
		MaxReadingValue:  hi.Value,
		MeanReadingValue: mean,
		MedianValue:      slots[1].Reading.Value,
		Quartile1Value:   slots[0].Reading.Value,
		Quartile3Value:   slots[2].Reading.Value,
	}, nil
}
