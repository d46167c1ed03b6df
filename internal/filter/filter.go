// Package filter turns validated query parameters into the predicate the
// reading store evaluates.
package filter

import (
	"fmt"
	"strings"

	"CapIot.readings/internal/models"
)

// Predicate is the conjunction device AND type AND start AND end. An empty
// DeviceUUID matches every device; nil bounds impose no constraint.
type Predicate struct {
	DeviceUUID string
	Type       *models.SensorType
	Start      *int64
	End        *int64
}

// ForDevice builds the predicate of a per-device endpoint.
func ForDevice(deviceUUID string, q models.ReadingQuery) Predicate {
	return Predicate{
		DeviceUUID: deviceUUID,
		Type:       q.Type,
		Start:      q.Start,
		End:        q.End,
	}
}

// AllDevices builds the predicate of a cross-device endpoint.
func AllDevices(q models.ReadingQuery) Predicate {
	return ForDevice("", q)
}

// Matches evaluates the predicate against a single reading.
func (p Predicate) Matches(r models.Reading) bool {
	if p.DeviceUUID != "" && r.DeviceUUID != p.DeviceUUID {
		return false
	}
	if p.Type != nil && r.Type != *p.Type {
		return false
	}
	if p.Start != nil && r.DateCreated < *p.Start {
		return false
	}
	if p.End != nil && r.DateCreated > *p.End {
		return false
	}
	return true
}

// Unsatisfiable reports whether the time bounds exclude every timestamp.
func (p Predicate) Unsatisfiable() bool {
	return p.Start != nil && p.End != nil && *p.Start > *p.End
}

// Key renders the predicate as a stable string, used to key cached results.
func (p Predicate) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "device=%q", p.DeviceUUID)
	if p.Type != nil {
		fmt.Fprintf(&b, ",type=%s", *p.Type)
	}
	if p.Start != nil {
		fmt.Fprintf(&b, ",start=%d", *p.Start)
	}
	if p.End != nil {
		fmt.Fprintf(&b, ",end=%d", *p.End)
	}
	return b.String()
}
