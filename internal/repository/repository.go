package repository

import (
	"context"
	"errors"
	"fmt"

	"CapIot.readings/internal/filter"
	"CapIot.readings/internal/models"
)

// ErrStorageUnavailable wraps every failure to reach or use the backing store.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Session is a scoped handle on the store. It is only valid inside the
// function passed to Store.WithSession.
type Session interface {
	// Insert appends r and returns it with the ID the store assigned.
	Insert(ctx context.Context, r models.Reading) (models.Reading, error)
	// QueryAll returns every reading matching p in ascending ID order.
	QueryAll(ctx context.Context, p filter.Predicate) ([]models.Reading, error)
}

// Store is the persistent collection of readings.
type Store interface {
	// WithSession acquires a session, runs fn with it and releases it on
	// every path, including when fn fails or panics.
	WithSession(ctx context.Context, fn func(Session) error) error
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
