package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Store persists session records. Load must not return expired records.
type Store interface {
	Load(ctx context.Context, id string) (Data, error)
	Save(ctx context.Context, id string, data Data, expiresAt time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Incr adds one to the counter under key and returns the new value.
	// Concurrent calls never return the same value for a live counter. The
	// counter starts at zero and expires ttl after it is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int, error)
}
