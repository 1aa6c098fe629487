package adapter

import (
	"context"
	"time"
)

// Locker provides short-lived mutual exclusion keyed by string.
type Locker interface {
	// TryLock returns a token to pass to Unlock, or domain.ErrBusy when the key stays held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
