// Package kv defines a narrow key-value persistence interface and its
// implementations. The interface is deliberately small (string values,
// member sets, per-key expiry) so the backing store can be swapped for a
// transactional one without touching callers.
package kv

import (
	"context"
	"time"
)

// Store is the interface for all key-value operations.
//
// Get reports a miss with found=false, never an error. Delete and
// RemoveFromSet are no-ops on missing keys/members. Expire sets a
// time-to-live on an existing key; an expired key behaves exactly like a
// missing one.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	AddToSet(ctx context.Context, set, member string) error
	RemoveFromSet(ctx context.Context, set, member string) error
	SetMembers(ctx context.Context, set string) ([]string, error)

	Close() error
}
