package store

import "context"

// KV is the narrow, fallible storage interface the overlay layer is built
// on. Every access may fail; callers degrade to "no saved state" rather than
// propagate a crash.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
