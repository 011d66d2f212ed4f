package port

import (
	"context"
	"time"
)

// Cache is the best-effort response cache consulted by the HTTP layer. A
// miss and an unavailable backend look the same to callers; nothing
// correctness-critical may live behind it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Clear removes every key under the given prefix and reports how many
	// were dropped.
	Clear(ctx context.Context, prefix string) int
}
