package cache

import (
	"context"
	"time"
)

// BytesCache: минимальный kv-кэш; промах возвращается как (nil, false, nil).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
