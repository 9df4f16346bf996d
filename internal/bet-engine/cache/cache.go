package cache

import (
	"context"
	"time"
)

const DefaultTTL = 60 * time.Second

// Cache é um cache-aside com valores JSON e expiração por TTL.
// ttl <= 0 em Set usa o TTL padrão da instância.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

func UserKey(userID string) string { return "user:" + userID }

func PriceKey(asset string) string { return "price:" + asset }
