package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store represents a shared cache interface used across the application.
// Implementations must surface backend failures instead of reporting a miss.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// SetJSON encodes value as JSON and stores it under key for ttl.
func SetJSON[T any](ctx context.Context, store Store, key string, value T, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return store.Set(ctx, key, payload, ttl)
}

// GetJSON loads the JSON value stored under key. The boolean is false when
// the key is absent or expired.
func GetJSON[T any](ctx context.Context, store Store, key string) (T, bool, error) {
	var value T

	payload, found, err := store.Get(ctx, key)
	if err != nil || !found {
		return value, false, err
	}
	if err := json.Unmarshal(payload, &value); err != nil {
		return value, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return value, true, nil
}
