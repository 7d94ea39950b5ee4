package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetJSON loads and decodes the value stored under key.
// Returns the value, a boolean indicating if the key was found, and any error.
func GetJSON[T any](ctx context.Context, kv KV, key string) (T, bool, error) {
	var zero T

	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, true, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key, replacing any previous value
func SetJSON(ctx context.Context, kv KV, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return kv.Set(ctx, key, data, ttl)
}

// TakeJSON reads key and deletes it, so the value can be consumed only once
func TakeJSON[T any](ctx context.Context, kv KV, key string) (T, bool, error) {
	v, found, err := GetJSON[T](ctx, kv, key)
	if !found {
		return v, false, err
	}
	if delErr := kv.Delete(ctx, key); delErr != nil && err == nil {
		err = fmt.Errorf("failed to delete %s: %w", key, delErr)
	}
	return v, found, err
}
