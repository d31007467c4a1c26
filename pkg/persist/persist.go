// Package persist defines the scoped key-value port used for local state:
// the locally created project list, the current-project pointer and each
// domain store's serialized snapshot.
//
// Implementations report failures as errors. Callers treat persistence as
// best-effort: a failed Load means "nothing persisted", a failed Save is logged.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when the key holds no value.
var ErrNotFound = errors.New("persist: key not found")

// Store is a minimal key-value store.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LoadJSON loads key and decodes it into v.
// A nil store behaves as an empty one.
func LoadJSON(ctx context.Context, s Store, key string, v any) error {
	if s == nil {
		return ErrNotFound
	}
	data, err := s.Load(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// SaveJSON encodes v and saves it under key. A nil store discards the value.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Save(ctx, key, data)
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
