package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/ports"
)

// FilterStore keeps saved filter presets in Redis.
type FilterStore struct {
	client *redis.Client
	prefix string
}

var _ ports.FilterStore = (*FilterStore)(nil)

// NewFilterStore creates a store on an existing client. Keys are namespaced by prefix.
func NewFilterStore(client *redis.Client, prefix string) *FilterStore {
	return &FilterStore{client: client, prefix: prefix}
}

func (s *FilterStore) key(k string) string {
	return s.prefix + k
}

// Get returns the stored value or apperrors.ErrNotFound.
func (s *FilterStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value without expiry.
func (s *FilterStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
