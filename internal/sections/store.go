package sections

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-authz/internal/roles"
)

const accessHashKey = "sections:access"

// Store persists explicit per-role section sets.
type Store interface {
	Get(ctx context.Context, role roles.ID) ([]ID, bool, error)
	Set(ctx context.Context, role roles.ID, ids []ID) error
	All(ctx context.Context) (map[roles.ID][]ID, error)
}

// RedisStore keeps one JSON array per role in a single hash, so each role's
// set is replaced with one HSET.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the explicit set for role, if any.
func (s *RedisStore) Get(ctx context.Context, role roles.ID) ([]ID, bool, error) {
	raw, err := s.client.HGet(ctx, accessHashKey, string(role)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ids []ID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, err
	}
	return ids, true, nil
}

// Set replaces the explicit set for role.
func (s *RedisStore) Set(ctx context.Context, role roles.ID, ids []ID) error {
	if ids == nil {
		ids = []ID{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, accessHashKey, string(role), raw).Err()
}

// All returns every explicit entry.
func (s *RedisStore) All(ctx context.Context) (map[roles.ID][]ID, error) {
	entries, err := s.client.HGetAll(ctx, accessHashKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[roles.ID][]ID, len(entries))
	for role, raw := range entries {
		var ids []ID
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, err
		}
		out[roles.ID(role)] = ids
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)
