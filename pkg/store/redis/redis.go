// Package redis backs the cycle-state store with Redis, for running
// several daemons against one shared learning state.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quotalab/quotad/pkg/engine/cycle"
)

const keysSet = "quotad:cycle-keys"

// Client is the Redis command subset the store needs. *redis.Client
// satisfies it.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// StateStore implements store.CycleStateStore over Redis. Each state
// lives under its own key as a JSON value; a set indexes the keys so
// LoadAll needs no SCAN.
type StateStore struct {
	client Client
}

func NewStateStore(client Client) *StateStore {
	return &StateStore{client: client}
}

// record carries the key fields alongside the state so LoadAll never
// has to parse them back out of the Redis key.
type record struct {
	AccountID string      `json:"account_id"`
	Slot      cycle.Slot  `json:"slot"`
	State     cycle.State `json:"state"`
}

func makeKey(key cycle.Key) string {
	return fmt.Sprintf("quotad:cycle:%s:%s", key.AccountID, key.Slot)
}

func (s *StateStore) SaveAll(ctx context.Context, states map[cycle.Key]cycle.State) error {
	for key, state := range states {
		data, err := json.Marshal(record{AccountID: key.AccountID, Slot: key.Slot, State: state})
		if err != nil {
			return fmt.Errorf("failed to marshal state for %s/%s: %w", key.AccountID, key.Slot, err)
		}
		rkey := makeKey(key)
		if err := s.client.Set(ctx, rkey, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to SET %s: %w", rkey, err)
		}
		if err := s.client.SAdd(ctx, keysSet, rkey).Err(); err != nil {
			return fmt.Errorf("failed to SADD %s: %w", rkey, err)
		}
	}
	return nil
}

func (s *StateStore) LoadAll(ctx context.Context) (map[cycle.Key]cycle.State, error) {
	keys, err := s.client.SMembers(ctx, keysSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to SMEMBERS %s: %w", keysSet, err)
	}
	states := make(map[cycle.Key]cycle.State, len(keys))
	if len(keys) == 0 {
		return states, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to MGET cycle states: %w", err)
	}
	for _, val := range values {
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			// Corrupt values are skipped; the engine relearns.
			continue
		}
		states[cycle.Key{AccountID: rec.AccountID, Slot: rec.Slot}] = rec.State
	}
	return states, nil
}

// Close is a no-op: the Redis client is owned by the caller.
func (s *StateStore) Close() error { return nil }
