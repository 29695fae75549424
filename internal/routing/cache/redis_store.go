package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pipeline_routing_backend/internal/routing/valuation"
)

const scanBatchSize = 200

// RedisTotalsStore shares cached totals between API replicas.
type RedisTotalsStore struct {
	client *redis.Client
}

func NewRedisTotalsStore(client *redis.Client) *RedisTotalsStore {
	return &RedisTotalsStore{client: client}
}

func (s *RedisTotalsStore) Get(ctx context.Context, key string) (valuation.Breakdown, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return valuation.Breakdown{}, false, nil
	}
	if err != nil {
		return valuation.Breakdown{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var b valuation.Breakdown
	if err := json.Unmarshal(raw, &b); err != nil {
		return valuation.Breakdown{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return b, true, nil
}

func (s *RedisTotalsStore) Set(ctx context.Context, key string, b valuation.Breakdown, ttl time.Duration) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisTotalsStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// Clear removes every totals key. Keys outside the totals prefix are untouched.
func (s *RedisTotalsStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, totalsKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
