package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// QueueIndex is the rating-sorted search index over users currently in
// "searching". It only accelerates candidate discovery; the Postgres row is
// the claim authority, so a stale index hit is harmless (the conditional
// update simply misses).
type QueueIndex interface {
	Add(ctx context.Context, userID string, rating int) error
	Remove(ctx context.Context, userID string) error
	// InRange returns user ids with rating in [min, max], capped at limit.
	InRange(ctx context.Context, min, max int, limit int64) ([]string, error)
}

const queueIndexKey = "battle:queue:index"

// RedisQueueIndex keeps the index in a Redis sorted set scored by rating.
type RedisQueueIndex struct {
	client *redis.Client
}

func NewRedisQueueIndex(addr, password string, db int) (*RedisQueueIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisQueueIndex{client: client}, nil
}

func (i *RedisQueueIndex) Close() error {
	return i.client.Close()
}

func (i *RedisQueueIndex) Add(ctx context.Context, userID string, rating int) error {
	return i.client.ZAdd(ctx, queueIndexKey, &redis.Z{
		Score:  float64(rating),
		Member: userID,
	}).Err()
}

func (i *RedisQueueIndex) Remove(ctx context.Context, userID string) error {
	return i.client.ZRem(ctx, queueIndexKey, userID).Err()
}

func (i *RedisQueueIndex) InRange(ctx context.Context, min, max int, limit int64) ([]string, error) {
	return i.client.ZRangeByScore(ctx, queueIndexKey, &redis.ZRangeBy{
		Min:   fmt.Sprintf("%d", min),
		Max:   fmt.Sprintf("%d", max),
		Count: limit,
	}).Result()
}

// MemoryQueueIndex is the in-process fallback used when REDIS_ADDR is unset
// (single-instance deployments) and in tests.
type MemoryQueueIndex struct {
	mu      sync.Mutex
	ratings map[string]int
}

func NewMemoryQueueIndex() *MemoryQueueIndex {
	return &MemoryQueueIndex{ratings: make(map[string]int)}
}

func (i *MemoryQueueIndex) Add(_ context.Context, userID string, rating int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ratings[userID] = rating
	return nil
}

func (i *MemoryQueueIndex) Remove(_ context.Context, userID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.ratings, userID)
	return nil
}

func (i *MemoryQueueIndex) InRange(_ context.Context, min, max int, limit int64) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]string, 0, len(i.ratings))
	for id, r := range i.ratings {
		if r >= min && r <= max {
			ids = append(ids, id)
			if int64(len(ids)) >= limit {
				break
			}
		}
	}
	return ids, nil
}
