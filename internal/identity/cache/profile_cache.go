package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanbanlab/kanban-client/internal/identity/domain"
)

const profileKeyPrefix = "kanban:profile:" // Key for a cached profile: kanban:profile:{uid}

// ProfileCache keeps profile documents in Redis so repeated session
// lookups avoid a document-store read. Misses and failures fall
// through to the repository; the cache is never authoritative.
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProfileCache(client *redis.Client, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, ttl: ttl}
}

// Get returns the cached profile, or (nil, nil) on a miss.
func (c *ProfileCache) Get(ctx context.Context, uid string) (*domain.Profile, error) {
	data, err := c.client.Get(ctx, c.key(uid)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached profile: %w", err)
	}

	var p domain.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return &p, nil
}

func (c *ProfileCache) Set(ctx context.Context, p *domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := c.client.Set(ctx, c.key(p.UID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry, e.g. after a lastLogin upsert.
func (c *ProfileCache) Invalidate(ctx context.Context, uid string) error {
	if err := c.client.Del(ctx, c.key(uid)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached profile: %w", err)
	}
	return nil
}

func (c *ProfileCache) key(uid string) string {
	return profileKeyPrefix + uid
}
