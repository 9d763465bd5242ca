// Package cache stores finalized answers for repeated identical queries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"interpharma-gateway/internal/models"
)

// Cache misses return (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*models.FinalAnswer, error)
	Set(ctx context.Context, key string, answer *models.FinalAnswer) error
}

// Key derives the cache key from everything that shapes the prompt.
func Key(persona models.Persona, q models.Query) string {
	h := sha256.New()
	for _, part := range []string{string(persona), string(q.Mode), q.Language, q.Report.Disease, q.Report.Region, q.Report.TimeRange, q.Text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return string(persona) + ":" + hex.EncodeToString(h.Sum(nil))
}

type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.FinalAnswer, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var answer models.FinalAnswer
	if err := json.Unmarshal(raw, &answer); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return nil, nil
	}
	return &answer, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, answer *models.FinalAnswer) error {
	stored := *answer
	stored.Cached = false
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// Noop never hits.
type Noop struct{}

func (Noop) Get(context.Context, string) (*models.FinalAnswer, error) { return nil, nil }
func (Noop) Set(context.Context, string, *models.FinalAnswer) error   { return nil }
