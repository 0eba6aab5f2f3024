package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"

	"github.com/qs3c/lease_go_server/internal/model"
)

const qualityKeyPrefix = "analysis:quality:"

// AssessmentCache 同一份文本在多个问题之间复用质量评估
type AssessmentCache interface {
	Get(ctx context.Context, text string) (*model.Quality, bool)
	Set(ctx context.Context, text string, q model.Quality) error
}

// RedisAssessmentCache 以文本 sha256 为键缓存质量评估
type RedisAssessmentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAssessmentCache(client *redis.Client, ttl time.Duration) *RedisAssessmentCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisAssessmentCache{client: client, ttl: ttl}
}

func QualityKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return qualityKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *RedisAssessmentCache) Get(ctx context.Context, text string) (*model.Quality, bool) {
	data, err := c.client.Get(ctx, QualityKey(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var q model.Quality
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false
	}
	return &q, true
}

func (c *RedisAssessmentCache) Set(ctx context.Context, text string, q model.Quality) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "analysis: marshal quality")
	}
	if err := c.client.Set(ctx, QualityKey(text), data, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "analysis: cache quality")
	}
	return nil
}
