// Package cache provides a Redis-backed cache for the article listing,
// invalidated on every repository write.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"VoiceScribe/internal/config"
	"VoiceScribe/internal/domain"
	"VoiceScribe/internal/ports"
)

const listKey = "voicescribe:articles"

// ArticleCache caches the article listing in Redis. All operations are
// best-effort: cache failures are logged and treated as misses, never
// surfaced to callers.
type ArticleCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.ArticleCache = (*ArticleCache)(nil)

// New connects to Redis and verifies the connection with a PING.
func New(cfg config.RedisConfig, logger *slog.Logger) (*ArticleCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleCache{rdb: rdb, ttl: ttl, logger: logger}, nil
}

// Get returns the cached listing, or false on miss or error.
func (c *ArticleCache) Get(ctx context.Context) ([]domain.Article, bool) {
	raw, err := c.rdb.Get(ctx, listKey).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("article cache read failed", "error", err)
		}
		return nil, false
	}

	var articles []domain.Article
	if err := json.Unmarshal([]byte(raw), &articles); err != nil {
		c.logger.Warn("article cache decode failed", "error", err)
		return nil, false
	}
	return articles, true
}

// Set stores the listing with the configured TTL.
func (c *ArticleCache) Set(ctx context.Context, articles []domain.Article) {
	raw, err := json.Marshal(articles)
	if err != nil {
		c.logger.Warn("article cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, listKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("article cache write failed", "error", err)
	}
}

// Invalidate drops the cached listing.
func (c *ArticleCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, listKey).Err(); err != nil {
		c.logger.Warn("article cache invalidation failed", "error", err)
	}
}

// Close closes the underlying Redis connection.
func (c *ArticleCache) Close() error {
	return c.rdb.Close()
}
