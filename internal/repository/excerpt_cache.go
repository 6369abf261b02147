package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ExcerptCache 缓存精修时使用的文档摘录。过期由 Redis 在读取时判定，不依赖后台清理。
type ExcerptCache interface {
	Get(ctx context.Context, userID uint, documentID string) (string, bool, error)
	Set(ctx context.Context, userID uint, documentID string, excerpt string, ttl time.Duration) error
	Delete(ctx context.Context, userID uint, documentID string) error
}

type redisExcerptCache struct {
	redisClient *redis.Client
}

// NewExcerptCache 创建一个新的 ExcerptCache 实例。
func NewExcerptCache(redisClient *redis.Client) ExcerptCache {
	return &redisExcerptCache{redisClient: redisClient}
}

func excerptKey(userID uint, documentID string) string {
	return fmt.Sprintf("refine:excerpt:%d:%s", userID, documentID)
}

func (c *redisExcerptCache) Get(ctx context.Context, userID uint, documentID string) (string, bool, error) {
	val, err := c.redisClient.Get(ctx, excerptKey(userID, documentID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get excerpt: %w", err)
	}
	return val, true, nil
}

func (c *redisExcerptCache) Set(ctx context.Context, userID uint, documentID string, excerpt string, ttl time.Duration) error {
	if err := c.redisClient.Set(ctx, excerptKey(userID, documentID), excerpt, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set excerpt: %w", err)
	}
	return nil
}

func (c *redisExcerptCache) Delete(ctx context.Context, userID uint, documentID string) error {
	return c.redisClient.Del(ctx, excerptKey(userID, documentID)).Err()
}
