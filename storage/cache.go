package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"todogenie-api/domain"
)

// Cache wraps a translation store with a Redis read-through cache for
// stored translations. Redis failures fall back to the backing store.
type Cache struct {
	domain.TranslationStore
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base domain.TranslationStore, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{TranslationStore: base, redis: client, ttl: ttl}
}

func (c *Cache) FindTranslation(ctx context.Context, userID, taskID, language string) (*domain.Translation, error) {
	if t, ok := c.load(ctx, userID, taskID, language); ok {
		return t, nil
	}

	t, err := c.TranslationStore.FindTranslation(ctx, userID, taskID, language)
	if err != nil || t == nil {
		return t, err
	}

	c.store(ctx, userID, *t)
	return t, nil
}

func (c *Cache) InsertTranslation(ctx context.Context, userID string, t domain.Translation) (domain.Translation, bool, error) {
	stored, inserted, err := c.TranslationStore.InsertTranslation(ctx, userID, t)
	if err != nil {
		return stored, inserted, err
	}

	c.store(ctx, userID, stored)
	return stored, inserted, nil
}

func (c *Cache) UpdateTranslationPayload(ctx context.Context, userID string, t domain.Translation) error {
	if err := c.TranslationStore.UpdateTranslationPayload(ctx, userID, t); err != nil {
		c.evict(ctx, userID, t)
		return err
	}

	c.store(ctx, userID, t)
	return nil
}

func (c *Cache) load(ctx context.Context, userID, taskID, language string) (*domain.Translation, bool) {
	if c.redis == nil {
		return nil, false
	}
	key := translationCacheKey(userID, taskID, language)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var t domain.Translation
	if err := t.UnmarshalJSON(data); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return &t, true
}

func (c *Cache) store(ctx context.Context, userID string, t domain.Translation) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := t.MarshalJSON()
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, translationCacheKey(userID, t.TaskID, t.Language), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string, t domain.Translation) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, translationCacheKey(userID, t.TaskID, t.Language)).Err()
}

func translationCacheKey(userID, taskID, language string) string {
	return "tr:" + userID + ":" + taskID + ":" + language
}
