package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parley-chat/parley/internal/models"
)

const messageCacheTTL = 24 * time.Hour

// RedisStore caches recent chat messages and backs rate-limit counters.
// It is optional: callers must tolerate a nil *RedisStore.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// chatMessagesKey returns the key for a chat's message sorted set.
func chatMessagesKey(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

// rateLimitKey returns the key for a rate limit counter.
func rateLimitKey(bucket string) string {
	return fmt.Sprintf("ratelimit:%s", bucket)
}

// CacheMessage stores a persisted message in the chat's recent-message set.
// Caching is best-effort; the durable store is authoritative.
func (s *RedisStore) CacheMessage(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := chatMessagesKey(msg.ChatID)

	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, messageCacheTTL)
	return nil
}

// GetChatMessages retrieves cached messages newest-first, optionally before
// a unix-ms timestamp (exclusive). An empty result means cache miss.
func (s *RedisStore) GetChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.Message, error) {
	key := chatMessagesKey(chatID)

	var maxScore string
	if before > 0 {
		maxScore = fmt.Sprintf("(%d", before) // exclusive
	} else {
		maxScore = "+inf"
	}

	results, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// InvalidateChat drops a chat's cached messages. Used after bulk read-state
// changes so the cache does not serve stale is_read flags.
func (s *RedisStore) InvalidateChat(ctx context.Context, chatID string) {
	s.client.Del(ctx, chatMessagesKey(chatID))
}

// IncrementRateLimit increments the bucket's counter within its window and
// returns the new count.
func (s *RedisStore) IncrementRateLimit(ctx context.Context, bucket string, window time.Duration) (int64, error) {
	key := rateLimitKey(bucket)

	pipe := s.client.Pipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return count.Val(), nil
}
