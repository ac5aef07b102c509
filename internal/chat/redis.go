package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarmbot/event-gateway/internal/platform/anthropic"
)

const historyKeyPrefix = "chat:history:"

// RedisStore keeps conversation history in Redis so chats survive restarts.
type RedisStore struct {
	rdb      *redis.Client
	maxTurns int
	ttl      time.Duration
}

func NewRedisStore(rdb *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &RedisStore{rdb: rdb, maxTurns: maxTurns, ttl: ttl}
}

func (s *RedisStore) History(ctx context.Context, chatID string) ([]anthropic.Turn, error) {
	raw, err := s.rdb.Get(ctx, historyKeyPrefix+chatID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}
	var history []anthropic.Turn
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("chat: decode history: %w", err)
	}
	return history, nil
}

func (s *RedisStore) SetHistory(ctx context.Context, chatID string, history []anthropic.Turn) error {
	if len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("chat: encode history: %w", err)
	}
	if err := s.rdb.Set(ctx, historyKeyPrefix+chatID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("chat: save history: %w", err)
	}
	return nil
}
