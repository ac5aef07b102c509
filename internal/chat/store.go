package chat

import (
	"context"
	"sync"

	"github.com/swarmbot/event-gateway/internal/platform/anthropic"
)

// Store holds per-chat conversation history keyed by the external chat id.
// The core only appends turns; it never assumes a particular backing store.
type Store interface {
	History(ctx context.Context, chatID string) ([]anthropic.Turn, error)
	SetHistory(ctx context.Context, chatID string, history []anthropic.Turn) error
}

// MemoryStore is the in-process fallback used when no Redis is configured,
// and the store of choice in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string][]anthropic.Turn
	maxTurns int
}

func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	return &MemoryStore{chats: make(map[string][]anthropic.Turn), maxTurns: maxTurns}
}

func (s *MemoryStore) History(_ context.Context, chatID string) ([]anthropic.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.chats[chatID]
	out := make([]anthropic.Turn, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) SetHistory(_ context.Context, chatID string, history []anthropic.Turn) error {
	if len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	s.mu.Lock()
	s.chats[chatID] = append([]anthropic.Turn{}, history...)
	s.mu.Unlock()
	return nil
}
