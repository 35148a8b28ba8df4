package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jimmy-lgtm/pd-sms/config"
	"github.com/jimmy-lgtm/pd-sms/model"
)

// MessageStore is an in-memory log of recently relayed messages for the
// operator API. The CRM holds the durable record; this is a convenience view.
type MessageStore struct {
	messages    map[string]*model.MessageLog
	mu          sync.RWMutex
	maxMessages int // Maximum messages to keep, 0 = unlimited
}

var (
	globalStore *MessageStore
	storeOnce   sync.Once
)

// InitMessageStore initializes the global message store with configuration
func InitMessageStore(cfg *config.StoreConfig) {
	storeOnce.Do(func() {
		maxMessages := cfg.MaxMessages
		if maxMessages < 0 {
			maxMessages = 0
		}
		globalStore = &MessageStore{
			messages:    make(map[string]*model.MessageLog),
			maxMessages: maxMessages,
		}
		slog.Info("message store initialized", "max_messages", maxMessages)
	})
}

// GetMessageStore returns the global message store
func GetMessageStore() *MessageStore {
	if globalStore == nil {
		// Fallback initialization with default settings
		globalStore = &MessageStore{
			messages:    make(map[string]*model.MessageLog),
			maxMessages: 500,
		}
	}
	return globalStore
}

func (s *MessageStore) Append(msg *model.MessageLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages[msg.ID] = msg

	// Cleanup if exceeds max
	s.cleanupIfNeeded()
}

func (s *MessageStore) Get(id string) *model.MessageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[id]
}

// Recent returns up to limit messages, newest first. limit <= 0 returns all.
func (s *MessageStore) Recent(limit int) []*model.MessageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.MessageLog, 0, len(s.messages))
	for _, m := range s.messages {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *MessageStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, id)
}

// cleanupIfNeeded removes oldest messages if store exceeds maxMessages
// Must be called with lock held
func (s *MessageStore) cleanupIfNeeded() {
	if s.maxMessages <= 0 {
		return // Unlimited
	}

	if len(s.messages) <= s.maxMessages {
		return
	}

	messages := make([]*model.MessageLog, 0, len(s.messages))
	for _, m := range s.messages {
		messages = append(messages, m)
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	removeCount := len(messages) - s.maxMessages
	for i := 0; i < removeCount; i++ {
		delete(s.messages, messages[i].ID)
	}
}

// Count returns the number of messages in the store
func (s *MessageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
