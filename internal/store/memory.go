package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

// MemoryRepository keeps conversations in process memory. It backs tests and
// the `memory` store driver.
type MemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

func (r *MemoryRepository) LatestConversation(_ context.Context, deviceID, conversationKey string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *chat.Conversation
	for _, conv := range r.conversations {
		if conv.DeviceID != deviceID || conv.ConversationKey != conversationKey {
			continue
		}
		if latest == nil || conv.LastMessageAt.After(latest.LastMessageAt) {
			c := conv
			latest = &c
		}
	}
	return latest, nil
}

func (r *MemoryRepository) CreateConversation(_ context.Context, conv *chat.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.conversations {
		if existing.DeviceID == conv.DeviceID && existing.ConversationKey == conv.ConversationKey {
			return nil
		}
	}

	r.conversations[conv.ID] = *conv
	r.messages[conv.ID] = make([]chat.Message, 0, 16)
	return nil
}

func (r *MemoryRepository) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, nil
	}
	return &conv, nil
}

func (r *MemoryRepository) TouchConversation(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.LastMessageAt = at
	r.conversations[id] = conv
	return nil
}

func (r *MemoryRepository) InsertMessage(_ context.Context, conversationID string, msg chat.Message) error {
	if conversationID == "" {
		return ErrConversationRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return ErrConversationNotFound
	}

	msg.IsLogged = true
	r.messages[conversationID] = append(r.messages[conversationID], msg)
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := r.messages[conversationID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	sort.SliceStable(copied, func(i, j int) bool {
		return copied[i].Timestamp.Before(copied[j].Timestamp)
	})
	return copied, nil
}

func (r *MemoryRepository) DeleteMessages(_ context.Context, conversationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversationID]; !ok {
		return 0, ErrConversationNotFound
	}
	n := int64(len(r.messages[conversationID]))
	r.messages[conversationID] = make([]chat.Message, 0, 16)
	return n, nil
}

// ConversationCount reports how many conversation rows exist.
func (r *MemoryRepository) ConversationCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}
