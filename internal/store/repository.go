// Package store persists onboarding conversations and their transcripts.
//
// Repository implementations return errors; Gateway wraps a Repository and
// turns every failure into a logged sentinel so the chat can keep running
// without storage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationRequired = errors.New("conversation id is required")
)

// Repository is the storage contract behind the Gateway.
type Repository interface {
	// LatestConversation returns the most recently active conversation for the
	// pair, or nil when there is none.
	LatestConversation(ctx context.Context, deviceID, conversationKey string) (*chat.Conversation, error)
	// CreateConversation inserts conv unless a row for the same pair already
	// exists, in which case it does nothing.
	CreateConversation(ctx context.Context, conv *chat.Conversation) error
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error

	InsertMessage(ctx context.Context, conversationID string, msg chat.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	DeleteMessages(ctx context.Context, conversationID string) (int64, error)
}
