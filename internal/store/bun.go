package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

// conversationRow maps the conversations table. conversation_id holds the
// client-side conversation key, not a foreign key.
type conversationRow struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID              string    `bun:"id,pk"`
	UserAgent       string    `bun:"user_agent,notnull"`
	ConversationKey string    `bun:"conversation_id,notnull"`
	LastMessageAt   time.Time `bun:"last_message_at,notnull"`
	StartedAt       time.Time `bun:"started_at,notnull"`
}

func (r *conversationRow) toModel() *chat.Conversation {
	return &chat.Conversation{
		ID:              r.ID,
		DeviceID:        r.UserAgent,
		ConversationKey: r.ConversationKey,
		LastMessageAt:   r.LastMessageAt.UTC(),
		StartedAt:       r.StartedAt.UTC(),
	}
}

type messageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID             string    `bun:"id,pk"`
	ConversationID string    `bun:"conversation_id,notnull"`
	Message        string    `bun:"message"`
	Sender         string    `bun:"sender,notnull"`
	Timestamp      time.Time `bun:"timestamp,notnull"`
}

func (r *messageRow) toModel() chat.Message {
	return chat.Message{
		ID:        r.ID,
		Text:      r.Message,
		Role:      chat.ParseRole(r.Sender),
		Timestamp: r.Timestamp.UTC(),
		IsLogged:  true,
	}
}

// BunRepository stores conversations through bun, on Postgres or SQLite.
type BunRepository struct {
	db bun.IDB
}

// NewBunRepository creates a repository on db. The schema must already be migrated.
func NewBunRepository(db bun.IDB) *BunRepository {
	return &BunRepository{db: db}
}

func (r *BunRepository) LatestConversation(ctx context.Context, deviceID, conversationKey string) (*chat.Conversation, error) {
	row := new(conversationRow)
	err := r.db.NewSelect().
		Model(row).
		Where("user_agent = ?", deviceID).
		Where("conversation_id = ?", conversationKey).
		OrderExpr("last_message_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return row.toModel(), nil
}

func (r *BunRepository) CreateConversation(ctx context.Context, conv *chat.Conversation) error {
	row := &conversationRow{
		ID:              conv.ID,
		UserAgent:       conv.DeviceID,
		ConversationKey: conv.ConversationKey,
		LastMessageAt:   conv.LastMessageAt,
		StartedAt:       conv.StartedAt,
	}

	_, err := r.db.NewInsert().
		Model(row).
		On("CONFLICT (user_agent, conversation_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *BunRepository) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	row := new(conversationRow)
	err := r.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return row.toModel(), nil
}

func (r *BunRepository) TouchConversation(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*conversationRow)(nil)).
		Set("last_message_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *BunRepository) InsertMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	if conversationID == "" {
		return ErrConversationRequired
	}
	row := &messageRow{
		ID:             msg.ID,
		ConversationID: conversationID,
		Message:        msg.Text,
		Sender:         string(msg.Role),
		Timestamp:      msg.Timestamp,
	}

	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *BunRepository) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows := []messageRow{}
	err := r.db.NewSelect().
		Model(&rows).
		Where("conversation_id = ?", conversationID).
		OrderExpr("? ASC", bun.Ident("timestamp")).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]chat.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].toModel())
	}
	return messages, nil
}

func (r *BunRepository) DeleteMessages(ctx context.Context, conversationID string) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*messageRow)(nil)).
		Where("conversation_id = ?", conversationID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	n, _ := result.RowsAffected()
	return n, nil
}

// CountConversations reports how many rows exist for the pair.
func (r *BunRepository) CountConversations(ctx context.Context, deviceID, conversationKey string) (int, error) {
	return r.db.NewSelect().
		Model((*conversationRow)(nil)).
		Where("user_agent = ?", deviceID).
		Where("conversation_id = ?", conversationKey).
		Count(ctx)
}
