package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/metrics"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

// Gateway is the best-effort persistence surface used by chat sessions.
// No method returns an error: failures are logged and reported as "" or
// false, and the caller keeps working in memory.
type Gateway struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	creates singleflight.Group
}

// NewGateway wraps repo. log and m may be nil.
func NewGateway(repo Repository, log *zap.Logger, m *metrics.Metrics) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		repo:    repo,
		log:     log.Named("store"),
		metrics: m,
		now:     time.Now,
	}
}

const createTimeout = 10 * time.Second

// FindOrCreateConversation returns the id of the most recent conversation for
// the pair, creating one when none exists. Concurrent callers for the same
// pair share one lookup, and a caller that gives up does not cancel it for
// the others. Returns "" on failure.
func (g *Gateway) FindOrCreateConversation(ctx context.Context, deviceID, conversationKey string) string {
	key := deviceID + "\x00" + conversationKey
	ch := g.creates.DoChan(key, func() (any, error) {
		// Shared by every caller for the pair, so it must not end with the
		// first caller's request.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return g.findOrCreate(ctx, deviceID, conversationKey)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	v, err := res.Val, res.Err
	g.metrics.RecordStore("find_or_create", err)
	if err != nil {
		g.log.Warn("find or create conversation failed",
			zap.String("device_id", deviceID),
			zap.String("conversation_key", conversationKey),
			zap.Error(err))
		return ""
	}
	return v.(string)
}

func (g *Gateway) findOrCreate(ctx context.Context, deviceID, conversationKey string) (string, error) {
	existing, err := g.repo.LatestConversation(ctx, deviceID, conversationKey)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	now := stamp(g.now())
	conv := &chat.Conversation{
		ID:              uuid.NewString(),
		DeviceID:        deviceID,
		ConversationKey: conversationKey,
		LastMessageAt:   now,
		StartedAt:       now,
	}
	if err := g.repo.CreateConversation(ctx, conv); err != nil {
		return "", err
	}

	// Another process may have won the insert; read back whichever row exists.
	created, err := g.repo.LatestConversation(ctx, deviceID, conversationKey)
	if err != nil {
		return "", err
	}
	if created == nil {
		return "", ErrConversationNotFound
	}

	g.log.Info("conversation created",
		zap.String("conversation_id", created.ID),
		zap.String("device_id", deviceID))
	return created.ID, nil
}

// FindConversation looks up the latest conversation for the pair without
// creating one. Returns nil when absent or on failure.
func (g *Gateway) FindConversation(ctx context.Context, deviceID, conversationKey string) *chat.Conversation {
	conv, err := g.repo.LatestConversation(ctx, deviceID, conversationKey)
	g.metrics.RecordStore("find", err)
	if err != nil {
		g.log.Warn("find conversation failed", zap.String("device_id", deviceID), zap.Error(err))
		return nil
	}
	return conv
}

// LoadMessages returns the conversation's messages in ascending timestamp
// order. ok is false when loading failed.
func (g *Gateway) LoadMessages(ctx context.Context, conversationID string) (messages []chat.Message, ok bool) {
	if conversationID == "" {
		return nil, false
	}

	messages, err := g.repo.ListMessages(ctx, conversationID)
	g.metrics.RecordStore("load_messages", err)
	if err != nil {
		g.log.Warn("load messages failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, false
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, true
}

// LogMessage appends msg to the conversation and bumps its last activity
// time. Returns the new message id, or "" when nothing was written.
func (g *Gateway) LogMessage(ctx context.Context, conversationID string, msg chat.Message) string {
	if conversationID == "" {
		g.log.Warn("log message skipped: no conversation id", zap.String("role", string(msg.Role)))
		return ""
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = g.now()
	}
	msg.Timestamp = stamp(msg.Timestamp)

	err := g.repo.InsertMessage(ctx, conversationID, msg)
	g.metrics.RecordStore("log_message", err)
	if err != nil {
		g.log.Warn("log message failed",
			zap.String("conversation_id", conversationID),
			zap.String("role", string(msg.Role)),
			zap.Error(err))
		return ""
	}

	if err := g.repo.TouchConversation(ctx, conversationID, msg.Timestamp); err != nil {
		g.log.Warn("update last_message_at failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return msg.ID
}

// DeleteConversationMessages removes every message of the conversation. The
// conversation row itself is kept.
func (g *Gateway) DeleteConversationMessages(ctx context.Context, conversationID string) bool {
	if conversationID == "" {
		g.log.Warn("delete messages skipped: no conversation id")
		return false
	}

	n, err := g.repo.DeleteMessages(ctx, conversationID)
	g.metrics.RecordStore("delete_messages", err)
	if err != nil {
		g.log.Warn("delete messages failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return false
	}

	g.log.Info("conversation messages deleted",
		zap.String("conversation_id", conversationID),
		zap.Int64("count", n))
	return true
}

// stamp normalizes t to the precision every backend can round-trip.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
