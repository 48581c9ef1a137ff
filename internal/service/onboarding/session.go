// Package onboarding implements the scripted onboarding conversation: the
// question cursor, the message log and the persistence policy shared by every
// chat surface.
package onboarding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/identity"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/metrics"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/insight"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyInput      = errors.New("message text is required")
)

// Gateway is the best-effort conversation store. Failures come back as ""
// or false and never stop the conversation.
type Gateway interface {
	FindOrCreateConversation(ctx context.Context, deviceID, conversationKey string) string
	LoadMessages(ctx context.Context, conversationID string) ([]chat.Message, bool)
	LogMessage(ctx context.Context, conversationID string, msg chat.Message) string
	DeleteConversationMessages(ctx context.Context, conversationID string) bool
}

// Insights checks websites and produces the campaign insight text.
type Insights interface {
	Probe(ctx context.Context, website string) error
	Fetch(ctx context.Context, website string) insight.Result
}

// EventType 会话事件类型
type EventType string

const (
	EventMessage EventType = "message"
	EventReset   EventType = "reset"
)

// Event is pushed to subscribers when the log changes.
type Event struct {
	Type    EventType     `json:"type"`
	Message *chat.Message `json:"data,omitempty"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	SessionID       string         `json:"sessionId"`
	DeviceID        string         `json:"deviceId"`
	ConversationKey string         `json:"conversationKey"`
	ConversationID  string         `json:"conversationId,omitempty"`
	Cursor          Question       `json:"cursor"`
	Profile         Profile        `json:"profile"`
	Messages        []chat.Message `json:"messages"`
}

const subscriberBuffer = 64

// Session is one live onboarding conversation. Inputs are processed one
// chain at a time; messages of a chain are appended and persisted in order.
type Session struct {
	id       string
	identity identity.Identity
	gateway  Gateway
	insights Insights
	pacer    Pacer
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// ctx lives until Close.
	ctx    context.Context
	cancel context.CancelFunc

	// chain is held for the whole of a message chain.
	chain sync.Mutex

	mu               sync.RWMutex
	conversationID   string
	messages         []chat.Message
	cursor           Question
	profile          Profile
	userHasResponded bool
	hasHistory       bool
	lastStamp        time.Time
	lastActive       time.Time
	closed           bool
	subscribers      map[int]chan Event
	nextSubscriber   int
}

// SessionConfig configures NewSession.
type SessionConfig struct {
	ID       string
	Identity identity.Identity
	Gateway  Gateway
	Insights Insights
	Pacer    Pacer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// NewSession creates a session. Call Start before sending input.
func NewSession(cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = NoDelay{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       cfg.ID,
		identity: cfg.Identity,
		gateway:  cfg.Gateway,
		insights: cfg.Insights,
		pacer:    pacer,
		log: log.Named("onboarding").With(
			zap.String("session_id", cfg.ID),
			zap.String("device_id", cfg.Identity.DeviceID),
			zap.String("conversation_key", cfg.Identity.ConversationKey),
		),
		metrics:     cfg.Metrics,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		cursor:      QuestionEmail,
		lastActive:  time.Now(),
		subscribers: make(map[int]chan Event),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Identity() identity.Identity {
	return s.identity
}

// Start resolves the stored conversation. When it has history the transcript
// is restored and the cursor recovered from it; otherwise the greeting is
// played in the background. Input sent meanwhile waits for the greeting.
func (s *Session) Start(ctx context.Context) error {
	s.chain.Lock()

	chainCtx, done := s.begin(ctx)
	if s.isClosed() {
		done()
		s.chain.Unlock()
		return ErrSessionClosed
	}

	if resume, ok := s.restore(chainCtx); ok {
		if resume != "" {
			s.emit(chainCtx, assistant(resume))
		}
		done()
		s.chain.Unlock()
		return nil
	}

	// The greeting goroutine owns the chain lock until it finishes.
	go func() {
		defer s.chain.Unlock()
		defer done()
		s.greet(chainCtx)
	}()
	return nil
}

// Wait blocks until the chain in progress, if any, has finished.
func (s *Session) Wait() {
	s.chain.Lock()
	defer s.chain.Unlock()
}

// Send processes one user answer and returns the messages it produced,
// starting with the user's own message.
func (s *Session) Send(ctx context.Context, text string) ([]chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	s.chain.Lock()
	defer s.chain.Unlock()

	ctx, done := s.begin(ctx)
	defer done()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.userHasResponded = true
	s.lastActive = s.now()
	start := len(s.messages)
	cursor := s.cursor
	s.mu.Unlock()

	// The user's message is the first one written, together with the
	// greeting held back until now.
	s.emit(ctx, user(text))
	transitions[cursor](s, ctx, text)

	return s.messagesFrom(start), nil
}

// Reset deletes the stored transcript, clears the log and replays the
// greeting in the background. The conversation record is kept.
func (s *Session) Reset(ctx context.Context) error {
	s.chain.Lock()

	chainCtx, done := s.begin(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done()
		s.chain.Unlock()
		return ErrSessionClosed
	}
	conversationID := s.conversationID
	s.mu.Unlock()

	if conversationID != "" && !s.gateway.DeleteConversationMessages(chainCtx, conversationID) {
		s.log.Warn("stored messages not deleted, continuing with a fresh log")
	}

	s.mu.Lock()
	from := s.cursor
	s.messages = nil
	s.cursor = QuestionEmail
	s.profile = Profile{}
	s.userHasResponded = false
	s.hasHistory = false
	s.lastActive = s.now()
	s.publishLocked(Event{Type: EventReset})
	s.mu.Unlock()

	s.metrics.RecordTransition(string(from), string(QuestionEmail))
	s.log.Info("conversation reset")

	go func() {
		defer s.chain.Unlock()
		defer done()
		s.greet(chainCtx)
	}()
	return nil
}

// Close stops pending pacing and external calls. Nothing in the session
// changes after Close returns.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()

	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription. The channel is closed on unsubscribe or Close. Slow
// subscribers miss events rather than block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubscriber
	s.nextSubscriber++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			close(sub)
			delete(s.subscribers, id)
		}
	}
}

func (s *Session) Cursor() Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func (s *Session) Profile() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Messages returns a copy of the log.
func (s *Session) Messages() []chat.Message {
	return s.messagesFrom(0)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]chat.Message, len(s.messages))
	copy(messages, s.messages)
	return Snapshot{
		SessionID:       s.id,
		DeviceID:        s.identity.DeviceID,
		ConversationKey: s.identity.ConversationKey,
		ConversationID:  s.conversationID,
		Cursor:          s.cursor,
		Profile:         s.profile,
		Messages:        messages,
	}
}

// LastActive reports when the session last received input.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) Closed() bool {
	return s.isClosed()
}

// begin derives the context a chain runs under. It ignores cancellation of
// the caller's context so a dropped request does not cut a chain in half,
// and ends with the session.
func (s *Session) begin(ctx context.Context) (context.Context, func()) {
	chainCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	return chainCtx, func() {
		stop()
		cancel()
	}
}

// restore loads the stored transcript. It reports whether there was one and
// the prompt to repeat when the transcript stopped before asking it.
func (s *Session) restore(ctx context.Context) (string, bool) {
	conversationID := s.gateway.FindOrCreateConversation(ctx, s.identity.DeviceID, s.identity.ConversationKey)
	if conversationID == "" {
		s.log.Warn("conversation unavailable, running in memory")
		return "", false
	}

	s.mu.Lock()
	s.conversationID = conversationID
	s.mu.Unlock()

	stored, ok := s.gateway.LoadMessages(ctx, conversationID)
	if !ok || len(stored) == 0 {
		return "", false
	}

	for i := range stored {
		stored[i].IsLogged = true
	}
	cursor, profile := replay(stored)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", true
	}
	s.messages = stored
	s.cursor = cursor
	s.profile = profile
	s.hasHistory = true
	s.lastStamp = stored[len(stored)-1].Timestamp

	s.log.Info("conversation restored",
		zap.String("conversation_id", conversationID),
		zap.Int("messages", len(stored)),
		zap.String("cursor", string(cursor)))
	return unansweredPrompt(stored, cursor), true
}

func (s *Session) greet(ctx context.Context) {
	for i, msg := range greeting() {
		if i > 0 && s.pacer.Pause(ctx) != nil {
			return
		}
		s.emit(ctx, msg)
	}
}

// flushPending writes every unlogged message of the log, in order. Messages
// that failed to be written earlier are retried here, so the stored
// transcript never has gaps before its newest message.
func (s *Session) flushPending(ctx context.Context) {
	conversationID := s.ensureConversation(ctx)
	if conversationID == "" {
		return
	}

	s.mu.RLock()
	pending := make([]int, 0, len(s.messages))
	for i, msg := range s.messages {
		if !msg.IsLogged && !msg.Widget() {
			pending = append(pending, i)
		}
	}
	s.mu.RUnlock()

	for _, i := range pending {
		s.persist(ctx, conversationID, i)
	}
}

func (s *Session) ensureConversation(ctx context.Context) string {
	s.mu.RLock()
	conversationID := s.conversationID
	s.mu.RUnlock()
	if conversationID != "" {
		return conversationID
	}

	conversationID = s.gateway.FindOrCreateConversation(ctx, s.identity.DeviceID, s.identity.ConversationKey)
	if conversationID == "" {
		return ""
	}

	s.mu.Lock()
	s.conversationID = conversationID
	s.mu.Unlock()
	return conversationID
}

// emit appends msg to the log, persists it when the policy allows and then
// notifies subscribers.
func (s *Session) emit(ctx context.Context, msg chat.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	msg.Timestamp = s.nextStamp()
	s.messages = append(s.messages, msg)
	index := len(s.messages) - 1
	persist := (s.userHasResponded || s.hasHistory) && !msg.Widget()
	s.mu.Unlock()

	if persist {
		s.flushPending(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || index >= len(s.messages) {
		return
	}
	published := s.messages[index]
	s.publishLocked(Event{Type: EventMessage, Message: &published})
}

func (s *Session) persist(ctx context.Context, conversationID string, index int) {
	s.mu.RLock()
	if index >= len(s.messages) || s.messages[index].IsLogged {
		s.mu.RUnlock()
		return
	}
	msg := s.messages[index]
	s.mu.RUnlock()

	id := s.gateway.LogMessage(ctx, conversationID, msg)
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || index >= len(s.messages) {
		return
	}
	s.messages[index].ID = id
	s.messages[index].IsLogged = true
}

// nextStamp returns a microsecond timestamp strictly after the previous one.
// Caller holds mu.
func (s *Session) nextStamp() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}

// publishLocked fans ev out without blocking. Caller holds mu.
func (s *Session) publishLocked(ev Event) {
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.log.Warn("subscriber too slow, event dropped", zap.String("type", string(ev.Type)))
		}
	}
}

func (s *Session) moveTo(next Question) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	from := s.cursor
	s.cursor = next
	s.mu.Unlock()

	s.metrics.RecordTransition(string(from), string(next))
	if from != next {
		s.log.Info("question advanced", zap.String("from", string(from)), zap.String("to", string(next)))
	}
}

func (s *Session) updateProfile(q Question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.profile.record(q, answer)
	}
}

func (s *Session) messagesFrom(start int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start > len(s.messages) {
		start = len(s.messages)
	}
	out := make([]chat.Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
