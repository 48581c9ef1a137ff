package onboarding

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/identity"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/metrics"
)

// ManagerConfig 会话管理器配置
type ManagerConfig struct {
	Gateway  Gateway
	Insights Insights
	Pacer    Pacer
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Manager keeps the live sessions, at most one per identity.
type Manager struct {
	cfg ManagerConfig
	log *zap.Logger

	mu         sync.RWMutex
	sessions   map[string]*Session
	byIdentity map[identity.Identity]string
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		log:        cfg.Logger.Named("sessions"),
		sessions:   make(map[string]*Session),
		byIdentity: make(map[identity.Identity]string),
	}
}

// Open returns the live session for ident, starting a new one when there is
// none.
func (m *Manager) Open(ctx context.Context, ident identity.Identity) (*Session, error) {
	m.mu.Lock()
	if id, ok := m.byIdentity[ident]; ok {
		if s := m.sessions[id]; s != nil && !s.Closed() {
			m.mu.Unlock()
			return s, nil
		}
	}

	s := NewSession(SessionConfig{
		ID:       uuid.NewString(),
		Identity: ident,
		Gateway:  m.cfg.Gateway,
		Insights: m.cfg.Insights,
		Pacer:    m.cfg.Pacer,
		Logger:   m.cfg.Logger,
		Metrics:  m.cfg.Metrics,
	})
	m.sessions[s.ID()] = s
	m.byIdentity[ident] = s.ID()
	m.mu.Unlock()

	m.cfg.Metrics.SessionOpened()
	m.log.Info("session opened",
		zap.String("session_id", s.ID()),
		zap.String("device_id", ident.DeviceID),
		zap.String("conversation_key", ident.ConversationKey))

	if err := s.Start(ctx); err != nil {
		_ = m.Close(s.ID())
		return nil, err
	}
	return s, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears the session down and forgets it.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	if m.byIdentity[s.Identity()] == sessionID {
		delete(m.byIdentity, s.Identity())
	}
	m.mu.Unlock()

	s.Close()
	m.cfg.Metrics.SessionClosed()
	m.log.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// Sweep closes sessions idle for longer than ttl and returns how many.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.RLock()
	idle := make([]string, 0)
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if m.Close(id) == nil {
			closed++
		}
	}
	if closed > 0 {
		m.log.Info("idle sessions swept", zap.Int("count", closed))
	}
	return closed
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ttl)
		}
	}
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Close(id)
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
