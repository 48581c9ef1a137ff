package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
	"github.com/zhouzirui/bamboo-onboard/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// SessionGetter looks up live sessions.
type SessionGetter interface {
	Get(sessionID string) (*onboarding.Session, error)
}

// Handler pushes session events over Server-Sent Events.
type Handler struct {
	sessions  SessionGetter
	log       *zap.Logger
	heartbeat time.Duration
}

// New creates a new stream handler
func New(sessions SessionGetter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, log: log.Named("sse"), heartbeat: heartbeatInterval}
}

// RegisterRoutes 注册SSE路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/events", h.handleEvents)
}

// handleEvents streams a snapshot followed by every event of the session
// until the client leaves or the session closes.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "snapshot", session.Snapshot()); err != nil {
		return
	}

	h.log.Debug("stream opened", zap.String("session_id", sessionID))
	defer h.log.Debug("stream closed", zap.String("session_id", sessionID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": sessionID})
				return
			}
			var data any = struct{}{}
			if ev.Message != nil {
				data = ev.Message
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), data); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
