package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/middleware"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler WebSocket聊天处理器
type WebSocketHandler struct {
	sessions SessionGetter
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
// allowedOrigins 与 CORS_ALLOWED_ORIGINS 一致，为空时不限制来源
func NewWebSocketHandler(sessions SessionGetter, log *zap.Logger, allowedOrigins []string) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	allow := middleware.OriginAllowed(allowedOrigins)
	return &WebSocketHandler{
		sessions: sessions,
		log:      log.Named("websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin.
				origin := r.Header.Get("Origin")
				return origin == "" || allow(origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/chat/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(zap.String("session_id", sessionID))
	log.Info("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	// The writer goroutine is the only one writing to conn.
	out := make(chan outgoingMessage, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close() // unblocks the reader
		defer cancel()
		h.writeLoop(ctx, conn, sessionID, events, out)
	}()
	defer func() { <-writerDone }()

	out <- outgoingMessage{Type: "snapshot", Data: session.Snapshot()}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", zap.Error(err))
			}
			cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.handleMessage(ctx, session, &msg); err != nil {
			select {
			case out <- outgoingMessage{Type: "error", Data: map[string]string{"message": err.Error()}}:
			case <-ctx.Done():
				return
			}
			if errors.Is(err, onboarding.ErrSessionClosed) {
				cancel()
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, session *onboarding.Session, msg *inboundMessage) error {
	switch msg.Type {
	case "message":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			return errors.New("invalid message payload")
		}
		// Replies reach the client through the subscription.
		_, err := session.Send(ctx, text.Text)
		return err
	case "reset":
		return session.Reset(ctx)
	default:
		return errors.New("unknown message type")
	}
}

// writeLoop forwards session events and queued replies, and pings the peer.
func (h *WebSocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string, events <-chan onboarding.Event, out <-chan outgoingMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg outgoingMessage) bool {
		msg.SessionID = sessionID
		msg.Timestamp = time.Now().Unix()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.log.Debug("write failed", zap.String("session_id", sessionID), zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-out:
			if !write(msg) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				write(outgoingMessage{Type: "closed"})
				return
			}
			msg := outgoingMessage{Type: string(ev.Type)}
			if ev.Message != nil {
				msg.Data = ev.Message
			}
			if !write(msg) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
