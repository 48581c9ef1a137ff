package chat

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/identity"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
	"github.com/zhouzirui/bamboo-onboard/backend/pkg/utils"
)

const maxBodyBytes = 16 << 10

// Sessions is the part of the session manager the handler needs.
type Sessions interface {
	Open(ctx context.Context, ident identity.Identity) (*onboarding.Session, error)
	Get(sessionID string) (*onboarding.Session, error)
	Close(sessionID string) error
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions Sessions
	log      *zap.Logger
}

// New 创建聊天处理器
func New(sessions Sessions, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, log: log.Named("chat")}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleOpenSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleCloseSession)
		r.Post("/messages", h.handleSendMessage)
		r.Delete("/messages", h.handleReset)
	})
}

type openSessionRequest struct {
	DeviceID       string `json:"deviceId"`
	ConversationID string `json:"conversationId"`
}

type sendMessageResponse struct {
	Cursor   onboarding.Question `json:"cursor"`
	Messages []chat.Message      `json:"messages"`
}

// handleOpenSession 打开(或复用)会话
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var payload openSessionRequest
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store := identity.NewCookieStore(w, r)
	if payload.DeviceID != "" {
		_ = store.Set(identity.DeviceKey, payload.DeviceID)
	}

	override := r.URL.Query().Get("id")
	if override == "" {
		override = payload.ConversationID
	}

	ident, err := identity.Resolve(store, override)
	if err != nil {
		h.log.Warn("resolve identity", zap.Error(err))
	}

	session, err := h.sessions.Open(r.Context(), ident)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	if r.URL.Query().Get("wait") != "" {
		session.Wait()
	}

	utils.RespondJSON(w, http.StatusCreated, session.Snapshot())
}

// handleGetSession 获取会话快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, session.Snapshot())
}

// handleSendMessage 处理用户回答
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, maxBodyBytes, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	messages, err := session.Send(r.Context(), payload.Text)
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, sendMessageResponse{
		Cursor:   session.Cursor(),
		Messages: messages,
	})
}

// handleReset 清空会话并重新开始
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondSessionError(w, err)
		return
	}

	if err := session.Reset(r.Context()); err != nil {
		h.respondSessionError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "restarted"})
}

// handleCloseSession 关闭会话
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sessionID")); err != nil {
		h.respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, onboarding.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, onboarding.ErrSessionClosed):
		utils.RespondError(w, http.StatusGone, err.Error())
	case errors.Is(err, onboarding.ErrEmptyInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("chat request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
