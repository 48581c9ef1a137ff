package page

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
)

// Transcripts reads stored conversations.
type Transcripts interface {
	FindConversation(ctx context.Context, deviceID, conversationKey string) *chat.Conversation
	LoadMessages(ctx context.Context, conversationID string) ([]chat.Message, bool)
}

// Handler renders stored transcripts as HTML.
type Handler struct {
	transcripts Transcripts
	log         *zap.Logger
}

func New(transcripts Transcripts, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{transcripts: transcripts, log: log.Named("page")}
}

// RegisterRoutes 注册页面路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/transcript", h.handleTranscript)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	key := r.URL.Query().Get("id")
	if deviceID == "" || key == "" {
		h.render(w, http.StatusBadRequest, Layout("Transcript", notice("deviceId and id are required.")))
		return
	}

	conv := h.transcripts.FindConversation(r.Context(), deviceID, key)
	if conv == nil {
		h.render(w, http.StatusNotFound, Layout("Transcript", notice("No conversation found.")))
		return
	}

	messages, ok := h.transcripts.LoadMessages(r.Context(), conv.ID)
	if !ok {
		h.render(w, http.StatusServiceUnavailable, Layout("Transcript", notice("The transcript is unavailable right now.")))
		return
	}

	h.render(w, http.StatusOK, Layout("Transcript", TranscriptView(conv, messages)))
}

func (h *Handler) render(w http.ResponseWriter, status int, node g.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := node.Render(w); err != nil {
		h.log.Warn("render page", zap.Error(err))
	}
}

// Layout wraps content in the page shell.
func Layout(title string, content ...g.Node) g.Node {
	return g.Group([]g.Node{
		g.Raw("<!DOCTYPE html>"),
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("utf-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1.0")),
				TitleEl(g.Text(title+" · Bamboo")),
				StyleEl(g.Raw(styles)),
			),
			Body(
				Main(Class("transcript"), g.Group(content)),
			),
		),
	})
}

// TranscriptView renders the messages of one conversation.
func TranscriptView(conv *chat.Conversation, messages []chat.Message) g.Node {
	return g.Group([]g.Node{
		H1(g.Text("Conversation")),
		P(Class("meta"),
			g.Textf("Started %s · last message %s · %d messages",
				conv.StartedAt.Format(time.RFC1123), conv.LastMessageAt.Format(time.RFC1123), len(messages)),
		),
		g.If(len(messages) == 0, notice("This conversation has no messages.")),
		Ol(Class("messages"),
			g.Map(messages, messageItem),
		),
	})
}

func messageItem(m chat.Message) g.Node {
	return Li(Class("message "+string(m.Role)),
		Span(Class("role"), g.Text(string(m.Role))),
		g.El("time", g.Attr("datetime", m.Timestamp.Format(time.RFC3339)), g.Text(m.Timestamp.Format("15:04:05"))),
		g.If(m.Text != "", P(Class("text"), g.Text(m.Text))),
		g.If(m.ShowCalendly, P(Class("widget"), g.Text("Scheduling link shown"))),
	)
}

func notice(text string) g.Node {
	return P(Class("notice"), g.Text(text))
}

const styles = `
body { font-family: system-ui, sans-serif; background: #f6f7f4; color: #1d2a1f; margin: 0; }
.transcript { max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
.meta, .notice { color: #5b6b5e; }
.messages { list-style: none; padding: 0; }
.message { background: #fff; border-radius: 8px; margin: .75rem 0; padding: .75rem 1rem; }
.message.user { background: #e3f1e4; margin-left: 3rem; }
.role { font-weight: 600; margin-right: .5rem; }
time { color: #8a968c; font-size: .85em; }
.text { white-space: pre-wrap; margin: .5rem 0 0; }
.widget { font-style: italic; color: #3d7a46; }
`
