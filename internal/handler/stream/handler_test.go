package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/identity"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/model/chat"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/insight"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/store"
)

type stubInsights struct{}

func (stubInsights) Probe(context.Context, string) error { return nil }
func (stubInsights) Fetch(context.Context, string) insight.Result {
	return insight.Failed(errors.New("offline"))
}

func newTestServer(t *testing.T) (*httptest.Server, *onboarding.Manager, *onboarding.Session) {
	t.Helper()
	manager := onboarding.NewManager(onboarding.ManagerConfig{
		Gateway:  store.NewGateway(store.NewMemoryRepository(), nil, nil),
		Insights: stubInsights{},
		Pacer:    onboarding.NoDelay{},
	})

	session, err := manager.Open(context.Background(), identity.Identity{DeviceID: "d", ConversationKey: "k"})
	require.NoError(t, err)
	session.Wait()

	r := chi.NewRouter()
	New(manager, nil).RegisterRoutes(r)
	NewWebSocketHandler(manager, nil, []string{"https://app.bamboo.ai"}).RegisterWebSocketRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		manager.CloseAll()
		srv.Close()
	})
	return srv, manager, session
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsStream(t *testing.T) {
	srv, manager, session := newTestServer(t)

	resp, err := http.Get(srv.URL + "/session/" + session.ID() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Equal(t, "snapshot", first.name)

	_, err = session.Send(context.Background(), "jay@bamboo.ai")
	require.NoError(t, err)

	var texts []string
	for i := 0; i < 2; i++ {
		ev := readEvent(t, reader)
		require.Equal(t, "message", ev.name)
		var msg chat.Message
		require.NoError(t, json.Unmarshal([]byte(ev.data), &msg))
		texts = append(texts, msg.Text)
	}
	assert.Equal(t, []string{"jay@bamboo.ai", onboarding.WebsiteQuestion}, texts)

	require.NoError(t, manager.Close(session.ID()))
	assert.Equal(t, "closed", readEvent(t, reader).name)
}

func TestEventsUnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/session/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketConversation(t *testing.T) {
	srv, _, session := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + session.ID()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot struct {
		Type string              `json:"type"`
		Data onboarding.Snapshot `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)
	assert.Equal(t, session.ID(), snapshot.Data.SessionID)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "message",
		"data": map[string]string{"text": "jay@bamboo.ai"},
	}))

	type messageFrame struct {
		Type string       `json:"type"`
		Data chat.Message `json:"data"`
	}
	var frames []messageFrame
	for len(frames) < 2 {
		var f messageFrame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
	}
	assert.Equal(t, "message", frames[0].Type)
	assert.Equal(t, chat.RoleUser, frames[0].Data.Role)
	assert.Equal(t, onboarding.WebsiteQuestion, frames[1].Data.Text)
	assert.Equal(t, onboarding.QuestionWebsite, session.Cursor())

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	var errFrame struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "error", errFrame.Type)
	assert.Equal(t, "unknown message type", errFrame.Data["message"])
}

func TestWebSocketChecksOrigin(t *testing.T) {
	srv, _, session := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + session.ID()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://app.bamboo.ai"}})
	require.NoError(t, err)
	conn.Close()
}
