package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/insight"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/service/onboarding"
	"github.com/zhouzirui/bamboo-onboard/backend/internal/store"
)

type stubInsights struct{}

func (stubInsights) Probe(context.Context, string) error { return nil }
func (stubInsights) Fetch(context.Context, string) insight.Result {
	return insight.Failed(errors.New("offline"))
}

func setupRouter(t *testing.T) (*chi.Mux, *onboarding.Manager) {
	t.Helper()
	manager := onboarding.NewManager(onboarding.ManagerConfig{
		Gateway:  store.NewGateway(store.NewMemoryRepository(), nil, nil),
		Insights: stubInsights{},
		Pacer:    onboarding.NoDelay{},
	})
	t.Cleanup(manager.CloseAll)

	r := chi.NewRouter()
	New(manager, nil).RegisterRoutes(r)
	return r, manager
}

func openSession(t *testing.T, r http.Handler, body string) onboarding.Snapshot {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/session?wait=1", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var snap onboarding.Snapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestOpenSessionGreets(t *testing.T) {
	r, _ := setupRouter(t)

	snap := openSession(t, r, `{"deviceId":"device-1","conversationId":"chat-1"}`)

	if snap.DeviceID != "device-1" || snap.ConversationKey != "chat-1" {
		t.Fatalf("unexpected identity: %+v", snap)
	}
	if snap.Cursor != onboarding.QuestionEmail {
		t.Fatalf("expected cursor email, got %s", snap.Cursor)
	}
	if len(snap.Messages) == 0 || snap.Messages[0].Text != onboarding.GreetingIntro {
		t.Fatalf("expected greeting, got %+v", snap.Messages)
	}
}

func TestOpenSessionWithoutBodySetsCookie(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/session?id=campaign", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var snap onboarding.Snapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.ConversationKey != "campaign" {
		t.Fatalf("query id should override the conversation key, got %q", snap.ConversationKey)
	}
	if snap.DeviceID == "" {
		t.Fatal("device id should be generated")
	}

	found := false
	for _, c := range resp.Result().Cookies() {
		if c.Value == snap.DeviceID {
			found = true
		}
	}
	if !found {
		t.Fatal("device id cookie not set")
	}
}

func TestSendMessage(t *testing.T) {
	r, _ := setupRouter(t)
	snap := openSession(t, r, `{"deviceId":"device-1","conversationId":"chat-1"}`)

	req := httptest.NewRequest(http.MethodPost, "/session/"+snap.SessionID+"/messages", bytes.NewBufferString(`{"text":"jay@bamboo.ai"}`))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out sendMessageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Cursor != onboarding.QuestionWebsite {
		t.Fatalf("expected cursor website, got %s", out.Cursor)
	}
	if n := len(out.Messages); n != 2 || out.Messages[1].Text != onboarding.WebsiteQuestion {
		t.Fatalf("unexpected messages: %+v", out.Messages)
	}
}

func TestSendMessageErrors(t *testing.T) {
	r, _ := setupRouter(t)
	snap := openSession(t, r, `{}`)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown session", "/session/missing/messages", `{"text":"hi"}`, http.StatusNotFound},
		{"empty text", "/session/" + snap.SessionID + "/messages", `{"text":"  "}`, http.StatusBadRequest},
		{"bad json", "/session/" + snap.SessionID + "/messages", `{`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body))
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestResetAndClose(t *testing.T) {
	r, manager := setupRouter(t)
	snap := openSession(t, r, `{}`)

	req := httptest.NewRequest(http.MethodDelete, "/session/"+snap.SessionID+"/messages", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/session/"+snap.SessionID, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if manager.Len() != 0 {
		t.Fatalf("session still registered")
	}

	req = httptest.NewRequest(http.MethodGet, "/session/"+snap.SessionID, nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
