package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/lazytasks/internal/dispatch"
	"github.com/dohr-michael/lazytasks/internal/events"
	"github.com/dohr-michael/lazytasks/internal/store"
)

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

type recordingDispatcher struct {
	mu  sync.Mutex
	got []dispatch.Inbound
}

func (d *recordingDispatcher) Dispatch(_ context.Context, in dispatch.Inbound) (dispatch.Reply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, in)
	return dispatch.Reply{Text: "ok"}, nil
}

type testServer struct {
	*Server
	db         *store.DB
	dispatcher *recordingDispatcher
	secret     string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "gw.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ts := &testServer{db: db, dispatcher: &recordingDispatcher{}}
	ts.Server = NewServer(bus, db, ts.dispatcher, func() string { return ts.secret }, "localhost", 0)
	t.Cleanup(func() { ts.hub.Close() })
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := srv.do(httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["status"] != "healthy" {
			t.Fatalf("%s: expected status %q, got %q", path, "healthy", body["status"])
		}
	}
}

func TestHandleRoot(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(w.Body.String(), "Lazy Tasks - Personal AI Executive Assistant") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

const sampleUpdate = `{
  "update_id": 10,
  "message": {
    "message_id": 77,
    "from": {"id": 9, "is_bot": false, "first_name": "Lazy", "username": "lazydev"},
    "chat": {"id": 42, "type": "private"},
    "date": 1700000000,
    "text": "/tasks"
  }
}`

func TestTelegramWebhook_Dispatches(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(sampleUpdate)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	got := srv.dispatcher.got
	if len(got) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(got))
	}
	want := dispatch.Inbound{Platform: "telegram", ChatID: 42, UserID: 9, Username: "lazydev", FirstName: "Lazy", Text: "/tasks", MessageID: 77}
	if got[0] != want {
		t.Errorf("inbound = %+v, want %+v", got[0], want)
	}
}

func TestTelegramWebhook_Secret(t *testing.T) {
	srv := newTestServer(t)
	srv.secret = "s3cret"

	tests := []struct {
		header string
		code   int
	}{
		{"", http.StatusForbidden},
		{"wrong", http.StatusForbidden},
		{"s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(sampleUpdate))
		if tt.header != "" {
			req.Header.Set(SecretHeader, tt.header)
		}
		if w := srv.do(req); w.Code != tt.code {
			t.Errorf("header %q: status %d, want %d", tt.header, w.Code, tt.code)
		}
	}
	if len(srv.dispatcher.got) != 1 {
		t.Errorf("only the authenticated update may be dispatched, got %d", len(srv.dispatcher.got))
	}
}

func TestTelegramWebhook_NonMessageUpdate(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id": 11}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if len(srv.dispatcher.got) != 0 {
		t.Error("updates without a message must not be dispatched")
	}

	w = srv.do(httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed update: status %d, want 400", w.Code)
	}
}

func TestHandleEvents_LimitParam(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewEvent(events.EventIncomingMessage, events.SourceTelegram, map[string]any{"i": i}))
	}
	waitForEvents(srv.bus, 10)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/api/events?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}

	if w := srv.do(httptest.NewRequest(http.MethodGet, "/api/events?limit=abc", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: status %d, want 400", w.Code)
	}
}

func TestHandleEvents_Empty(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(httptest.NewRequest(http.MethodGet, "/api/events", nil))
	var body []any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleSessions(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	chat := int64(42)
	for _, role := range []store.Role{store.RoleUser, store.RoleAssistant} {
		if _, err := srv.db.AppendTurn(ctx, store.NewTurn{SessionID: "telegram_42", ChatID: &chat, Role: role, Content: "x"}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}
	if err := srv.db.AddUsage(ctx, "telegram_42", 100, 20); err != nil {
		t.Fatalf("AddUsage: %v", err)
	}
	if err := srv.db.AddUsage(ctx, "ws_1", 5, 1); err != nil {
		t.Fatalf("AddUsage: %v", err)
	}

	w := srv.do(httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body []sessionJSON
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(body))
	}

	byID := map[string]sessionJSON{}
	for _, s := range body {
		byID[s.SessionID] = s
	}
	if tg := byID["telegram_42"]; tg.Turns != 2 || tg.InputTokens != 100 || tg.OutputTokens != 20 || tg.Calls != 1 {
		t.Errorf("telegram session = %+v", tg)
	}
	if ws := byID["ws_1"]; ws.Turns != 0 || ws.InputTokens != 5 {
		t.Errorf("ws session = %+v", ws)
	}
}

func TestHandleSessionTurns(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	chat := int64(42)
	for _, tt := range []struct {
		session string
		role    store.Role
		content string
	}{
		{"telegram_42", store.RoleUser, "tạo task review PR"},
		{"telegram_42", store.RoleAssistant, "ok anh"},
		{"telegram_7", store.RoleUser, "other chat"},
	} {
		if _, err := srv.db.AppendTurn(ctx, store.NewTurn{SessionID: tt.session, ChatID: &chat, Role: tt.role, Content: tt.content}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantTurns  []string
	}{
		{"default window", "/api/sessions/telegram_42/turns", http.StatusOK, []string{"tạo task review PR", "ok anh"}},
		{"explicit window", "/api/sessions/telegram_42/turns?since=1h", http.StatusOK, []string{"tạo task review PR", "ok anh"}},
		{"unknown session", "/api/sessions/ws_9/turns", http.StatusOK, []string{}},
		{"bad since", "/api/sessions/telegram_42/turns?since=yesterday", http.StatusBadRequest, nil},
		{"negative since", "/api/sessions/telegram_42/turns?since=-1h", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(httptest.NewRequest(http.MethodGet, tt.url, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantTurns == nil {
				return
			}
			var body []turnJSON
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			got := make([]string, len(body))
			for i, turn := range body {
				got[i] = turn.Content
			}
			if strings.Join(got, "|") != strings.Join(tt.wantTurns, "|") {
				t.Errorf("turns = %q, want %q", got, tt.wantTurns)
			}
		})
	}
}
