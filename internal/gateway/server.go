package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/lazytasks/internal/dispatch"
	"github.com/dohr-michael/lazytasks/internal/events"
	"github.com/dohr-michael/lazytasks/internal/gateway/ws"
	"github.com/dohr-michael/lazytasks/internal/store"
	"github.com/dohr-michael/lazytasks/internal/telegram"
)

// SecretHeader carries the webhook secret on Telegram deliveries.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// SessionSource lists conversations, their turns and their model usage.
type SessionSource interface {
	Sessions(ctx context.Context) ([]store.SessionSummary, error)
	TurnsBetween(ctx context.Context, sessionID string, from, to time.Time) ([]*store.Turn, error)
	ListUsage(ctx context.Context) ([]store.SessionUsage, error)
}

// Server is the Lazy Tasks gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	sessions   SessionSource
	dispatcher ws.Dispatcher
	secret     func() string
}

// NewServer creates a new gateway server. secret returns the current
// webhook secret; an empty secret disables the check.
func NewServer(bus *events.Bus, sessions SessionSource, dispatcher ws.Dispatcher, secret func() string, host string, port int) *Server {
	if secret == nil {
		secret = func() string { return "" }
	}
	hub := ws.NewHub(bus, dispatcher)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	s := &Server{
		hub:        hub,
		bus:        bus,
		sessions:   sessions,
		dispatcher: dispatcher,
		secret:     secret,
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook/telegram", s.handleTelegramWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ws", hub.ServeWS)
		r.Get("/events", s.handleEvents)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{sessionID}/turns", s.handleSessionTurns)
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("lazytasks gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("encode response", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Lazy Tasks - Personal AI Executive Assistant"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.secret(); secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			slog.Warn("invalid webhook secret token", "remote", r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Invalid secret token"})
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	slog.Info("telegram update received", "update_id", update.UpdateID)

	if msg := update.Message; msg != nil && s.dispatcher != nil {
		in := dispatch.Inbound{
			Platform:  telegram.Platform,
			ChatID:    msg.Chat.ID,
			Text:      msg.Text,
			MessageID: msg.MessageID,
		}
		if msg.From != nil {
			in.UserID = msg.From.ID
			in.Username = msg.From.Username
			in.FirstName = msg.From.FirstName
		}
		// Finish the unit of work even if Telegram drops the request.
		ctx := context.WithoutCancel(r.Context())
		if _, err := s.dispatcher.Dispatch(ctx, in); err != nil {
			slog.Error("telegram dispatch failed", "update_id", update.UpdateID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	writeJSON(w, http.StatusOK, result)
}

type sessionJSON struct {
	SessionID    string    `json:"session_id"`
	Turns        int       `json:"turns"`
	LastActivity time.Time `json:"last_activity,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Calls        int64     `json:"calls"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()

	summaries, err := s.sessions.Sessions(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	usage, err := s.sessions.ListUsage(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	byID := make(map[string]*sessionJSON, len(summaries))
	result := make([]*sessionJSON, 0, len(summaries))
	for _, sum := range summaries {
		sj := &sessionJSON{SessionID: sum.SessionID, Turns: sum.Turns, LastActivity: sum.LastActivity}
		byID[sum.SessionID] = sj
		result = append(result, sj)
	}
	for _, u := range usage {
		sj, ok := byID[u.SessionID]
		if !ok {
			sj = &sessionJSON{SessionID: u.SessionID, LastActivity: u.UpdatedAt}
			byID[u.SessionID] = sj
			result = append(result, sj)
		}
		sj.InputTokens = u.InputTokens
		sj.OutputTokens = u.OutputTokens
		sj.Calls = u.Calls
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})

	writeJSON(w, http.StatusOK, result)
}

type turnJSON struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleSessionTurns returns the turns of one session logged within the
// last ?since duration (default 24h), oldest first.
func (s *Server) handleSessionTurns(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "store not available", http.StatusServiceUnavailable)
		return
	}

	since := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = d
	}

	// Timestamps may run slightly ahead of the clock to keep insertion order.
	now := time.Now()
	turns, err := s.sessions.TurnsBetween(r.Context(), chi.URLParam(r, "sessionID"), now.Add(-since), now.Add(time.Second))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := make([]turnJSON, len(turns))
	for i, t := range turns {
		result[i] = turnJSON{
			ID:        t.ID,
			Role:      string(t.Role),
			Content:   t.Content,
			Intent:    t.Intent,
			CreatedAt: t.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, result)
}
