package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/lazytasks/internal/events"
	"github.com/dohr-michael/lazytasks/internal/prompts"
	"github.com/dohr-michael/lazytasks/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "dispatch.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedTask creates a task and optionally moves it to status.
func seedTask(t *testing.T, db *store.DB, in store.NewTask) *store.Task {
	t.Helper()
	task, err := db.CreateTask(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateTask(%q): %v", in.Content, err)
	}
	return task
}

func testPrompts(t *testing.T) *prompts.Set {
	t.Helper()
	p, err := prompts.Load("")
	if err != nil {
		t.Fatalf("prompts.Load: %v", err)
	}
	return p
}

// fakeCaps is a scripted Capabilities implementation.
type fakeCaps struct {
	mu sync.Mutex

	classifyReply string
	classifyErr   error
	synthReply    string
	synthErr      error

	classifyCalls int
	synthCalls    int
	lastSystem    string
	lastPrompt    string
	lastMessages  []*schema.Message
}

func (f *fakeCaps) Classify(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classifyCalls++
	f.lastSystem = system
	f.lastPrompt = prompt
	if f.classifyErr != nil {
		return "", f.classifyErr
	}
	return f.classifyReply, nil
}

func (f *fakeCaps) Synthesize(_ context.Context, msgs []*schema.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls++
	f.lastMessages = msgs
	if f.synthErr != nil {
		return "", f.synthErr
	}
	if f.synthReply == "" {
		return "ok anh", nil
	}
	return f.synthReply, nil
}

// systemPrompt returns the system message of the last synthesis call.
func (f *fakeCaps) systemPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lastMessages) == 0 {
		return ""
	}
	return f.lastMessages[0].Content
}

type sentMessage struct {
	chatID int64
	reply  Reply
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) Send(_ context.Context, chatID int64, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{chatID: chatID, reply: reply})
	return s.err
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) ofType(t events.EventType) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

var errBoom = errors.New("boom")

var testLoc = time.FixedZone("ICT", 7*3600)
