// Package storage holds the bus subscribers that persist what flows through
// the event bus: per-session model usage and the JSONL event log.
package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/lazytasks/internal/events"
)

const usageQueueSize = 256

// UsageRecorder persists model usage for a session.
type UsageRecorder interface {
	AddUsage(ctx context.Context, sessionID string, input, output int64) error
}

// UsageTracker subscribes to LLM call events and accumulates token usage per
// session. Writes happen on the tracker's own goroutine so a slow store never
// stalls the bus.
type UsageTracker struct {
	store       UsageRecorder
	events      <-chan events.Event
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewUsageTracker starts a tracker listening for LLM call events.
func NewUsageTracker(bus *events.Bus, store UsageRecorder) *UsageTracker {
	ch, unsubscribe := bus.SubscribeChan(usageQueueSize, events.EventLLMCall)
	ut := &UsageTracker{
		store:       store,
		events:      ch,
		unsubscribe: unsubscribe,
	}
	ut.wg.Add(1)
	go ut.run()
	return ut
}

// Close unsubscribes the tracker and waits for queued events to be written.
func (ut *UsageTracker) Close() {
	ut.unsubscribe()
	ut.wg.Wait()
}

func (ut *UsageTracker) run() {
	defer ut.wg.Done()
	for e := range ut.events {
		ut.record(e)
	}
}

func (ut *UsageTracker) record(e events.Event) {
	if e.SessionID == "" {
		return
	}
	payload, ok := events.ExtractPayload[events.LLMCallPayload](e)
	if !ok || payload.Error != "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ut.store.AddUsage(ctx, e.SessionID, int64(payload.TokensInput), int64(payload.TokensOutput)); err != nil {
		slog.Error("usage tracker: add usage", "session_id", e.SessionID, "error", err)
	}
}
