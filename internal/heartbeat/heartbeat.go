// Package heartbeat provides liveness detection for the Lazy Tasks server.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultInterval is how often a running server refreshes its heartbeat.
const DefaultInterval = 30 * time.Second

// Status represents the liveness state of the server.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Info describes the running server. It is copied into every heartbeat.
type Info struct {
	Addr     string `json:"addr,omitempty"`
	Database string `json:"database,omitempty"`
	Telegram bool   `json:"telegram"`
}

// Heartbeat is the data written to the heartbeat file.
type Heartbeat struct {
	Info
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	// Dropped is the number of bus events lost to a full buffer.
	Dropped uint64 `json:"dropped_events,omitempty"`
}

// Writer periodically writes a heartbeat file to disk.
type Writer struct {
	path     string
	info     Info
	interval time.Duration
	dropped  func() uint64
	started  time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWriter creates a heartbeat writer that writes to path every
// DefaultInterval.
func NewWriter(path string, info Info) *Writer {
	return &Writer{
		path:     path,
		info:     info,
		interval: DefaultInterval,
	}
}

// SetInterval changes the refresh period. It must be called before Start.
func (w *Writer) SetInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

// ReportDropped makes every heartbeat include the value of fn.
func (w *Writer) ReportDropped(fn func() uint64) {
	w.dropped = fn
}

// Start begins writing heartbeat files in a background goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return // already running
	}

	w.started = time.Now()
	w.done = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	// Write initial heartbeat immediately
	w.write()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.write()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops writing and removes the heartbeat file.
func (w *Writer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}

	w.cancel()
	<-w.done
	w.cancel = nil

	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove heartbeat", "path", w.path, "error", err)
	}
}

func (w *Writer) write() {
	hb := Heartbeat{
		Info:      w.info,
		PID:       os.Getpid(),
		StartedAt: w.started,
		Timestamp: time.Now(),
		Uptime:    time.Since(w.started).Truncate(time.Second).String(),
	}
	if w.dropped != nil {
		hb.Dropped = w.dropped()
	}

	if err := writeFile(w.path, hb); err != nil {
		slog.Warn("write heartbeat", "path", w.path, "error", err)
	}
}

// writeFile replaces path atomically: tmp + rename.
func writeFile(path string, hb Heartbeat) error {
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Check reads a heartbeat file and returns the liveness status.
// maxAge determines how old a heartbeat can be before it's considered stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusDead, nil, nil
		}
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return StatusDead, nil, fmt.Errorf("unmarshal heartbeat: %w", err)
	}

	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, &hb, nil
	}

	return StatusAlive, &hb, nil
}
