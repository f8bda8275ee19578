package store

import (
	"context"
	"fmt"
	"time"
)

// SessionUsage accumulates LLM token usage for one session.
type SessionUsage struct {
	SessionID    string    `json:"session_id"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Calls        int64     `json:"calls"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AddUsage adds one LLM call worth of tokens to the session totals.
func (q *Queries) AddUsage(ctx context.Context, sessionID string, input, output int64) error {
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO session_usage (session_id, input_tokens, output_tokens, calls, updated_at)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   input_tokens  = input_tokens + excluded.input_tokens,
		   output_tokens = output_tokens + excluded.output_tokens,
		   calls         = calls + 1,
		   updated_at    = excluded.updated_at`,
		sessionID, input, output, toMicros(q.now()))
	if err != nil {
		return fmt.Errorf("add usage for %s: %w", sessionID, err)
	}
	return nil
}

// ListUsage returns per-session totals, most recently updated first.
func (q *Queries) ListUsage(ctx context.Context) ([]SessionUsage, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT session_id, input_tokens, output_tokens, calls, updated_at
		 FROM session_usage ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []SessionUsage
	for rows.Next() {
		var (
			u       SessionUsage
			updated int64
		)
		if err := rows.Scan(&u.SessionID, &u.InputTokens, &u.OutputTokens, &u.Calls, &updated); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		u.UpdatedAt = fromMicros(updated)
		out = append(out, u)
	}
	return out, rows.Err()
}
