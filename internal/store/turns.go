package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message in a conversation.
type Turn struct {
	ID        int64
	SessionID string
	ChatID    *int64
	Role      Role
	Content   string
	Intent    string
	Sentiment *float64
	Metadata  map[string]any
	CreatedAt time.Time
}

// NewTurn holds the fields for AppendTurn.
type NewTurn struct {
	SessionID string
	ChatID    *int64
	Role      Role
	Content   string
	Intent    string
	Sentiment *float64 // in [-1, 1]
	Metadata  map[string]any
}

// AppendTurn records a turn. Timestamps within a session strictly increase so
// that turns written in the same microsecond keep their insertion order.
func (q *Queries) AppendTurn(ctx context.Context, in NewTurn) (*Turn, error) {
	switch in.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return nil, fmt.Errorf("invalid turn role %q", in.Role)
	}
	if in.Sentiment != nil && (*in.Sentiment < -1 || *in.Sentiment > 1) {
		return nil, fmt.Errorf("sentiment %.2f out of range [-1, 1]", *in.Sentiment)
	}

	var meta any
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode turn metadata: %w", err)
		}
		meta = string(b)
	}

	ts := toMicros(q.now())
	var last sql.NullInt64
	if err := q.q.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM chat_turns WHERE session_id = ?`, in.SessionID).Scan(&last); err != nil {
		return nil, fmt.Errorf("read last turn time: %w", err)
	}
	if last.Valid && ts <= last.Int64 {
		ts = last.Int64 + 1
	}

	res, err := q.q.ExecContext(ctx,
		`INSERT INTO chat_turns (session_id, chat_id, role, content, intent, sentiment, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SessionID, in.ChatID, string(in.Role), in.Content,
		nullString(in.Intent), in.Sentiment, meta, ts)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("turn id: %w", err)
	}

	return &Turn{
		ID:        id,
		SessionID: in.SessionID,
		ChatID:    in.ChatID,
		Role:      in.Role,
		Content:   in.Content,
		Intent:    in.Intent,
		Sentiment: in.Sentiment,
		Metadata:  in.Metadata,
		CreatedAt: fromMicros(ts),
	}, nil
}

// RecentTurns returns up to limit of the latest turns of a session, oldest first.
func (q *Queries) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM chat_turns WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// TurnsBetween returns the turns of a session in [from, to), oldest first.
func (q *Queries) TurnsBetween(ctx context.Context, sessionID string, from, to time.Time) ([]*Turn, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM chat_turns
		 WHERE session_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC`, sessionID, toMicros(from), toMicros(to))
	if err != nil {
		return nil, fmt.Errorf("turns between: %w", err)
	}
	return scanTurns(rows)
}

// Sessions lists known session IDs with their turn count, most recently active first.
func (q *Queries) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MAX(created_at) FROM chat_turns
		 GROUP BY session_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s    SessionSummary
			last int64
		)
		if err := rows.Scan(&s.SessionID, &s.Turns, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.LastActivity = fromMicros(last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionSummary describes one conversation.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	Turns        int       `json:"turns"`
	LastActivity time.Time `json:"last_activity"`
}

const turnColumns = `id, session_id, chat_id, role, content, intent, sentiment, metadata, created_at`

func scanTurns(rows *sql.Rows) ([]*Turn, error) {
	defer rows.Close()

	var out []*Turn
	for rows.Next() {
		var (
			t         Turn
			role      string
			chatID    sql.NullInt64
			intent    sql.NullString
			sentiment sql.NullFloat64
			meta      sql.NullString
			created   int64
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &chatID, &role, &t.Content,
			&intent, &sentiment, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		t.Intent = intent.String
		if chatID.Valid {
			v := chatID.Int64
			t.ChatID = &v
		}
		if sentiment.Valid {
			v := sentiment.Float64
			t.Sentiment = &v
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of turn %d: %w", t.ID, err)
			}
		}
		t.CreatedAt = fromMicros(created)
		out = append(out, &t)
	}
	return out, rows.Err()
}
