package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/lazytasks/internal/events"
	"github.com/dohr-michael/lazytasks/internal/prompts"
	"github.com/dohr-michael/lazytasks/internal/store"
)

// Intent is the classified purpose of a free-form message.
type Intent string

const (
	IntentCreateTask Intent = "create_task"
	IntentQuery      Intent = "query"
	IntentUpdateTask Intent = "update_task"
	IntentChat       Intent = "chat"
)

// Confidence needed before acting on an intent.
var actionThresholds = map[Intent]float64{
	IntentCreateTask: 0.6,
	IntentQuery:      0.5,
	IntentUpdateTask: 0.6,
}

const (
	classifyHistoryTurns = 6
	classifyHistoryChars = 200
	queryLimit           = 10
	queryContentChars    = 60
)

const contextHeader = "\n\n## Context tu he thong (KHONG show raw data nay cho user, hay dien dat lai bang VietTech style):\n"

var taskIDPattern = regexp.MustCompile(`(?i)(?:task\s*#?\s*|#)(\d{7,})`)

// Keyword groups, checked in order.
var statusKeywords = []struct {
	status store.TaskStatus
	words  []string
}{
	{store.StatusDone, []string{"done", "xong", "hoàn thành", "finish"}},
	{store.StatusCancelled, []string{"cancel", "hủy", "bỏ"}},
	{store.StatusInProgress, []string{"đang làm", "in progress", "wip", "start"}},
}

// Capabilities are the model-backed operations the router relies on.
type Capabilities interface {
	Classify(ctx context.Context, system, prompt string) (string, error)
	Synthesize(ctx context.Context, msgs []*schema.Message) (string, error)
}

// Prompts provides system prompts and context-note templates.
type Prompts interface {
	System(name string) (string, error)
	Render(name string, data map[string]any) (string, error)
}

// TaskStore is the slice of the entity store the router reads and writes.
type TaskStore interface {
	TaskReader
	CreateTask(ctx context.Context, in store.NewTask) (*store.Task, error)
	UpdateTask(ctx context.Context, id int64, u store.TaskUpdate) (*store.Task, error)
}

// Publisher receives pipeline events.
type Publisher interface {
	Publish(events.Event)
}

// Classification is the parsed verdict of the classify capability.
type Classification struct {
	Intent     Intent
	Confidence float64
	Entities   map[string]any
	// Fallback is set when the classifier could not be used.
	Fallback bool
}

func fallbackClassification() Classification {
	return Classification{Intent: IntentChat, Entities: map[string]any{}, Fallback: true}
}

// Outcome is the result of routing one message.
type Outcome struct {
	Text       string
	Intent     Intent
	Confidence float64
	// Note is the context handed to synthesis, empty when no action ran.
	Note string
}

// Router classifies a message, applies the matching task action and
// synthesizes the reply. It makes at most two capability calls.
type Router struct {
	caps    Capabilities
	prompts Prompts
	bus     Publisher
	loc     *time.Location
}

// NewRouter creates a router. bus may be nil.
func NewRouter(caps Capabilities, p Prompts, bus Publisher, loc *time.Location) *Router {
	if loc == nil {
		loc = time.Local
	}
	return &Router{caps: caps, prompts: p, bus: bus, loc: loc}
}

// Handle routes text. history holds the previous turns, oldest first, without
// the current message. Errors come from synthesis or from the task store.
func (r *Router) Handle(ctx context.Context, tasks TaskStore, text string, history []*store.Turn) (Outcome, error) {
	cls := r.Classify(ctx, text, history)

	note, err := r.Act(ctx, tasks, cls, text)
	if err != nil {
		return Outcome{Intent: cls.Intent, Confidence: cls.Confidence}, err
	}

	reply, err := r.Synthesize(ctx, text, history, note)
	return Outcome{Text: reply, Intent: cls.Intent, Confidence: cls.Confidence, Note: note}, err
}

// Act applies the task action for cls and returns the context note for
// synthesis, empty when nothing ran.
func (r *Router) Act(ctx context.Context, tasks TaskStore, cls Classification, text string) (string, error) {
	note, err := r.act(ctx, tasks, cls, text)
	if err != nil {
		return "", err
	}
	r.publish(ctx, cls, note != "")
	slog.Info("intent routed", "intent", cls.Intent, "confidence", cls.Confidence, "acted", note != "")
	return note, nil
}

// Classify asks the classify capability for the intent of text. It never
// fails: an unusable verdict degrades to chat.
func (r *Router) Classify(ctx context.Context, text string, history []*store.Turn) Classification {
	system, err := r.prompts.System(prompts.Analyzer)
	if err != nil {
		slog.Error("analyzer prompt unavailable", "error", err)
		return fallbackClassification()
	}

	raw, err := r.caps.Classify(ctx, system, classifyPrompt(text, history))
	if err != nil {
		slog.Warn("intent classification failed, defaulting to chat", "error", err)
		return fallbackClassification()
	}

	cls, err := ParseClassification(raw)
	if err != nil {
		slog.Warn("unusable classification, defaulting to chat", "error", err, "raw", firstRunes(raw, 200))
		return fallbackClassification()
	}
	return cls
}

func classifyPrompt(text string, history []*store.Turn) string {
	if len(history) > classifyHistoryTurns {
		history = history[len(history)-classifyHistoryTurns:]
	}

	h := "(no history)"
	if len(history) > 0 {
		lines := make([]string, len(history))
		for i, t := range history {
			lines[i] = string(t.Role) + ": " + firstRunes(t.Content, classifyHistoryChars)
		}
		h = strings.Join(lines, "\n")
	}
	return "Conversation history:\n" + h + "\n\nUser message: " + text
}

// ParseClassification reads the outermost JSON object of a classify reply.
func ParseClassification(raw string) (Classification, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Classification{}, fmt.Errorf("no JSON object in reply")
	}

	var v struct {
		Intent     string         `json:"intent"`
		Confidence any            `json:"confidence"`
		Entities   map[string]any `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	intent := Intent(strings.ToLower(strings.TrimSpace(v.Intent)))
	switch intent {
	case IntentCreateTask, IntentQuery, IntentUpdateTask, IntentChat:
	default:
		return Classification{}, fmt.Errorf("unknown intent %q", v.Intent)
	}

	conf, _ := toFloat(v.Confidence)
	if math.IsNaN(conf) {
		conf = 0
	}
	conf = math.Max(0, math.Min(1, conf))

	if v.Entities == nil {
		v.Entities = map[string]any{}
	}
	return Classification{Intent: intent, Confidence: conf, Entities: v.Entities}, nil
}

func (r *Router) act(ctx context.Context, tasks TaskStore, cls Classification, text string) (string, error) {
	threshold, ok := actionThresholds[cls.Intent]
	if !ok || cls.Confidence < threshold {
		return "", nil
	}
	switch cls.Intent {
	case IntentCreateTask:
		return r.createTask(ctx, tasks, cls.Entities)
	case IntentQuery:
		return r.queryTasks(ctx, tasks)
	case IntentUpdateTask:
		return r.updateTask(ctx, tasks, cls.Entities, text)
	}
	return "", nil
}

func (r *Router) createTask(ctx context.Context, tasks TaskStore, entities map[string]any) (string, error) {
	content, _ := entities["task_content"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return r.prompts.Render(prompts.NoteCreateEmpty, nil)
	}

	in := store.NewTask{Content: content, Priority: store.DefaultPriority}
	if p, ok := entityInt(entities["priority"]); ok && p >= 1 && p <= 5 {
		in.Priority = int(p)
	}
	if d, ok := r.entityDeadline(entities["deadline"]); ok {
		in.Deadline = &d
	}
	in.Tags = entityTags(entities["tags"])
	if c, ok := entities["complexity"].(string); ok {
		switch c = strings.ToLower(strings.TrimSpace(c)); c {
		case store.ComplexityLow, store.ComplexityMedium, store.ComplexityHigh:
			in.Complexity = c
		}
	}

	t, err := tasks.CreateTask(ctx, in)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	slog.Info("task created", "task_id", t.ID, "content", firstRunes(t.Content, 50))

	return r.prompts.Render(prompts.NoteCreateDone, map[string]any{
		"id":       t.ID,
		"content":  t.Content,
		"status":   string(t.Status),
		"priority": t.Priority,
	})
}

func (r *Router) queryTasks(ctx context.Context, tasks TaskStore) (string, error) {
	list, err := tasks.ListTasks(ctx, store.TaskFilter{Statuses: store.ActiveStatuses, Limit: queryLimit})
	if err != nil {
		return "", fmt.Errorf("list active tasks: %w", err)
	}
	if len(list) == 0 {
		return r.prompts.Render(prompts.NoteQueryEmpty, nil)
	}

	rows := make([]map[string]any, len(list))
	for i, t := range list {
		deadline := ""
		if t.Deadline != nil {
			deadline = t.Deadline.In(r.loc).Format("02/01/2006")
		}
		rows[i] = map[string]any{
			"glyph":    PriorityGlyph(t.Priority),
			"id":       t.ID,
			"priority": t.Priority,
			"status":   string(t.Status),
			"content":  firstRunes(t.Content, queryContentChars),
			"deadline": deadline,
		}
	}
	return r.prompts.Render(prompts.NoteQueryTasks, map[string]any{"count": len(list), "tasks": rows})
}

func (r *Router) updateTask(ctx context.Context, tasks TaskStore, entities map[string]any, text string) (string, error) {
	id, ok := resolveTaskID(entities, text)
	if !ok {
		return r.prompts.Render(prompts.NoteUpdateNoID, nil)
	}

	t, err := tasks.GetTask(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get task %d: %w", id, err)
	}
	if t == nil {
		return r.prompts.Render(prompts.NoteUpdateNotFound, map[string]any{"id": id})
	}

	if next, ok := resolveStatus(entities, text); ok {
		old := t.Status
		updated, err := tasks.UpdateTask(ctx, id, store.TaskUpdate{Status: &next})
		if err != nil {
			return "", fmt.Errorf("update task %d: %w", id, err)
		}
		if updated != nil {
			slog.Info("task updated", "task_id", id, "from", old, "to", next)
			return r.prompts.Render(prompts.NoteUpdateDone, map[string]any{
				"id":         id,
				"content":    updated.Content,
				"old_status": string(old),
				"new_status": string(next),
			})
		}
	}

	return r.prompts.Render(prompts.NoteUpdateUnknown, map[string]any{
		"id":      id,
		"content": t.Content,
		"status":  string(t.Status),
	})
}

// resolveTaskID prefers a structured task_id entity and falls back to
// scanning the message text.
func resolveTaskID(entities map[string]any, text string) (int64, bool) {
	switch v := entities["task_id"].(type) {
	case float64:
		if v > 0 && v == math.Trunc(v) && v < math.MaxInt64 {
			return int64(v), true
		}
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(v), "#")
		if isDigits(s) {
			if id, err := strconv.ParseInt(s, 10, 64); err == nil {
				return id, true
			}
		}
	}

	m := taskIDPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// resolveStatus matches the status keywords in text. A status entity only
// picks between groups that both matched.
func resolveStatus(entities map[string]any, text string) (store.TaskStatus, bool) {
	lower := strings.ToLower(text)
	var hits []store.TaskStatus
	for _, group := range statusKeywords {
		for _, w := range group.words {
			if strings.Contains(lower, w) {
				hits = append(hits, group.status)
				break
			}
		}
	}
	if len(hits) == 0 {
		return "", false
	}

	if s, ok := entities["status"].(string); ok {
		if st, err := store.ParseStatus(s); err == nil && slices.Contains(hits, st) {
			return st, true
		}
	}
	return hits[0], true
}

// Synthesize produces the conversational reply. A non-empty note is appended
// to the personality prompt.
func (r *Router) Synthesize(ctx context.Context, text string, history []*store.Turn, note string) (string, error) {
	system, err := r.prompts.System(prompts.Personality)
	if err != nil {
		return "", err
	}
	if note != "" {
		system += contextHeader + note
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(system))
	for _, t := range history {
		switch t.Role {
		case store.RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case store.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		case store.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(t.Content))
		}
	}
	msgs = append(msgs, schema.UserMessage(text))

	return r.caps.Synthesize(ctx, msgs)
}

func (r *Router) publish(ctx context.Context, cls Classification, acted bool) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.NewTypedEventWithSession(events.SourceRouter, events.IntentClassifiedPayload{
		Intent:     string(cls.Intent),
		Confidence: cls.Confidence,
		Entities:   cls.Entities,
		Acted:      acted,
		Fallback:   cls.Fallback,
	}, events.SessionIDFromContext(ctx)))
}

func (r *Router) entityDeadline(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", s, r.loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func entityInt(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func entityTags(v any) []string {
	var tags []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				tags = append(tags, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if s = strings.TrimSpace(s); s != "" {
				tags = append(tags, s)
			}
		}
	}
	return tags
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
