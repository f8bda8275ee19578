package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// ActiveStatuses are the statuses shown on the dashboard.
var ActiveStatuses = []TaskStatus{StatusInProgress, StatusTodo}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// Complexity values accepted on a task.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

const DefaultPriority = 3

// Task is a unit of work owned by the user.
type Task struct {
	ID          int64
	Content     string
	Status      TaskStatus
	Priority    int
	Complexity  string
	Deadline    *time.Time
	Tags        []string
	ParentID    *int64
	ProjectID   *int64
	ProjectName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTask holds the fields for CreateTask. Zero values take defaults.
type NewTask struct {
	Content    string
	Status     TaskStatus
	Priority   int
	Complexity string
	Deadline   *time.Time
	Tags       []string
	ParentID   *int64
	ProjectID  *int64
}

// TaskUpdate lists the fields to change. Nil fields are left untouched.
type TaskUpdate struct {
	Content       *string
	Status        *TaskStatus
	Priority      *int
	Complexity    *string
	Deadline      *time.Time
	ClearDeadline bool
	Tags          []string
	SetTags       bool
	ProjectID     *int64
}

// TaskFilter narrows ListTasks. An empty Statuses slice matches every status.
type TaskFilter struct {
	Statuses []TaskStatus
	Limit    int
	// RecentFirst orders by last update instead of priority.
	RecentFirst bool
}

const taskColumns = `t.id, t.content, t.status, t.priority, t.complexity, t.deadline, t.tags,
	t.parent_id, t.project_id, COALESCE(p.name, ''), t.created_at, t.updated_at`

const taskFrom = ` FROM tasks t LEFT JOIN projects p ON p.id = t.project_id`

// CreateTask inserts a task and returns it with its assigned ID.
func (q *Queries) CreateTask(ctx context.Context, in NewTask) (*Task, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if in.Priority == 0 {
		in.Priority = DefaultPriority
	}
	if err := validatePriority(in.Priority); err != nil {
		return nil, err
	}
	if err := validateComplexity(in.Complexity); err != nil {
		return nil, err
	}

	tags, err := encodeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	now := toMicros(q.now())
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO tasks (content, status, priority, complexity, deadline, tags, parent_id, project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		content, string(in.Status), in.Priority, nullString(in.Complexity), nullTime(in.Deadline),
		tags, in.ParentID, in.ProjectID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	return q.GetTask(ctx, id)
}

// GetTask returns the task with the given ID, or nil when it does not exist.
func (q *Queries) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter. Default ordering is by
// priority (most urgent first) then newest first.
func (q *Queries) ListTasks(ctx context.Context, f TaskFilter) ([]*Task, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + taskColumns + taskFrom)
	if len(f.Statuses) > 0 {
		sb.WriteString(` WHERE t.status IN (`)
		for i, s := range f.Statuses {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, string(s))
		}
		sb.WriteString(")")
	}
	if f.RecentFirst {
		sb.WriteString(` ORDER BY t.updated_at DESC, t.id DESC`)
	} else {
		sb.WriteString(` ORDER BY t.priority ASC, t.created_at DESC, t.id DESC`)
	}
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	rows, err := q.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask applies u to the task and returns the new state, or nil when the
// task does not exist.
func (q *Queries) UpdateTask(ctx context.Context, id int64, u TaskUpdate) (*Task, error) {
	var (
		sets []string
		args []any
	)
	if u.Content != nil {
		c := strings.TrimSpace(*u.Content)
		if c == "" {
			return nil, ErrEmptyContent
		}
		sets = append(sets, "content = ?")
		args = append(args, c)
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.Priority != nil {
		if err := validatePriority(*u.Priority); err != nil {
			return nil, err
		}
		sets = append(sets, "priority = ?")
		args = append(args, *u.Priority)
	}
	if u.Complexity != nil {
		if err := validateComplexity(*u.Complexity); err != nil {
			return nil, err
		}
		sets = append(sets, "complexity = ?")
		args = append(args, nullString(*u.Complexity))
	}
	switch {
	case u.ClearDeadline:
		sets = append(sets, "deadline = NULL")
	case u.Deadline != nil:
		sets = append(sets, "deadline = ?")
		args = append(args, toMicros(*u.Deadline))
	}
	if u.SetTags {
		tags, err := encodeTags(u.Tags)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if u.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *u.ProjectID)
	}

	if len(sets) == 0 {
		return q.GetTask(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, toMicros(q.now()), id)

	res, err := q.q.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	if n == 0 {
		return nil, nil
	}
	return q.GetTask(ctx, id)
}

// SetParent attaches the task to parentID, or detaches it when parentID is nil.
// It refuses assignments that would make a task its own ancestor.
func (q *Queries) SetParent(ctx context.Context, id int64, parentID *int64) error {
	if parentID != nil {
		var cycle int
		err := q.q.QueryRowContext(ctx, `
			WITH RECURSIVE ancestors(id) AS (
				SELECT ?
				UNION
				SELECT t.parent_id FROM tasks t JOIN ancestors a ON t.id = a.id
				WHERE t.parent_id IS NOT NULL
			)
			SELECT COUNT(*) FROM ancestors WHERE id = ?`, *parentID, id).Scan(&cycle)
		if err != nil {
			return fmt.Errorf("check task ancestry: %w", err)
		}
		if cycle > 0 {
			return ErrTaskCycle
		}
	}

	res, err := q.q.ExecContext(ctx, `UPDATE tasks SET parent_id = ?, updated_at = ? WHERE id = ?`,
		parentID, toMicros(q.now()), id)
	if err != nil {
		return fmt.Errorf("set parent of task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d not found", id)
	}
	return nil
}

// CountTasksByStatus returns the number of tasks per status.
func (q *Queries) CountTasksByStatus(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		counts[TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*Task, error) {
	var (
		t          Task
		status     string
		complexity sql.NullString
		deadline   sql.NullInt64
		tags       sql.NullString
		parentID   sql.NullInt64
		projectID  sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	if err := r.Scan(&t.ID, &t.Content, &status, &t.Priority, &complexity, &deadline, &tags,
		&parentID, &projectID, &t.ProjectName, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Status = TaskStatus(status)
	t.Complexity = complexity.String
	if deadline.Valid {
		d := fromMicros(deadline.Int64)
		t.Deadline = &d
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of task %d: %w", t.ID, err)
		}
	}
	if parentID.Valid {
		v := parentID.Int64
		t.ParentID = &v
	}
	if projectID.Valid {
		v := projectID.Int64
		t.ProjectID = &v
	}
	t.CreatedAt = fromMicros(createdAt)
	t.UpdatedAt = fromMicros(updatedAt)
	return &t, nil
}

func validatePriority(p int) error {
	if p < 1 || p > 5 {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, p)
	}
	return nil
}

func validateComplexity(c string) error {
	switch c {
	case "", ComplexityLow, ComplexityMedium, ComplexityHigh:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidComplexity, c)
}

func encodeTags(tags []string) (any, error) {
	var clean []string
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			clean = append(clean, tag)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMicros(*t)
}
