package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/lazytasks/internal/store"
)

const defaultListLimit = 20

// TaskStore is the part of the store the tools need.
type TaskStore interface {
	CreateTask(ctx context.Context, in store.NewTask) (*store.Task, error)
	GetTask(ctx context.Context, id int64) (*store.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]*store.Task, error)
	UpdateTask(ctx context.Context, id int64, u store.TaskUpdate) (*store.Task, error)
	SetParent(ctx context.Context, id int64, parentID *int64) error
	EnsureProject(ctx context.Context, name string) (*store.Project, error)
	ListProjects(ctx context.Context) ([]*store.Project, error)
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

type tool struct {
	spec    toolSpec
	handler handlerFunc
}

var statusEnum = []string{
	string(store.StatusTodo),
	string(store.StatusInProgress),
	string(store.StatusDone),
	string(store.StatusCancelled),
}

// NewMCPServer creates an MCP server exposing task tools backed by tasks.
func NewMCPServer(tasks TaskStore, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "lazytasks",
		Version: version,
	}, nil)

	for _, t := range taskTools(tasks) {
		handler := t.handler
		toolName := t.spec.Name

		server.AddTool(toMCPTool(t.spec), func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			result, err := handler(ctx, req.Params.Arguments)
			if err != nil {
				slog.Debug("mcp tool error", "tool", toolName, "error", err)
				return &mcpsdk.CallToolResult{
					IsError: true,
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
				}, nil
			}
			data, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("encode %s result: %w", toolName, err)
			}
			return &mcpsdk.CallToolResult{
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
			}, nil
		})

		slog.Debug("mcp tool registered", "tool", toolName)
	}

	return server
}

// taskJSON is the wire form of a task.
type taskJSON struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	Status     string     `json:"status"`
	Priority   int        `json:"priority"`
	Complexity string     `json:"complexity,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Project    string     `json:"project,omitempty"`
	ParentID   *int64     `json:"parent_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toJSON(t *store.Task) taskJSON {
	return taskJSON{
		ID:         t.ID,
		Content:    t.Content,
		Status:     string(t.Status),
		Priority:   t.Priority,
		Complexity: t.Complexity,
		Deadline:   t.Deadline,
		Tags:       t.Tags,
		Project:    t.ProjectName,
		ParentID:   t.ParentID,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

type projectJSON struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

var errTaskNotFound = errors.New("task not found")

func taskTools(tasks TaskStore) []tool {
	return []tool{
		{
			spec: toolSpec{
				Name:        "list_tasks",
				Description: "List tasks ordered by priority then newest. Defaults to active tasks (todo and in_progress).",
				Parameters: map[string]paramSpec{
					"status": {Type: "string", Description: "Only tasks with this status", Enum: statusEnum},
					"limit":  {Type: "integer", Description: "Maximum number of tasks", Minimum: intPtr(1), Maximum: intPtr(100)},
					"recent": {Type: "boolean", Description: "Order by last update instead of priority"},
				},
			},
			handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					Status string `json:"status"`
					Limit  int    `json:"limit"`
					Recent bool   `json:"recent"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				filter := store.TaskFilter{Statuses: store.ActiveStatuses, Limit: defaultListLimit, RecentFirst: args.Recent}
				if args.Status != "" {
					st, err := store.ParseStatus(args.Status)
					if err != nil {
						return nil, err
					}
					filter.Statuses = []store.TaskStatus{st}
				}
				if args.Limit > 0 {
					filter.Limit = args.Limit
				}
				list, err := tasks.ListTasks(ctx, filter)
				if err != nil {
					return nil, err
				}
				out := make([]taskJSON, len(list))
				for i, t := range list {
					out[i] = toJSON(t)
				}
				return out, nil
			},
		},
		{
			spec: toolSpec{
				Name:        "get_task",
				Description: "Get one task by ID.",
				Parameters: map[string]paramSpec{
					"id": {Type: "integer", Description: "Task ID", Required: true},
				},
			},
			handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					ID int64 `json:"id"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				t, err := tasks.GetTask(ctx, args.ID)
				if err != nil {
					return nil, err
				}
				if t == nil {
					return nil, fmt.Errorf("%w: #%d", errTaskNotFound, args.ID)
				}
				return toJSON(t), nil
			},
		},
		{
			spec: toolSpec{
				Name:        "create_task",
				Description: "Create a task.",
				Parameters: map[string]paramSpec{
					"content":    {Type: "string", Description: "What needs to be done", Required: true},
					"priority":   {Type: "integer", Description: "1 (most urgent) to 5", Minimum: intPtr(1), Maximum: intPtr(5)},
					"deadline":   {Type: "string", Description: "Deadline, RFC3339 or YYYY-MM-DD"},
					"tags":       {Type: "array", Description: "Tags without the leading #"},
					"complexity": {Type: "string", Description: "Estimated complexity", Enum: []string{store.ComplexityLow, store.ComplexityMedium, store.ComplexityHigh}},
					"project":    {Type: "string", Description: "Project name, created when missing"},
					"parent_id":  {Type: "integer", Description: "Parent task ID"},
				},
			},
			handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					Content    string   `json:"content"`
					Priority   int      `json:"priority"`
					Deadline   string   `json:"deadline"`
					Tags       []string `json:"tags"`
					Complexity string   `json:"complexity"`
					Project    string   `json:"project"`
					ParentID   int64    `json:"parent_id"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				in := store.NewTask{
					Content:    args.Content,
					Priority:   args.Priority,
					Tags:       args.Tags,
					Complexity: strings.ToLower(args.Complexity),
				}
				if args.Deadline != "" {
					d, err := parseDeadline(args.Deadline)
					if err != nil {
						return nil, err
					}
					in.Deadline = &d
				}
				if args.ParentID != 0 {
					parent, err := tasks.GetTask(ctx, args.ParentID)
					if err != nil {
						return nil, err
					}
					if parent == nil {
						return nil, fmt.Errorf("%w: parent #%d", errTaskNotFound, args.ParentID)
					}
					in.ParentID = &parent.ID
				}
				if strings.TrimSpace(args.Project) != "" {
					p, err := tasks.EnsureProject(ctx, args.Project)
					if err != nil {
						return nil, err
					}
					in.ProjectID = &p.ID
				}
				t, err := tasks.CreateTask(ctx, in)
				if err != nil {
					return nil, err
				}
				return toJSON(t), nil
			},
		},
		{
			spec: toolSpec{
				Name:        "update_task_status",
				Description: "Change the status of a task.",
				Parameters: map[string]paramSpec{
					"id":     {Type: "integer", Description: "Task ID", Required: true},
					"status": {Type: "string", Description: "New status", Required: true, Enum: statusEnum},
				},
			},
			handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					ID     int64  `json:"id"`
					Status string `json:"status"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				st, err := store.ParseStatus(args.Status)
				if err != nil {
					return nil, err
				}
				t, err := tasks.UpdateTask(ctx, args.ID, store.TaskUpdate{Status: &st})
				if err != nil {
					return nil, err
				}
				if t == nil {
					return nil, fmt.Errorf("%w: #%d", errTaskNotFound, args.ID)
				}
				return toJSON(t), nil
			},
		},
		{
			spec: toolSpec{
				Name:        "set_task_parent",
				Description: "Attach a task to a parent task. Omit parent_id to detach it.",
				Parameters: map[string]paramSpec{
					"id":        {Type: "integer", Description: "Task ID", Required: true},
					"parent_id": {Type: "integer", Description: "Parent task ID"},
				},
			},
			handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
				var args struct {
					ID       int64 `json:"id"`
					ParentID int64 `json:"parent_id"`
				}
				if err := decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				t, err := tasks.GetTask(ctx, args.ID)
				if err != nil {
					return nil, err
				}
				if t == nil {
					return nil, fmt.Errorf("%w: #%d", errTaskNotFound, args.ID)
				}
				var parent *int64
				if args.ParentID != 0 {
					p, err := tasks.GetTask(ctx, args.ParentID)
					if err != nil {
						return nil, err
					}
					if p == nil {
						return nil, fmt.Errorf("%w: parent #%d", errTaskNotFound, args.ParentID)
					}
					parent = &p.ID
				}
				if err := tasks.SetParent(ctx, args.ID, parent); err != nil {
					return nil, err
				}
				if t, err = tasks.GetTask(ctx, args.ID); err != nil {
					return nil, err
				}
				return toJSON(t), nil
			},
		},
		{
			spec: toolSpec{
				Name:        "list_projects",
				Description: "List projects by name.",
				Parameters:  map[string]paramSpec{},
			},
			handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				projects, err := tasks.ListProjects(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]projectJSON, len(projects))
				for i, p := range projects {
					out[i] = projectJSON{
						Name:        p.Name,
						Description: p.Description,
						Status:      string(p.Status),
						CreatedAt:   p.CreatedAt,
					}
				}
				return out, nil
			},
		},
	}
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
