package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/lazytasks/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func findTool(t *testing.T, tasks TaskStore, name string) tool {
	t.Helper()
	for _, tl := range taskTools(tasks) {
		if tl.spec.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %q not registered", name)
	return tool{}
}

func call(t *testing.T, tl tool, args string) (any, error) {
	t.Helper()
	return tl.handler(context.Background(), json.RawMessage(args))
}

func TestToMCPTool(t *testing.T) {
	spec := toolSpec{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: map[string]paramSpec{
			"name":  {Type: "string", Description: "The name", Required: true},
			"count": {Type: "integer", Description: "A count", Minimum: intPtr(1)},
			"mode":  {Type: "string", Description: "The mode", Required: true, Enum: []string{"fast", "slow"}},
		},
	}

	mcpTool := toMCPTool(spec)
	if mcpTool.Name != "test_tool" {
		t.Errorf("Name = %q, want %q", mcpTool.Name, "test_tool")
	}

	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		t.Fatalf("marshal InputSchema: %v", err)
	}
	var schema struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		t.Fatalf("unmarshal InputSchema: %v", err)
	}

	if schema.Type != "object" {
		t.Errorf("schema type = %q, want object", schema.Type)
	}
	if len(schema.Properties) != 3 {
		t.Errorf("properties = %d, want 3", len(schema.Properties))
	}
	if got := strings.Join(schema.Required, ","); got != "mode,name" {
		t.Errorf("required = %q, want %q", got, "mode,name")
	}
	if schema.Properties["count"]["minimum"] != float64(1) {
		t.Errorf("count.minimum = %v, want 1", schema.Properties["count"]["minimum"])
	}
	if enum, ok := schema.Properties["mode"]["enum"].([]any); !ok || len(enum) != 2 {
		t.Errorf("mode.enum = %v", schema.Properties["mode"]["enum"])
	}
}

func TestToMCPTool_NoRequired(t *testing.T) {
	mcpTool := toMCPTool(toolSpec{Name: "empty"})
	schema := mcpTool.InputSchema.(map[string]any)
	if _, ok := schema["required"]; ok {
		t.Error("required should be omitted when no parameter is required")
	}
}

func TestCreateTask(t *testing.T) {
	db := openTestDB(t)
	create := findTool(t, db, "create_task")

	res, err := call(t, create, `{"content":"Review PR","priority":2,"deadline":"2026-03-10","tags":["work"],"complexity":"HIGH"}`)
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}
	got := res.(taskJSON)
	if got.ID == 0 || got.Content != "Review PR" || got.Priority != 2 {
		t.Errorf("task = %+v", got)
	}
	if got.Complexity != store.ComplexityHigh {
		t.Errorf("complexity = %q, want high", got.Complexity)
	}
	if got.Deadline == nil || got.Deadline.Format("2006-01-02") != "2026-03-10" {
		t.Errorf("deadline = %v", got.Deadline)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "work" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestCreateTask_Errors(t *testing.T) {
	db := openTestDB(t)
	create := findTool(t, db, "create_task")

	tests := []struct {
		name string
		args string
		want error
	}{
		{"empty content", `{"content":"  "}`, store.ErrEmptyContent},
		{"bad priority", `{"content":"x","priority":9}`, store.ErrInvalidPriority},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := call(t, create, tt.args); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := call(t, create, `{"content":"x","deadline":"tomorrow"}`); err == nil {
		t.Error("expected error for unparseable deadline")
	}
	if _, err := call(t, create, `{"content":`); err == nil {
		t.Error("expected error for malformed arguments")
	}
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	var ids []int64
	for _, c := range []string{"a", "b", "c"} {
		task, err := db.CreateTask(ctx, store.NewTask{Content: c})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		ids = append(ids, task.ID)
	}
	done := store.StatusDone
	updated, err := db.UpdateTask(ctx, ids[0], store.TaskUpdate{Status: &done})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated == nil {
		t.Fatalf("UpdateTask(%d) found no task", ids[0])
	}
	list := findTool(t, db, "list_tasks")

	res, err := call(t, list, ``)
	if err != nil {
		t.Fatalf("list_tasks: %v", err)
	}
	if n := len(res.([]taskJSON)); n != 2 {
		t.Errorf("active tasks = %d, want 2", n)
	}

	res, err = call(t, list, `{"status":"done"}`)
	if err != nil {
		t.Fatalf("list_tasks done: %v", err)
	}
	if got := res.([]taskJSON); len(got) != 1 || got[0].ID != ids[0] {
		t.Errorf("done tasks = %+v", got)
	}

	res, err = call(t, list, `{"limit":1}`)
	if err != nil {
		t.Fatalf("list_tasks limit: %v", err)
	}
	if n := len(res.([]taskJSON)); n != 1 {
		t.Errorf("limited tasks = %d, want 1", n)
	}

	if _, err := call(t, list, `{"status":"blocked"}`); !errors.Is(err, store.ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestGetAndUpdateStatus(t *testing.T) {
	db := openTestDB(t)
	task, err := db.CreateTask(context.Background(), store.NewTask{Content: "Write report"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	get := findTool(t, db, "get_task")
	update := findTool(t, db, "update_task_status")

	if _, err := call(t, get, `{"id":999}`); !errors.Is(err, errTaskNotFound) {
		t.Errorf("get missing: err = %v, want errTaskNotFound", err)
	}
	if _, err := call(t, update, `{"id":999,"status":"done"}`); !errors.Is(err, errTaskNotFound) {
		t.Errorf("update missing: err = %v, want errTaskNotFound", err)
	}

	args, _ := json.Marshal(map[string]any{"id": task.ID, "status": "in_progress"})
	if _, err := call(t, update, string(args)); err != nil {
		t.Fatalf("update_task_status: %v", err)
	}

	args, _ = json.Marshal(map[string]any{"id": task.ID})
	res, err := call(t, get, string(args))
	if err != nil {
		t.Fatalf("get_task: %v", err)
	}
	if got := res.(taskJSON); got.Status != string(store.StatusInProgress) {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
}

func TestProjectsAndParents(t *testing.T) {
	db := openTestDB(t)
	create := findTool(t, db, "create_task")
	setParent := findTool(t, db, "set_task_parent")
	projects := findTool(t, db, "list_projects")

	res, err := call(t, create, `{"content":"Migrate DB","project":"infra"}`)
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}
	epic := res.(taskJSON)
	if epic.Project != "infra" || epic.ParentID != nil {
		t.Errorf("epic = %+v", epic)
	}

	res, err = call(t, create, fmt.Sprintf(`{"content":"Dump tables","project":"infra","parent_id":%d}`, epic.ID))
	if err != nil {
		t.Fatalf("create_task with parent: %v", err)
	}
	child := res.(taskJSON)
	if child.Project != "infra" || child.ParentID == nil || *child.ParentID != epic.ID {
		t.Errorf("child = %+v", child)
	}

	if _, err := call(t, create, `{"content":"Orphan","parent_id":4242}`); !errors.Is(err, errTaskNotFound) {
		t.Errorf("missing parent: err = %v, want errTaskNotFound", err)
	}

	res, err = call(t, projects, ``)
	if err != nil {
		t.Fatalf("list_projects: %v", err)
	}
	if got := res.([]projectJSON); len(got) != 1 || got[0].Name != "infra" || got[0].Status != "active" {
		t.Errorf("projects = %+v", got)
	}

	tests := []struct {
		name    string
		args    string
		wantErr error
		wantNil bool
	}{
		{"cycle", fmt.Sprintf(`{"id":%d,"parent_id":%d}`, epic.ID, child.ID), store.ErrTaskCycle, false},
		{"missing task", `{"id":4242}`, errTaskNotFound, false},
		{"missing parent", fmt.Sprintf(`{"id":%d,"parent_id":4242}`, child.ID), errTaskNotFound, false},
		{"detach", fmt.Sprintf(`{"id":%d}`, child.ID), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := call(t, setParent, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("set_task_parent: %v", err)
			}
			if got := res.(taskJSON); (got.ParentID == nil) != tt.wantNil {
				t.Errorf("parent = %v", got.ParentID)
			}
		})
	}
}

func TestListTasks_Recent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})

	urgent, _ := db.CreateTask(ctx, store.NewTask{Content: "urgent", Priority: 1})
	lazy, _ := db.CreateTask(ctx, store.NewTask{Content: "lazy", Priority: 5})
	started := store.StatusInProgress
	if _, err := db.UpdateTask(ctx, lazy.ID, store.TaskUpdate{Status: &started}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	list := findTool(t, db, "list_tasks")
	for _, tt := range []struct {
		args  string
		first int64
	}{
		{``, urgent.ID},
		{`{"recent":true}`, lazy.ID},
	} {
		res, err := call(t, list, tt.args)
		if err != nil {
			t.Fatalf("list_tasks(%s): %v", tt.args, err)
		}
		if got := res.([]taskJSON); len(got) != 2 || got[0].ID != tt.first {
			t.Errorf("list_tasks(%s) = %+v, want #%d first", tt.args, got, tt.first)
		}
	}
}

func TestServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	server := NewMCPServer(db, "test")

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "create_task",
		Arguments: map[string]any{"content": "Buy milk"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("create_task returned tool error: %+v", res.Content)
	}
	text := res.Content[0].(*mcpsdk.TextContent).Text
	var created taskJSON
	if err := json.Unmarshal([]byte(text), &created); err != nil {
		t.Fatalf("decode result %q: %v", text, err)
	}
	if created.Content != "Buy milk" || created.Status != "todo" {
		t.Errorf("created = %+v", created)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "get_task",
		Arguments: map[string]any{"id": 4242},
	})
	if err != nil {
		t.Fatalf("CallTool get_task: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for a missing task")
	}
}
