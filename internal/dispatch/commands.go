package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dohr-michael/lazytasks/internal/store"
)

// Page sizes for list views.
const (
	listLimit = 20
	doneLimit = 10
)

// TaskReader is the read side of the task store.
type TaskReader interface {
	GetTask(ctx context.Context, id int64) (*store.Task, error)
	ListTasks(ctx context.Context, f store.TaskFilter) ([]*store.Task, error)
}

// Commands renders the data commands. Every path yields a reply: store
// failures become a short error message.
type Commands struct {
	loc *time.Location
}

// NewCommands creates a data command handler rendering times in loc.
func NewCommands(loc *time.Location) *Commands {
	if loc == nil {
		loc = time.Local
	}
	return &Commands{loc: loc}
}

// Execute runs a TierData command.
func (c *Commands) Execute(ctx context.Context, tasks TaskReader, cmd Command) Reply {
	var (
		text string
		err  error
	)
	switch cmd.Op {
	case OpActiveTasks:
		text, err = c.activeTasks(ctx, tasks)
	case OpTodo:
		text, err = c.byStatus(ctx, tasks, store.StatusTodo)
	case OpDoing:
		text, err = c.byStatus(ctx, tasks, store.StatusInProgress)
	case OpDone:
		text, err = c.done(ctx, tasks)
	case OpTaskDetail:
		text, err = c.detail(ctx, tasks, cmd.Arg)
	default:
		err = fmt.Errorf("unknown data command %q", cmd.Op)
	}
	if err != nil {
		slog.Error("data command failed", "op", cmd.Op, "error", err)
		return Reply{Text: "⚠️ Không đọc được dữ liệu task, thử lại sau nhé.", HTML: true}
	}
	return Reply{Text: text, HTML: true}
}

func (c *Commands) list(ctx context.Context, tasks TaskReader, status store.TaskStatus, limit int) ([]*store.Task, error) {
	return tasks.ListTasks(ctx, store.TaskFilter{Statuses: []store.TaskStatus{status}, Limit: limit})
}

func (c *Commands) activeTasks(ctx context.Context, tasks TaskReader) (string, error) {
	doing, err := c.list(ctx, tasks, store.StatusInProgress, listLimit)
	if err != nil {
		return "", err
	}
	todo, err := c.list(ctx, tasks, store.StatusTodo, listLimit)
	if err != nil {
		return "", err
	}

	if len(doing) == 0 && len(todo) == 0 {
		return "📋 <b>Active Tasks</b>\n\nKhông có task nào. Tạo task mới bằng cách chat!", nil
	}

	lines := []string{"📋 <b>Active Tasks</b>"}
	for _, group := range []struct {
		status store.TaskStatus
		tasks  []*store.Task
	}{
		{store.StatusInProgress, doing},
		{store.StatusTodo, todo},
	} {
		if len(group.tasks) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("\n%s (%d)", StatusLabel(group.status), len(group.tasks)))
		for _, t := range group.tasks {
			lines = append(lines, taskLine(t, c.loc))
		}
	}
	lines = append(lines, fmt.Sprintf("\nTổng: %d active tasks | /task &lt;id&gt; để xem chi tiết", len(doing)+len(todo)))

	return Truncate(strings.Join(lines, "\n")), nil
}

func (c *Commands) byStatus(ctx context.Context, tasks TaskReader, status store.TaskStatus) (string, error) {
	list, err := c.list(ctx, tasks, status, listLimit)
	if err != nil {
		return "", err
	}
	label := StatusLabel(status)
	if len(list) == 0 {
		return label + "\n\nKhông có task nào.", nil
	}

	lines := []string{fmt.Sprintf("%s (%d)", label, len(list))}
	for _, t := range list {
		lines = append(lines, taskLine(t, c.loc))
	}
	return Truncate(strings.Join(lines, "\n")), nil
}

func (c *Commands) done(ctx context.Context, tasks TaskReader) (string, error) {
	list, err := c.list(ctx, tasks, store.StatusDone, doneLimit)
	if err != nil {
		return "", err
	}
	label := StatusLabel(store.StatusDone)
	if len(list) == 0 {
		return label + "\n\nChưa có task nào hoàn thành.", nil
	}

	lines := []string{fmt.Sprintf("%s (%d gần nhất)", label, len(list))}
	for _, t := range list {
		lines = append(lines, taskLine(t, c.loc))
	}
	return Truncate(strings.Join(lines, "\n")), nil
}

func (c *Commands) detail(ctx context.Context, tasks TaskReader, arg string) (string, error) {
	if arg == "" {
		return "⚠️ Dùng: /task &lt;id&gt;\nVí dụ: <code>/task 1000001</code>", nil
	}

	digits := strings.TrimPrefix(arg, "#")
	if !isDigits(digits) {
		return fmt.Sprintf("⚠️ ID không hợp lệ: <code>%s</code>\nDùng: /task &lt;id&gt;", escape(arg)), nil
	}
	notFound := fmt.Sprintf("❌ Không tìm thấy task <code>#%s</code>", escape(digits))

	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		// Too large to be any task id.
		return notFound, nil
	}
	t, err := tasks.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	if t == nil {
		return notFound, nil
	}
	return Truncate(taskDetail(t, c.loc)), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
