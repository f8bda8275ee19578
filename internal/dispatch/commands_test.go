package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dohr-michael/lazytasks/internal/store"
)

func TestCommands_ActiveTasksGrouped(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	doing := seedTask(t, db, store.NewTask{Content: "Deploy api", Status: store.StatusInProgress, Priority: 2})
	todo := seedTask(t, db, store.NewTask{Content: "Write tests"})
	seedTask(t, db, store.NewTask{Content: "Old thing", Status: store.StatusDone})

	reply := NewCommands(testLoc).Execute(ctx, db, Command{Tier: TierData, Op: OpActiveTasks})
	if !reply.HTML {
		t.Error("data replies are HTML")
	}

	want := strings.Join([]string{
		"📋 <b>Active Tasks</b>",
		"",
		"🔥 Doing (1)",
		"🟠 <b>#1000000</b> Deploy api",
		"",
		"📝 Todo (1)",
		"🟡 <b>#1000001</b> Write tests",
		"",
		"Tổng: 2 active tasks | /task &lt;id&gt; để xem chi tiết",
	}, "\n")
	if doing.ID != 1000000 || todo.ID != 1000001 {
		t.Fatalf("unexpected ids %d, %d", doing.ID, todo.ID)
	}
	if reply.Text != want {
		t.Errorf("reply =\n%s\nwant\n%s", reply.Text, want)
	}
}

func TestCommands_Empty(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := NewCommands(testLoc)

	tests := []struct {
		op   DataOp
		want string
	}{
		{OpActiveTasks, "📋 <b>Active Tasks</b>\n\nKhông có task nào. Tạo task mới bằng cách chat!"},
		{OpTodo, "📝 Todo\n\nKhông có task nào."},
		{OpDoing, "🔥 Doing\n\nKhông có task nào."},
		{OpDone, "✅ Done\n\nChưa có task nào hoàn thành."},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			if got := c.Execute(ctx, db, Command{Tier: TierData, Op: tt.op}).Text; got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommands_ByStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedTask(t, db, store.NewTask{Content: "low", Priority: 5})
	seedTask(t, db, store.NewTask{Content: "high", Priority: 1})
	seedTask(t, db, store.NewTask{Content: "finished", Status: store.StatusDone})

	c := NewCommands(testLoc)
	got := c.Execute(ctx, db, Command{Tier: TierData, Op: OpTodo}).Text
	want := "📝 Todo (2)\n🔴 <b>#1000001</b> high\n⚪ <b>#1000000</b> low"
	if got != want {
		t.Errorf("todo =\n%s\nwant\n%s", got, want)
	}

	got = c.Execute(ctx, db, Command{Tier: TierData, Op: OpDone}).Text
	if !strings.HasPrefix(got, "✅ Done (1 gần nhất)\n") || !strings.Contains(got, "finished") {
		t.Errorf("done = %q", got)
	}
}

func TestCommands_Detail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedTask(t, db, store.NewTask{Content: "Review PR", Priority: 1, Tags: []string{"#code"}})
	c := NewCommands(testLoc)

	detail := func(arg string) string {
		return c.Execute(ctx, db, Command{Tier: TierData, Op: OpTaskDetail, Arg: arg}).Text
	}

	if got := detail(""); got != "⚠️ Dùng: /task &lt;id&gt;\nVí dụ: <code>/task 1000001</code>" {
		t.Errorf("usage = %q", got)
	}
	if got := detail("a<b"); got != "⚠️ ID không hợp lệ: <code>a&lt;b</code>\nDùng: /task &lt;id&gt;" {
		t.Errorf("invalid = %q", got)
	}
	if got := detail("#42"); got != "❌ Không tìm thấy task <code>#42</code>" {
		t.Errorf("not found = %q", got)
	}
	if got := detail("##1000000"); got != "⚠️ ID không hợp lệ: <code>##1000000</code>\nDùng: /task &lt;id&gt;" {
		t.Errorf("doubled hash = %q", got)
	}
	if got := detail("99999999999999999999999"); got != "❌ Không tìm thấy task <code>#99999999999999999999999</code>" {
		t.Errorf("overflow = %q", got)
	}

	for _, arg := range []string{"1000000", "#1000000"} {
		got := detail(arg)
		for _, want := range []string{"📄 <b>Task #1000000</b>", "<b>Nội dung:</b> Review PR", "<b>Tags:</b> #code", "<b>Status:</b> 📝 Todo"} {
			if !strings.Contains(got, want) {
				t.Errorf("detail(%q) missing %q:\n%s", arg, want, got)
			}
		}
	}
}

type failingReader struct{}

func (failingReader) GetTask(context.Context, int64) (*store.Task, error) {
	return nil, errors.New("disk on fire")
}

func (failingReader) ListTasks(context.Context, store.TaskFilter) ([]*store.Task, error) {
	return nil, errors.New("disk on fire")
}

func TestCommands_StoreErrorBecomesReply(t *testing.T) {
	c := NewCommands(testLoc)
	for _, cmd := range []Command{
		{Tier: TierData, Op: OpActiveTasks},
		{Tier: TierData, Op: OpTaskDetail, Arg: "1000000"},
	} {
		reply := c.Execute(context.Background(), failingReader{}, cmd)
		if !strings.HasPrefix(reply.Text, "⚠️") {
			t.Errorf("%s: reply = %q, want error notice", cmd.Op, reply.Text)
		}
	}
}
