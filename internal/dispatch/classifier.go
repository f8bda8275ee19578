package dispatch

import (
	"regexp"
	"strings"
)

// Tier is the processing path chosen for an inbound message.
type Tier int

const (
	// TierStatic replies with fixed text: no store, no model.
	TierStatic Tier = iota + 1
	// TierData reads the task store: no model, no conversation log.
	TierData
	// TierIntent goes through the model pipeline and is logged.
	TierIntent
)

func (t Tier) String() string {
	switch t {
	case TierStatic:
		return "static"
	case TierData:
		return "data"
	case TierIntent:
		return "intent"
	}
	return "unknown"
}

// DataOp names a data command.
type DataOp string

const (
	OpActiveTasks DataOp = "tasks"
	OpTodo        DataOp = "todo"
	OpDoing       DataOp = "doing"
	OpDone        DataOp = "done"
	OpTaskDetail  DataOp = "task"
)

// Reply is an outbound message.
type Reply struct {
	Text string
	HTML bool
}

// Command is the classification of an inbound text.
type Command struct {
	Tier   Tier
	Static *Reply // TierStatic
	Op     DataOp // TierData
	Arg    string // OpTaskDetail argument, trimmed, possibly empty
}

const welcomeText = "👋 <b>Chào anh!</b>\n\n" +
	"Tôi là <b>Lazy Tasks</b> - Personal AI Executive Assistant.\n\n" +
	"Anh có thể:\n" +
	"• Tạo task mới (vd: <i>'tạo task review PR cho project X'</i>)\n" +
	"• Hỏi về schedule (vd: <i>'hôm nay có task gì?'</i>)\n" +
	"• Update task (vd: <i>'task 1000000 done rồi'</i>)\n" +
	"• Chat tự nhiên\n\n" +
	"Gõ /help để xem tất cả commands."

const helpText = "📌 <b>Commands</b>\n\n" +
	"<b>Task Dashboard</b>\n" +
	"/tasks — Tất cả active tasks (doing + todo)\n" +
	"/todo — Chỉ tasks chưa làm\n" +
	"/doing — Chỉ tasks đang làm\n" +
	"/done — Tasks hoàn thành gần đây\n" +
	"/task &lt;id&gt; — Chi tiết 1 task\n\n" +
	"<b>General</b>\n" +
	"/start — Welcome message\n" +
	"/help — Xem hướng dẫn này\n\n" +
	"Hoặc chat tự nhiên:\n" +
	"• <i>'Tạo task review code deadline thứ 6'</i>\n" +
	"• <i>'Hôm nay có task gì?'</i>\n" +
	"• <i>'Task 1000001 done rồi'</i>"

var staticReplies = map[string]Reply{
	"/start": {Text: welcomeText, HTML: true},
	"start":  {Text: welcomeText, HTML: true},
	"/help":  {Text: helpText, HTML: true},
	"help":   {Text: helpText, HTML: true},
}

var dataCommands = map[string]DataOp{
	"/tasks": OpActiveTasks,
	"/todo":  OpTodo,
	"/doing": OpDoing,
	"/done":  OpDone,
}

var taskDetailPattern = regexp.MustCompile(`(?i)^/task(?:\s+(.*))?$`)

// ClassifyTier decides how a message is processed. It is pure and never fails.
func ClassifyTier(text string) Command {
	trimmed := strings.TrimSpace(text)
	cmd := strings.ToLower(trimmed)

	if r, ok := staticReplies[cmd]; ok {
		return Command{Tier: TierStatic, Static: &r}
	}
	if op, ok := dataCommands[cmd]; ok {
		return Command{Tier: TierData, Op: op}
	}
	if m := taskDetailPattern.FindStringSubmatch(trimmed); m != nil {
		return Command{Tier: TierData, Op: OpTaskDetail, Arg: strings.TrimSpace(m[1])}
	}
	return Command{Tier: TierIntent}
}
