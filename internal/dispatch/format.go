package dispatch

import (
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dohr-michael/lazytasks/internal/store"
)

// MaxMessageLen is the Telegram limit for one message, in characters.
const MaxMessageLen = 4096

const truncationHint = "\n\n<i>... (truncated, use /task &lt;id&gt; to view details)</i>"

var priorityGlyphs = map[int]string{
	1: "🔴",
	2: "🟠",
	3: "🟡",
	4: "🟢",
	5: "⚪",
}

var statusLabels = map[store.TaskStatus]string{
	store.StatusInProgress: "🔥 Doing",
	store.StatusTodo:       "📝 Todo",
	store.StatusDone:       "✅ Done",
	store.StatusCancelled:  "🚫 Cancelled",
}

// PriorityGlyph returns the colored marker for a priority level.
func PriorityGlyph(p int) string {
	if g, ok := priorityGlyphs[p]; ok {
		return g
	}
	return "⚪"
}

// StatusLabel returns the display label for a status.
func StatusLabel(s store.TaskStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func escape(s string) string {
	return html.EscapeString(s)
}

// Truncate caps text at MaxMessageLen characters, appending a hint when it
// cuts. The cut backs up to the last line break and never leaves a partial
// tag or entity behind.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxMessageLen {
		return text
	}
	head := string([]rune(text)[:MaxMessageLen-utf8.RuneCountInString(truncationHint)])
	if i := strings.LastIndexByte(head, '\n'); i > 0 {
		head = head[:i]
	}
	return cutOpenMarkup(head) + truncationHint
}

func cutOpenMarkup(s string) string {
	if i := strings.LastIndexByte(s, '<'); i > strings.LastIndexByte(s, '>') {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '&'); i > strings.LastIndexByte(s, ';') {
		s = s[:i]
	}
	return s
}

func formatTags(tags []string) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = "#" + escape(t)
	}
	return strings.Join(parts, " ")
}

// taskLine renders a task for list views:
//
//	🔴 <b>#1000001</b> Review PR
//	   ⏰ 03/02 | 🏷 #backend
func taskLine(t *store.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(PriorityGlyph(t.Priority))
	sb.WriteString(" <b>#")
	sb.WriteString(strconv.FormatInt(t.ID, 10))
	sb.WriteString("</b> ")
	sb.WriteString(escape(t.Content))

	var meta []string
	if t.Deadline != nil {
		meta = append(meta, "⏰ "+t.Deadline.In(loc).Format("02/01"))
	}
	if len(t.Tags) > 0 {
		meta = append(meta, "🏷 "+formatTags(t.Tags))
	}
	if len(meta) > 0 {
		sb.WriteString("\n   ")
		sb.WriteString(strings.Join(meta, " | "))
	}
	return sb.String()
}

func taskDetail(t *store.Task, loc *time.Location) string {
	const stamp = "02/01/2006 15:04"

	lines := []string{
		"📄 <b>Task #" + strconv.FormatInt(t.ID, 10) + "</b>",
		"",
		"<b>Nội dung:</b> " + escape(t.Content),
		"<b>Status:</b> " + StatusLabel(t.Status),
		"<b>Priority:</b> " + PriorityGlyph(t.Priority) + " P" + strconv.Itoa(t.Priority),
	}
	if t.Deadline != nil {
		lines = append(lines, "<b>Deadline:</b> "+t.Deadline.In(loc).Format(stamp))
	}
	if len(t.Tags) > 0 {
		lines = append(lines, "<b>Tags:</b> "+formatTags(t.Tags))
	}
	if t.Complexity != "" {
		lines = append(lines, "<b>Complexity:</b> "+escape(t.Complexity))
	}
	if t.ProjectName != "" {
		lines = append(lines, "<b>Project:</b> "+escape(t.ProjectName))
	}

	lines = append(lines, "\n<i>Created: "+t.CreatedAt.In(loc).Format(stamp)+"</i>")
	if !t.UpdatedAt.IsZero() && !t.UpdatedAt.Equal(t.CreatedAt) {
		lines = append(lines, "<i>Updated: "+t.UpdatedAt.In(loc).Format(stamp)+"</i>")
	}
	return strings.Join(lines, "\n")
}

// firstRunes returns at most n characters of s.
func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
