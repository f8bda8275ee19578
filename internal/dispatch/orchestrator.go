package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dohr-michael/lazytasks/internal/events"
	"github.com/dohr-michael/lazytasks/internal/models"
	"github.com/dohr-michael/lazytasks/internal/store"
)

// historyLimit is the number of previous turns handed to the router.
const historyLimit = 10

// Inbound is a normalized message from a chat platform.
type Inbound struct {
	Platform  string
	ChatID    int64
	UserID    int64
	Username  string
	FirstName string
	Text      string
	MessageID int64
}

// SessionID keys the conversation log for this chat.
func (in Inbound) SessionID() string {
	return fmt.Sprintf("%s_%d", in.Platform, in.ChatID)
}

// Sender delivers a reply to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, reply Reply) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, chatID int64, reply Reply) error

func (f SenderFunc) Send(ctx context.Context, chatID int64, reply Reply) error {
	return f(ctx, chatID, reply)
}

// TurnLog is the conversation log accessor.
type TurnLog interface {
	AppendTurn(ctx context.Context, in store.NewTurn) (*store.Turn, error)
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]*store.Turn, error)
}

// UnitOfWork reads the conversation log and opens short write transactions.
// No transaction is held across a capability call.
type UnitOfWork interface {
	TurnLog
	WithTx(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Orchestrator runs one inbound message through the tier pipeline.
type Orchestrator struct {
	db       UnitOfWork
	router   *Router
	commands *Commands
	senders  map[string]Sender
	bus      Publisher
}

// NewOrchestrator wires the pipeline. senders is keyed by platform; a
// platform without a sender only gets its reply through the return value
// and the outgoing.message event. bus may be nil.
func NewOrchestrator(db UnitOfWork, router *Router, commands *Commands, senders map[string]Sender, bus Publisher) *Orchestrator {
	if senders == nil {
		senders = map[string]Sender{}
	}
	return &Orchestrator{db: db, router: router, commands: commands, senders: senders, bus: bus}
}

// Dispatch processes in and returns the reply that was sent. An error means
// a store write failed; the user still gets a diagnostic reply.
func (o *Orchestrator) Dispatch(ctx context.Context, in Inbound) (Reply, error) {
	if in.ChatID == 0 || strings.TrimSpace(in.Text) == "" {
		slog.Debug("inbound dropped", "platform", in.Platform, "chat_id", in.ChatID)
		return Reply{}, nil
	}

	dispatchID := uuid.NewString()
	session := in.SessionID()
	ctx = events.ContextWithSessionID(ctx, session)
	log := slog.With("dispatch_id", dispatchID, "platform", in.Platform, "chat_id", in.ChatID)

	cmd := ClassifyTier(in.Text)
	log.Info("inbound", "tier", cmd.Tier, "text", firstRunes(in.Text, 50))
	o.publish(session, events.IncomingMessagePayload{
		DispatchID: dispatchID,
		Platform:   in.Platform,
		ChatID:     in.ChatID,
		UserID:     in.UserID,
		Username:   in.Username,
		Text:       in.Text,
		Tier:       cmd.Tier.String(),
	})

	var (
		reply Reply
		err   error
	)
	switch cmd.Tier {
	case TierStatic:
		reply = *cmd.Static
	case TierData:
		err = o.db.WithTx(ctx, func(tx *store.Tx) error {
			reply = o.commands.Execute(ctx, tx, cmd)
			return nil
		})
	default:
		reply, err = o.converse(ctx, log, in)
	}

	out := events.OutgoingMessagePayload{
		DispatchID: dispatchID,
		Platform:   in.Platform,
		ChatID:     in.ChatID,
	}
	if err != nil {
		log.Error("dispatch failed", "error", err)
		out.Error = err.Error()
		reply = Reply{Text: DiagnosticText(err)}
	}

	o.send(ctx, log, in, reply)
	out.Text = reply.Text
	out.HTML = reply.HTML
	o.publish(session, out)
	return reply, err
}

// converse runs tier 3 in two write transactions: the user turn with the task
// action, then the assistant turn. Both capability calls happen outside them.
func (o *Orchestrator) converse(ctx context.Context, log *slog.Logger, in Inbound) (Reply, error) {
	session := in.SessionID()
	chatID := in.ChatID

	history, err := recentHistory(ctx, o.db, session)
	if err != nil {
		return Reply{}, err
	}

	cls := o.router.Classify(ctx, in.Text, history)

	var (
		note     string
		routeErr error
	)
	err = o.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.AppendTurn(ctx, store.NewTurn{
			SessionID: session,
			ChatID:    &chatID,
			Role:      store.RoleUser,
			Content:   in.Text,
			Metadata: map[string]any{
				"user_id":    in.UserID,
				"username":   in.Username,
				"first_name": in.FirstName,
				"message_id": in.MessageID,
			},
		}); err != nil {
			return fmt.Errorf("append user turn: %w", err)
		}
		note, routeErr = o.router.Act(ctx, tx, cls, in.Text)
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	var text string
	if routeErr == nil {
		text, routeErr = o.router.Synthesize(ctx, in.Text, history, note)
	}
	if routeErr != nil {
		log.Error("intent routing failed", "error", routeErr)
		text = DiagnosticText(routeErr)
	}

	err = o.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.AppendTurn(ctx, store.NewTurn{
			SessionID: session,
			ChatID:    &chatID,
			Role:      store.RoleAssistant,
			Content:   text,
			Intent:    string(cls.Intent),
		}); err != nil {
			return fmt.Errorf("append assistant turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text}, nil
}

// recentHistory loads the last turns of a session, oldest first.
func recentHistory(ctx context.Context, turnLog TurnLog, session string) ([]*store.Turn, error) {
	history, err := turnLog.RecentTurns(ctx, session, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return history, nil
}

func (o *Orchestrator) send(ctx context.Context, log *slog.Logger, in Inbound, reply Reply) {
	sender, ok := o.senders[in.Platform]
	if !ok {
		return
	}
	if err := sender.Send(ctx, in.ChatID, reply); err != nil {
		log.Error("send reply failed", "error", err)
	}
}

func (o *Orchestrator) publish(session string, p events.EventPayload) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.NewTypedEventWithSession(events.SourceDispatch, p, session))
}

// DiagnosticText is the reply shown when the intent pipeline fails.
func DiagnosticText(err error) string {
	return "⚠️ Lỗi xử lý message:\n\n" + ErrorKind(err) + ": " + err.Error()
}

// ErrorKind names the class of err for the diagnostic reply.
func ErrorKind(err error) string {
	var typed *models.Error
	switch {
	case errors.As(err, &typed):
		return camelCase(string(typed.Kind))
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	}
	return "Error"
}

func camelCase(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}
