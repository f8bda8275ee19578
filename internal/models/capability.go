package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/lazytasks/internal/config"
	"github.com/dohr-michael/lazytasks/internal/events"
)

// Capability names.
const (
	CapabilityClassify   = "classify"
	CapabilitySynthesize = "synthesize"
)

// Publisher receives model-call events.
type Publisher interface {
	Publish(events.Event)
}

type binding struct {
	name        string
	provider    string
	temperature float32
	json        bool
}

// Capabilities exposes the two model-backed operations of the router, each
// bound to a provider with its own sampling temperature and bounded retries.
type Capabilities struct {
	registry   *Registry
	classify   binding
	synthesize binding
	retry      RetryPolicy
	bus        Publisher
}

// NewCapabilities binds the classify and synthesize capabilities. bus may be nil.
func NewCapabilities(reg *Registry, cfg config.CapabilitiesConfig, bus Publisher) *Capabilities {
	retry := DefaultRetryPolicy
	if cfg.Retry.Attempts > 0 {
		retry.Attempts = cfg.Retry.Attempts
	}
	if d := cfg.Retry.MinDelay.Duration(); d > 0 {
		retry.MinDelay = d
	}
	if d := cfg.Retry.MaxDelay.Duration(); d > 0 {
		retry.MaxDelay = d
	}

	return &Capabilities{
		registry:   reg,
		classify:   newBinding(CapabilityClassify, reg, cfg.Classify, 0.3, true),
		synthesize: newBinding(CapabilitySynthesize, reg, cfg.Synthesize, 0.7, false),
		retry:      retry,
		bus:        bus,
	}
}

func newBinding(name string, reg *Registry, cfg config.CapabilityConfig, defaultTemp float32, json bool) binding {
	b := binding{name: name, provider: reg.Resolve(cfg.Provider), temperature: defaultTemp, json: json}
	if cfg.Temperature != nil {
		b.temperature = *cfg.Temperature
	}
	return b
}

// Classify asks the classification model for a JSON verdict on prompt.
// It returns the raw reply text.
func (c *Capabilities) Classify(ctx context.Context, system, prompt string) (string, error) {
	return c.call(ctx, c.classify, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	})
}

// Synthesize produces the user-facing reply for a conversation.
func (c *Capabilities) Synthesize(ctx context.Context, msgs []*schema.Message) (string, error) {
	return c.call(ctx, c.synthesize, msgs)
}

func (c *Capabilities) call(ctx context.Context, b binding, msgs []*schema.Message) (string, error) {
	start := time.Now()

	var (
		reply *schema.Message
		usage *schema.TokenUsage
	)
	attempts, err := c.retry.Do(ctx, func(ctx context.Context) error {
		get := c.registry.Get
		if b.json {
			get = c.registry.GetJSON
		}
		m, err := get(ctx, b.provider)
		if err != nil {
			return err
		}
		out, err := m.Generate(ctx, msgs, model.WithTemperature(b.temperature))
		if err != nil {
			return HandleError(b.provider, err)
		}
		if out == nil || strings.TrimSpace(out.Content) == "" {
			return errEmptyResponse(b.provider)
		}
		reply = out
		if out.ResponseMeta != nil {
			usage = out.ResponseMeta.Usage
		}
		return nil
	})

	c.publish(ctx, b, len(msgs), attempts, time.Since(start), usage, err)

	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	return reply.Content, nil
}

func (c *Capabilities) publish(ctx context.Context, b binding, msgCount, attempts int, d time.Duration, usage *schema.TokenUsage, err error) {
	if c.bus == nil {
		return
	}
	payload := events.LLMCallPayload{
		Capability:   b.name,
		Provider:     b.provider,
		Attempts:     attempts,
		MessageCount: msgCount,
		Duration:     d,
	}
	if usage != nil {
		payload.TokensInput = usage.PromptTokens
		payload.TokensOutput = usage.CompletionTokens
	}
	if err != nil {
		payload.Error = err.Error()
	}
	c.bus.Publish(events.NewTypedEventWithSession(events.SourceModels, payload, events.SessionIDFromContext(ctx)))
}
