package models

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/lazytasks/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 2048
)

// AnthropicChatModel implements model.BaseChatModel on top of the Messages API.
type AnthropicChatModel struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int
	temperature *float32
}

// NewAnthropic creates an Anthropic chat model.
//
// Supported options: temperature.
func NewAnthropic(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	var opts []option.RequestOption

	// x-api-key header vs Authorization: Bearer
	switch auth.Kind {
	case AuthBearerToken:
		opts = append(opts, option.WithAuthToken(auth.Value))
	default:
		opts = append(opts, option.WithAPIKey(auth.Value))
	}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout.Duration() > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout.Duration()))
	} else {
		opts = append(opts, option.WithRequestTimeout(60*time.Second))
	}
	// Retries are handled by the capability layer.
	opts = append(opts, option.WithMaxRetries(0))

	m := &AnthropicChatModel{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: maxTokens,
	}
	if temp, ok := cfg.Options["temperature"].(float64); ok {
		t := float32(temp)
		m.temperature = &t
	}
	return m, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (outMsg *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, "Anthropic", components.ComponentOfChatModel)

	params, conf := m.buildParams(messages, opts)
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: messages, Config: conf})
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, HandleError("anthropic", err)
	}

	outMsg = convertAnthropicResponse(resp)

	callbacks.OnEnd(ctx, &model.CallbackOutput{
		Message: outMsg,
		Config:  conf,
		TokenUsage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	})

	return outMsg, nil
}

// Stream returns the full reply as a single chunk. Replies are short chat
// messages delivered in one piece, so incremental output is never consumed.
func (m *AnthropicChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *AnthropicChatModel) buildParams(messages []*schema.Message, opts []model.Option) (anthropic.MessageNewParams, *model.Config) {
	options := model.GetCommonOptions(&model.Options{
		MaxTokens:   &m.maxTokens,
		Temperature: m.temperature,
	}, opts...)

	maxTokens := m.maxTokens
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		maxTokens = *options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(maxTokens),
	}
	conf := &model.Config{Model: m.modelName, MaxTokens: maxTokens}

	if options.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*options.Temperature))
		conf.Temperature = *options.Temperature
	}

	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case schema.Assistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return params, conf
}

func convertAnthropicResponse(resp *anthropic.Message) *schema.Message {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	finish := "stop"
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		finish = "length"
	}

	return &schema.Message{
		Role:    schema.Assistant,
		Content: content.String(),
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: finish,
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		},
	}
}

var _ model.BaseChatModel = (*AnthropicChatModel)(nil)
