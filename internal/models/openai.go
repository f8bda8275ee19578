package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/lazytasks/internal/config"
)

// NewOpenAI creates an OpenAI (or OpenAI-compatible) chat model.
//
// Supported options: temperature, top_p, response_format ("json_object").
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.BaseChatModel, error) {
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey: auth.Value,
		Model:  cfg.Model,
	}

	if cfg.BaseURL != "" {
		modelConfig.BaseURL = cfg.BaseURL
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}

	if cfg.Timeout.Duration() > 0 {
		modelConfig.Timeout = cfg.Timeout.Duration()
	} else {
		modelConfig.Timeout = 60 * time.Second
	}

	if cfg.Options != nil {
		if temp, ok := cfg.Options["temperature"].(float64); ok {
			t := float32(temp)
			modelConfig.Temperature = &t
		}
		if topP, ok := cfg.Options["top_p"].(float64); ok {
			p := float32(topP)
			modelConfig.TopP = &p
		}
		if rf, ok := cfg.Options["response_format"].(string); ok && rf == "json_object" {
			modelConfig.ResponseFormat = &einoopenai.ChatCompletionResponseFormat{
				Type: einoopenai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}
