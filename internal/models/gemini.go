package models

import (
	"context"
	"fmt"

	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dohr-michael/lazytasks/internal/config"
)

const defaultGeminiModel = "gemini-2.5-flash"

// NewGemini creates a Gemini chat model. With options.project and
// options.location set, it talks to Vertex AI using application default
// credentials; otherwise it uses the Gemini API with a key.
//
// Supported options: temperature, project, location.
func NewGemini(ctx context.Context, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{}
	project, _ := cfg.Options["project"].(string)
	location, _ := cfg.Options["location"].(string)
	if project != "" && location != "" {
		clientCfg.Backend = genai.BackendVertexAI
		clientCfg.Project = project
		clientCfg.Location = location
	} else {
		auth, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		clientCfg.Backend = genai.BackendGeminiAPI
		clientCfg.APIKey = auth.Value
	}
	if cfg.Timeout.Duration() > 0 {
		timeout := cfg.Timeout.Duration()
		clientCfg.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelConfig := &einogemini.Config{
		Client: client,
		Model:  modelName,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	if temp, ok := cfg.Options["temperature"].(float64); ok {
		t := float32(temp)
		modelConfig.Temperature = &t
	}

	return einogemini.NewChatModel(ctx, modelConfig)
}
