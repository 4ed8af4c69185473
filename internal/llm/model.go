package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	"github.com/cloudwego/eino/components/model"
)

type ModelType string

const (
	ModelTypeUnknown   ModelType = ""
	ModelTypeOpenAI    ModelType = "openai"
	ModelTypeDashScope ModelType = "dashscope" // Alibaba DashScope (Qwen), OpenAI-compatible mode
	ModelTypeDeepSeek  ModelType = "deepseek"
	ModelTypeOllama    ModelType = "ollama"
	ModelTypeARK       ModelType = "ark"
	ModelTypeClaude    ModelType = "claude"
)

const defaultDashScopeURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

func NewModelType(t string) ModelType {
	switch strings.ToLower(t) {
	case "openai", "gpt":
		return ModelTypeOpenAI
	case "dashscope", "qwen", "tongyi":
		return ModelTypeDashScope
	case "deepseek":
		return ModelTypeDeepSeek
	case "ollama":
		return ModelTypeOllama
	case "ark", "doubao":
		return ModelTypeARK
	case "claude", "anthropic":
		return ModelTypeClaude
	}
	return ModelTypeUnknown
}

// NeedsAPIKey reports whether the provider rejects anonymous requests.
func (t ModelType) NeedsAPIKey() bool {
	return t != ModelTypeOllama
}

// ModelConfig describes one chat model endpoint.
type ModelConfig struct {
	APIType     ModelType
	BaseURL     string
	APIKey      string
	ModelName   string
	Temperature *float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewChatModel builds the eino chat model for the configured provider.
func NewChatModel(ctx context.Context, m ModelConfig) (model.BaseChatModel, error) {
	if m.MaxTokens == 0 {
		m.MaxTokens = 1024
	}
	switch m.APIType {
	case ModelTypeOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     m.BaseURL,
			APIKey:      m.APIKey,
			Model:       m.ModelName,
			Temperature: m.Temperature,
			MaxTokens:   &m.MaxTokens,
			Timeout:     m.Timeout,
		})
	case ModelTypeDashScope:
		baseURL := m.BaseURL
		if baseURL == "" {
			baseURL = defaultDashScopeURL
		}
		return qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      m.APIKey,
			Model:       m.ModelName,
			Temperature: m.Temperature,
			MaxTokens:   &m.MaxTokens,
			Timeout:     m.Timeout,
		})
	case ModelTypeDeepSeek:
		// DeepSeek uses OpenAI-compatible API
		baseURL := m.BaseURL
		if baseURL == "" {
			baseURL = "https://api.deepseek.com"
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     baseURL,
			APIKey:      m.APIKey,
			Model:       m.ModelName,
			Temperature: m.Temperature,
			MaxTokens:   &m.MaxTokens,
			Timeout:     m.Timeout,
		})
	case ModelTypeOllama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: m.BaseURL,
			Model:   m.ModelName,
		})
	case ModelTypeARK:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     m.BaseURL,
			APIKey:      m.APIKey,
			Model:       m.ModelName,
			Temperature: m.Temperature,
			MaxTokens:   &m.MaxTokens,
		})
	case ModelTypeClaude:
		var baseURL *string
		if m.BaseURL != "" {
			baseURL = &m.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			BaseURL:     baseURL,
			APIKey:      m.APIKey,
			Model:       m.ModelName,
			Temperature: m.Temperature,
			MaxTokens:   m.MaxTokens,
		})
	}
	return nil, fmt.Errorf("unsupported model type %q", m.APIType)
}
