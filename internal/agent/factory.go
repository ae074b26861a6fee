package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"

	"resume-screener/internal/config"
)

// NewChatModel 根据配置创建对话模型，modelName 为空时使用配置中的默认模型
func NewChatModel(ctx context.Context, cfg config.LLMConfig, modelName string) (model.BaseChatModel, error) {
	if modelName == "" {
		modelName = cfg.Model
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaChatModel(ctx, cfg.BaseURL, modelName, timeout, cfg.Temperature, cfg.MaxTokens)
	case "openai":
		return NewOpenAICompatChatModel(cfg.BaseURL, cfg.APIKey, modelName, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("不支持的模型提供方: %s", cfg.Provider)
	}
}
