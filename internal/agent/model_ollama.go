package agent

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "mistral"
)

// NewOllamaChatModel 创建调用本地 Ollama /api/chat 的对话模型，本地服务无需鉴权。
// temperature、maxTokens 为 0 时使用模型自身的默认值。
func NewOllamaChatModel(ctx context.Context, baseURL, modelName string, timeout time.Duration, temperature float64, maxTokens int) (*ollama.ChatModel, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOllamaBaseURL
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultOllamaModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	cfg := &ollama.ChatModelConfig{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		Model:   modelName,
	}
	if temperature > 0 || maxTokens > 0 {
		cfg.Options = &api.Options{
			Temperature: float32(temperature),
			NumPredict:  maxTokens,
		}
	}
	return ollama.NewChatModel(ctx, cfg)
}
