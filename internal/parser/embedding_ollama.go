package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/embedding/ollama"
)

// NewOllamaEmbedder 创建调用本地 Ollama /api/embed 的向量化器，实现 eino embedding.Embedder。
// 本地服务不需要鉴权。
func NewOllamaEmbedder(ctx context.Context, baseURL, model string, timeout time.Duration) (*ollama.Embedder, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("ollama base url 不能为空")
	}
	if model == "" {
		model = "mistral"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Timeout: timeout,
	})
}
