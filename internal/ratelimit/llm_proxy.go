package ratelimit

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedChatModel 对对话模型的调用进行限流和重试的代理
type RateLimitedChatModel struct {
	original model.BaseChatModel
	limiter  *Limiter
}

// NewRateLimitedChatModel 创建一个新的限流对话模型代理
func NewRateLimitedChatModel(original model.BaseChatModel, qpm int) *RateLimitedChatModel {
	return &RateLimitedChatModel{
		original: original,
		limiter:  NewLimiter(qpm, qpm/2), // 突发量为QPM的一半
	}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedChatModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedChatModel {
	rl.limiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	err := rl.limiter.Do(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})
	return response, err
}

// Stream 代理Stream方法，增加限流和重试逻辑
func (rl *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]
	err := rl.limiter.Do(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// RateLimitedEmbedder 对向量化调用进行限流和重试的代理
type RateLimitedEmbedder struct {
	original embedding.Embedder
	limiter  *Limiter
}

// NewRateLimitedEmbedder 创建限流向量化代理
func NewRateLimitedEmbedder(original embedding.Embedder, qpm int, retryWait time.Duration, maxRetries int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{
		original: original,
		limiter:  NewLimiter(qpm, qpm/2).WithRetryPolicy(retryWait, maxRetries),
	}
}

// EmbedStrings 实现 embedding.Embedder
func (re *RateLimitedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	var vectors [][]float64
	err := re.limiter.Do(ctx, func() error {
		var embErr error
		vectors, embErr = re.original.EmbedStrings(ctx, texts, opts...)
		return embErr
	})
	return vectors, err
}

// NewLLMWithRateLimit 从模型级QPM配置和原始模型创建带限流的模型。
// 模型有专门的QPM限制时使用其90%作为安全值。
func NewLLMWithRateLimit(original model.BaseChatModel, modelName string, cfg map[string]int, customQPM int, maxRetries int, retryWaitTime time.Duration) model.BaseChatModel {
	qpm := customQPM
	if cfg != nil && modelName != "" {
		if modelQPM, ok := cfg[modelName]; ok && modelQPM > 0 {
			qpm = int(float64(modelQPM) * 0.9)
		}
	}
	if qpm <= 0 {
		qpm = 30
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return NewRateLimitedChatModel(original, qpm).WithRetryPolicy(retryWaitTime, maxRetries)
}
