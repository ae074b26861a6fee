package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener/internal/agent"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(60, 2)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "突发量耗尽后应拒绝")
	assert.InDelta(t, 60.0, l.QPM(), 1e-9)
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	l := NewLimiter(1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestLimiter_Do(t *testing.T) {
	tb := NewLimiter(6000, 100).WithRetryPolicy(time.Millisecond, 3)

	attempts := 0
	err := tb.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("ollama chat: status 503: busy")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = tb.Do(context.Background(), func() error {
		attempts++
		return errors.New("invalid prompt")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "不可重试错误不应重试")

	attempts = 0
	err = tb.Do(context.Background(), func() error {
		attempts++
		return errors.New("read: connection reset by peer")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, attempts, "可重试错误最多执行 1+maxRetries 次")
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(errors.New("status 429: too many requests")))
	assert.True(t, IsRetryableError(errors.New("context deadline exceeded")))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(errors.New("status 404: model not found")))
	assert.False(t, IsRetryableError(nil))

	// Ollama 客户端返回的状态错误
	assert.True(t, IsRetryableError(fmt.Errorf("generate: %w", api.StatusError{StatusCode: 503, Status: "503 Service Unavailable", ErrorMessage: "server busy"})))
	assert.True(t, IsRetryableError(api.StatusError{StatusCode: 429, ErrorMessage: "slow down"}))
	assert.False(t, IsRetryableError(api.StatusError{StatusCode: 404, ErrorMessage: "model \"mistral\" not found"}))
}

func TestRateLimitedChatModel_RetriesTransientErrors(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Error: errors.New("dial tcp: connection refused")},
		{Content: "feedback"},
	})
	limited := NewRateLimitedChatModel(mock, 6000).WithRetryPolicy(time.Millisecond, 2)

	msg, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "feedback", msg.Content)
	assert.Equal(t, 2, mock.CallCount())
}

type flakyEmbedder struct{ failures int }

func (f *flakyEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("ollama embed: status 502: bad gateway")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1}
	}
	return out, nil
}

func TestRateLimitedEmbedder(t *testing.T) {
	e := NewRateLimitedEmbedder(&flakyEmbedder{failures: 1}, 6000, time.Millisecond, 2)
	vectors, err := e.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)

	e = NewRateLimitedEmbedder(&flakyEmbedder{failures: 5}, 6000, time.Millisecond, 1)
	_, err = e.EmbedStrings(context.Background(), []string{"a"})
	assert.Error(t, err, "超过重试次数应返回错误")
}

func TestNewLLMWithRateLimit(t *testing.T) {
	m := NewLLMWithRateLimit(agent.NewMockChatClient("ok", nil), "mistral", map[string]int{"mistral": 100}, 0, 0, time.Millisecond)
	limited, ok := m.(*RateLimitedChatModel)
	require.True(t, ok)
	assert.InDelta(t, 90.0, limited.limiter.QPM(), 1e-9, "应使用模型QPM的90%")
}
