package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener/internal/config"
)

// chatRequest Ollama /api/chat 请求中测试关心的字段
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Options map[string]any `json:"options"`
}

func newChatServer(t *testing.T, check func(req chatRequest)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"), "本地服务不应携带鉴权头")

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             req.Model,
			"created_at":        time.Now().Format(time.RFC3339),
			"message":           map[string]string{"role": "assistant", "content": "Add metrics to your achievements."},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 10,
			"eval_count":        7,
		})
	}))
}

func TestOllamaChatModel_Generate(t *testing.T) {
	server := newChatServer(t, func(req chatRequest) {
		assert.Equal(t, "mistral", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "Review this.", req.Messages[1].Content)
	})
	defer server.Close()

	m, err := NewOllamaChatModel(context.Background(), server.URL, "", 5*time.Second, 0, 0)
	require.NoError(t, err)
	msg, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("You are a reviewer."),
		schema.UserMessage("Review this."),
	})
	require.NoError(t, err)
	assert.Equal(t, "Add metrics to your achievements.", msg.Content)
	assert.Equal(t, schema.Assistant, msg.Role)
}

func TestOllamaChatModel_SamplingOptions(t *testing.T) {
	server := newChatServer(t, func(req chatRequest) {
		assert.Equal(t, "llama3", req.Model)
		assert.EqualValues(t, 64, req.Options["num_predict"])
	})
	defer server.Close()

	m, err := NewOllamaChatModel(context.Background(), server.URL, "llama3", time.Second, 0.2, 64)
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
}

func TestOllamaChatModel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"server busy"}`))
	}))
	defer server.Close()

	m, err := NewOllamaChatModel(context.Background(), server.URL, "mistral", time.Second, 0, 0)
	require.NoError(t, err)
	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server busy")
}

func TestNewChatModel(t *testing.T) {
	ctx := context.Background()
	m, err := NewChatModel(ctx, config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "mistral"}, "")
	require.NoError(t, err)
	assert.IsType(t, &ollama.ChatModel{}, m)

	m, err = NewChatModel(ctx, config.LLMConfig{Provider: "openai", BaseURL: "http://localhost:11434", Model: "mistral"}, "llama3")
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompatChatModel{}, m)

	_, err = NewChatModel(ctx, config.LLMConfig{Provider: "bedrock"}, "")
	assert.Error(t, err)
}

func TestOpenAIBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434/v1/", openAIBaseURL("http://localhost:11434"))
	assert.Equal(t, "http://host/v1/", openAIBaseURL("http://host/v1/"))
}

func TestMockChatClient_Sequential(t *testing.T) {
	m := NewMockChatClientSequential([]MockResponse{{Content: "first"}, {Error: assert.AnError}})
	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("a")})
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Content)

	_, err = m.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, assert.AnError)
	_, err = m.Generate(context.Background(), nil)
	assert.Error(t, err, "响应用完后应返回错误")
	assert.Equal(t, 3, m.CallCount())
}
