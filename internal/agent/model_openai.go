package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAICompatChatModel 通过 OpenAI 兼容接口对话（例如 Ollama 的 /v1 端点或 vLLM）
type OpenAICompatChatModel struct {
	client      *openai.Client
	modelName   string
	temperature float64
	maxTokens   int
}

// NewOpenAICompatChatModel 创建 OpenAI 兼容对话模型。本地服务允许 apiKey 为空。
func NewOpenAICompatChatModel(baseURL, apiKey, modelName string, temperature float64, maxTokens int) (*OpenAICompatChatModel, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("base url 不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultOllamaModel
	}
	if apiKey == "" {
		apiKey = "ollama" // SDK 要求非空，本地服务会忽略
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(openAIBaseURL(baseURL)),
	}
	client := openai.NewClient(opts...)

	return &OpenAICompatChatModel{
		client:      &client,
		modelName:   modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// openAIBaseURL Ollama 根地址补全为 /v1/
func openAIBaseURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(u, "/v1") {
		u += "/v1"
	}
	return u + "/"
}

// Generate 发送一次对话请求
func (m *OpenAICompatChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{}, opts...)

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: toOpenAIMessages(input),
	}
	if options.Model != nil && *options.Model != "" {
		params.Model = shared.ChatModel(*options.Model)
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	} else if m.temperature > 0 {
		params.Temperature = openai.Float(m.temperature)
	}
	if options.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*options.MaxTokens))
	} else if m.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(m.maxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai compatible request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai compatible response has no choices")
	}

	choice := resp.Choices[0]
	msg := schema.AssistantMessage(choice.Message.Content, nil)
	msg.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	return msg, nil
}

// Stream 以单帧流的形式返回完整回复
func (m *OpenAICompatChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func toOpenAIMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case schema.Tool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}
