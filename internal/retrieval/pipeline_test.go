package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-screener/internal/agent"
	"resume-screener/internal/parser"
)

// keywordEmbedder 按固定词表计数生成向量，便于构造可预测的检索结果
type keywordEmbedder struct {
	vocab []string
	err   error
	calls int
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{vocab: []string{"golang", "kubernetes", "painting", "sales", "python"}}
}

func (k *keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		vec := make([]float64, len(k.vocab)+1)
		for j, w := range k.vocab {
			vec[j] = float64(strings.Count(lower, w))
		}
		vec[len(k.vocab)] = 0.01 // 避免零向量
		out[i] = vec
	}
	return out, nil
}

func newTestPipeline(t *testing.T, emb embedding.Embedder, chat *agent.MockChatClient, opts ...PipelineOption) *Pipeline {
	t.Helper()
	chunker, err := parser.NewChunker(50, 10)
	require.NoError(t, err)
	p, err := NewPipeline(chunker, emb, chat, opts...)
	require.NoError(t, err)
	return p
}

func TestPipeline_AnswerNonEmpty(t *testing.T) {
	chat := agent.NewMockChatClient("The candidate knows Golang and Kubernetes.", nil)
	p := newTestPipeline(t, newKeywordEmbedder(), chat)

	resume := "Senior engineer. Golang services on Kubernetes. " + strings.Repeat("Enjoys painting on weekends. ", 5)
	answer, err := p.Answer(context.Background(), "resume-1", resume, "What golang experience does the candidate have?")

	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Equal(t, 1, chat.CallCount())

	msgs := chat.GetReceivedMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "You are an intelligent resume analysis agent.", msgs[0].Content)
	assert.Contains(t, msgs[1].Content, "Resume Content:\n")
	assert.Contains(t, msgs[1].Content, "Question:\nWhat golang experience does the candidate have?")
	assert.Contains(t, msgs[1].Content, "Golang services")
}

func TestPipeline_TopKLimitsContext(t *testing.T) {
	chat := agent.NewMockChatClient("ok", nil)
	p := newTestPipeline(t, newKeywordEmbedder(), chat, WithTopK(1))

	resume := strings.Repeat("x", 200) + " golang golang golang " + strings.Repeat("y", 200)
	_, err := p.Answer(context.Background(), "r", resume, "golang")
	require.NoError(t, err)

	msgs := chat.GetReceivedMessages()
	require.Len(t, msgs, 2)
	body := msgs[1].Content
	ctxPart := body[strings.Index(body, "Resume Content:\n")+len("Resume Content:\n") : strings.Index(body, "\n\nQuestion:")]
	assert.NotContains(t, ctxPart, "\n\n", "topK=1 时只应有一个分块")
	assert.Contains(t, ctxPart, "golang")
}

func TestPipeline_CustomTemplate(t *testing.T) {
	chat := agent.NewMockChatClientFunc(func(input []*schema.Message) (string, error) {
		last := input[len(input)-1].Content
		if !strings.HasPrefix(last, "Q: ") {
			return "", errors.New("unexpected prompt")
		}
		return "echo " + strings.TrimPrefix(last, "Q: "), nil
	})
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage("Screen resumes."),
		schema.UserMessage("Q: {question}\nC: {context}"),
	)
	p := newTestPipeline(t, newKeywordEmbedder(), chat, WithTemplate(tpl))

	answer, err := p.Answer(context.Background(), "r", "golang developer", "skills?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer, "echo skills?"))
	assert.Contains(t, answer, "golang developer")
}

func TestPipeline_EmptyDocument(t *testing.T) {
	chat := agent.NewMockChatClient("unused", nil)
	p := newTestPipeline(t, newKeywordEmbedder(), chat)

	_, err := p.Answer(context.Background(), "r", "   \n", "anything")

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageChunk, pe.Stage)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.Equal(t, 0, chat.CallCount())
}

func TestPipeline_EmbeddingFailure(t *testing.T) {
	emb := newKeywordEmbedder()
	emb.err = errors.New("connection refused")
	chat := agent.NewMockChatClient("unused", nil)
	p := newTestPipeline(t, emb, chat)

	_, err := p.Answer(context.Background(), "r", "golang developer", "skills?")

	assert.Equal(t, StageEmbed, StageOf(err))
	assert.Equal(t, "RAG pipeline error [embed]: connection refused", ErrorText(err))
	assert.Equal(t, 0, chat.CallCount())
}

func TestPipeline_GenerateFailure(t *testing.T) {
	chat := agent.NewMockChatClient("", errors.New("model not found"))
	p := newTestPipeline(t, newKeywordEmbedder(), chat)

	_, err := p.Answer(context.Background(), "r", "golang developer", "skills?")
	assert.Equal(t, StageGenerate, StageOf(err))
}

func TestPipeline_EmptyAnswerIsError(t *testing.T) {
	chat := agent.NewMockChatClient("   ", nil)
	p := newTestPipeline(t, newKeywordEmbedder(), chat)

	_, err := p.Answer(context.Background(), "r", "golang developer", "skills?")
	assert.Equal(t, StageGenerate, StageOf(err))
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestNewPipeline_RequiresComponents(t *testing.T) {
	chunker, err := parser.NewChunker(10, 0)
	require.NoError(t, err)

	_, err = NewPipeline(nil, newKeywordEmbedder(), agent.NewMockChatClient("", nil))
	assert.Error(t, err)
	_, err = NewPipeline(chunker, nil, agent.NewMockChatClient("", nil))
	assert.Error(t, err)
	_, err = NewPipeline(chunker, newKeywordEmbedder(), nil)
	assert.Error(t, err)
}

func TestPersonaPrompt(t *testing.T) {
	p := PersonaPrompt("backend_engineer")
	assert.True(t, strings.HasPrefix(p, "You are a resume evaluation assistant for a hiring manager looking to fill the role of backend_engineer."))
	assert.Contains(t, p, "- Missing keywords")

	assert.Contains(t, PersonaPrompt("  "), "the role of this role.")
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "", ErrorText(nil))
	assert.Equal(t, "RAG pipeline error: plain", ErrorText(errors.New("plain")))
	assert.Equal(t, "RAG pipeline error [retrieve]: no chunks retrieved", ErrorText(stageError(StageRetrieve, ErrNoContext)))
}
