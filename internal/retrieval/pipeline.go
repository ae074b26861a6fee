package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-screener/internal/logger"
	"resume-screener/internal/parser"
	"resume-screener/internal/tracing"
)

var tracer = otel.Tracer("resume-screener/retrieval")

// Pipeline 单文档检索增强问答：分块 -> 向量化 -> 内存索引 -> 检索 -> 生成。
// 每次调用都新建索引，调用之间不共享状态，可并发使用。
type Pipeline struct {
	chunker  *parser.Chunker
	embedder embedding.Embedder
	model    model.BaseChatModel
	template prompt.ChatTemplate
	topK     int
	logger   zerolog.Logger
}

// PipelineOption 管道配置选项
type PipelineOption func(*Pipeline)

// WithTopK 设置检索分块数
func WithTopK(k int) PipelineOption {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithTemplate 替换问答模板，模板变量须为 context 与 question
func WithTemplate(t prompt.ChatTemplate) PipelineOption {
	return func(p *Pipeline) {
		if t != nil {
			p.template = t
		}
	}
}

// NewPipeline 创建检索管道
func NewPipeline(chunker *parser.Chunker, embedder embedding.Embedder, chatModel model.BaseChatModel, opts ...PipelineOption) (*Pipeline, error) {
	if chunker == nil {
		return nil, errors.New("retrieval: chunker is required")
	}
	if embedder == nil {
		return nil, errors.New("retrieval: embedder is required")
	}
	if chatModel == nil {
		return nil, errors.New("retrieval: chat model is required")
	}

	p := &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		model:    chatModel,
		template: NewAnswerTemplate(),
		topK:     defaultTopK,
		logger:   logger.Component("retrieval"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Answer 针对单个文档回答问题，失败时返回 *PipelineError
func (p *Pipeline) Answer(ctx context.Context, documentID, documentText, question string) (answer string, err error) {
	if documentID == "" {
		documentID = "document"
	}
	ctx, span := tracer.Start(ctx, "retrieval.Answer",
		trace.WithAttributes(
			attribute.String("document.id", documentID),
			attribute.Int("document.runes", len([]rune(documentText))),
			attribute.String("question", tracing.SafePrompt(question)),
		))
	defer func() {
		if err != nil {
			tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeLLM, attribute.String("rag.stage", string(StageOf(err))))
		}
		span.End()
	}()

	log := p.logger.With().Str("document", documentID).Logger()

	// 1. 分块
	if strings.TrimSpace(documentText) == "" {
		return "", stageError(StageChunk, ErrEmptyDocument)
	}
	chunks := p.chunker.Split(documentID, documentText)
	if len(chunks) == 0 {
		return "", stageError(StageChunk, ErrEmptyDocument)
	}
	span.SetAttributes(attribute.Int("rag.chunks", len(chunks)))

	docs := make([]*schema.Document, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = &schema.Document{
			ID:      fmt.Sprintf("%s#%d", documentID, c.Index),
			Content: c.Text,
			MetaData: map[string]any{
				"document_id": documentID,
				"chunk_index": c.Index,
				"offset":      c.Offset,
			},
		}
		texts[i] = c.Text
	}

	// 2. 向量化
	vectors, err := p.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return "", stageError(StageEmbed, err)
	}
	if len(vectors) != len(docs) {
		return "", stageError(StageEmbed, fmt.Errorf("expected %d vectors, got %d", len(docs), len(vectors)))
	}
	for i := range docs {
		docs[i].WithDenseVector(vectors[i])
	}

	// 3. 建立本次调用的索引
	index := NewMemoryIndex(p.embedder, p.topK)
	if _, err := index.Store(ctx, docs); err != nil {
		return "", stageError(StageIndex, err)
	}

	// 4. 检索
	retrieved, err := index.Retrieve(ctx, question)
	if err != nil {
		if errors.Is(err, ErrEmbedding) {
			return "", stageError(StageEmbed, err)
		}
		return "", stageError(StageRetrieve, err)
	}
	if len(retrieved) == 0 {
		return "", stageError(StageRetrieve, ErrNoContext)
	}
	log.Debug().Int("chunks", len(chunks)).Int("retrieved", len(retrieved)).Msg("检索完成")

	// 5. 生成
	messages, err := p.template.Format(ctx, map[string]any{
		"context":  joinContext(retrieved),
		"question": question,
	})
	if err != nil {
		return "", stageError(StageGenerate, fmt.Errorf("format prompt: %w", err))
	}
	resp, err := p.model.Generate(ctx, messages)
	if err != nil {
		return "", stageError(StageGenerate, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", stageError(StageGenerate, ErrEmptyAnswer)
	}

	span.SetAttributes(attribute.Int("rag.answer_runes", len([]rune(resp.Content))))
	return resp.Content, nil
}
