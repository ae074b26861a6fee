package processor

import (
	"context"
	"fmt"
	"time"

	"resume-screener/internal/agent"
	"resume-screener/internal/config"
	"resume-screener/internal/feedback"
	"resume-screener/internal/parser"
	"resume-screener/internal/ratelimit"
	"resume-screener/internal/retrieval"
	"resume-screener/internal/storage"
	"resume-screener/internal/types"

	"github.com/rs/zerolog"
)

// Components 根据配置构建的运行时组件，进程启动时创建一次后注入各入口
type Components struct {
	Extractor *parser.Extractor
	Pipeline  *retrieval.Pipeline
	Renderer  feedback.Renderer
	Ranker    *BatchRanker
	Service   *ScreeningService

	// Jobs 仅在对象存储、Redis 和 RabbitMQ 都可用时非空
	Jobs *JobRunner
}

// NewComponents 创建提取器、检索管道、渲染器和编排器。store 可以为 nil。
func NewComponents(ctx context.Context, cfg *config.Config, store *storage.Storage, log zerolog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if store == nil {
		store = &storage.Storage{}
	}

	extractor, err := NewExtractorFromConfig(ctx, cfg, store, log)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewPipelineFromConfig(ctx, cfg, cfg.GetModelForTask("feedback"), log)
	if err != nil {
		return nil, err
	}

	renderer, err := feedback.NewRenderer(cfg.Ranking.ReportFormat, cfg.Ranking.FeedbackDir)
	if err != nil {
		return nil, err
	}

	opts := []RankerOption{
		WithWorkers(cfg.Ranking.Workers),
		WithCSVPath(cfg.Ranking.CSVPath),
		WithXLSXPath(cfg.Ranking.XLSXPath),
		WithLogger(log.With().Str("component", "batch_ranker").Logger()),
	}
	if store.MinIO != nil {
		opts = append(opts, WithReportStore(store.MinIO))
	}
	if store.MySQL != nil {
		target := storage.EventTarget{}
		if store.RabbitMQ != nil {
			target = storage.EventTarget{Exchange: cfg.RabbitMQ.RankingExchange, RoutingKey: cfg.RabbitMQ.EventRoutingKey}
		}
		opts = append(opts, WithRankingRepository(store.MySQL, target))
	}

	ranker, err := NewBatchRanker(extractor, pipeline, renderer, opts...)
	if err != nil {
		return nil, err
	}

	var serviceOpts []ServiceOption
	if qaModel := cfg.GetModelForTask("qa"); qaModel != cfg.GetModelForTask("feedback") {
		qaPipeline, err := NewPipelineFromConfig(ctx, cfg, qaModel, log)
		if err != nil {
			return nil, err
		}
		serviceOpts = append(serviceOpts, WithAskGenerator(qaPipeline))
	}
	service, err := NewScreeningService(ranker, serviceOpts...)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Extractor: extractor,
		Pipeline:  pipeline,
		Renderer:  renderer,
		Ranker:    ranker,
		Service:   service,
	}

	if store.MinIO != nil && store.Redis != nil && store.RabbitMQ != nil {
		c.Jobs, err = NewJobRunner(ranker, store.MinIO, store.Redis, store.RabbitMQ,
			cfg.RabbitMQ.RankingExchange, cfg.RabbitMQ.BatchRoutingKey, log)
		if err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("对象存储、Redis 或 RabbitMQ 未配置，异步批量排名已关闭")
	}
	return c, nil
}

// NewExtractorFromConfig 注册各格式的提取器；配置了 Tika 时启用图片与扫描件OCR
func NewExtractorFromConfig(ctx context.Context, cfg *config.Config, store *storage.Storage, log zerolog.Logger) (*parser.Extractor, error) {
	opts := []parser.ExtractorOption{
		parser.WithExtractorLogger(log.With().Str("component", "extractor").Logger()),
		parser.WithFormatExtractor(types.FormatDOCX, parser.NewDocxExtractor()),
	}
	pdfOpts := []parser.EinoPDFOption{
		parser.WithEinoLogger(log.With().Str("component", "pdf").Logger()),
	}

	if cfg.Tika.ServerURL != "" {
		ocr := parser.NewTikaOCRExtractor(cfg.Tika.ServerURL,
			parser.WithOCRLanguage(cfg.Tika.OCRLanguage),
			parser.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second),
			parser.WithTikaLogger(log.With().Str("component", "ocr").Logger()),
		)
		opts = append(opts,
			parser.WithFormatExtractor(types.FormatPNG, ocr),
			parser.WithFormatExtractor(types.FormatJPEG, ocr),
		)
		pdfOpts = append(pdfOpts, parser.WithOCRFallback(ocr))
	} else {
		log.Debug().Msg("Tika 未配置，图片简历与扫描件OCR不可用")
	}

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx, pdfOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建PDF提取器失败: %w", err)
	}
	opts = append(opts, parser.WithFormatExtractor(types.FormatPDF, pdfExtractor))

	if store != nil && store.Redis != nil {
		opts = append(opts, parser.WithTextCache(store.Redis))
	}
	return parser.NewExtractor(opts...), nil
}

// NewPipelineFromConfig 创建带限流与重试的检索增强生成管道
func NewPipelineFromConfig(ctx context.Context, cfg *config.Config, modelName string, log zerolog.Logger) (*retrieval.Pipeline, error) {
	chunker, err := parser.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	retryWait := time.Duration(cfg.LLM.RetryWaitSeconds) * time.Second

	embedder, err := parser.NewOllamaEmbedder(ctx, cfg.LLM.BaseURL, cfg.LLM.EmbeddingModel, timeout)
	if err != nil {
		return nil, fmt.Errorf("创建向量化客户端失败: %w", err)
	}
	limitedEmbedder := ratelimit.NewRateLimitedEmbedder(embedder,
		cfg.GetQPMForModel(cfg.LLM.EmbeddingModel), retryWait, cfg.LLM.MaxRetries)

	chatModel, err := agent.NewChatModel(ctx, cfg.LLM, modelName)
	if err != nil {
		return nil, fmt.Errorf("创建对话模型失败: %w", err)
	}
	limitedModel := ratelimit.NewLLMWithRateLimit(chatModel, modelName, cfg.ModelQPMLimits,
		cfg.LLM.QPM, cfg.LLM.MaxRetries, retryWait)

	return retrieval.NewPipeline(chunker, limitedEmbedder, limitedModel,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithPipelineLogger(log.With().Str("component", "retrieval").Str("model", modelName).Logger()),
	)
}
