package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"

	"resume-screener/internal/logger"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 按页提取文本，文本为空时回退到OCR
type EinoPDFTextExtractor struct {
	parser  einoParser.Parser
	ocr     TextExtractable // 可选：扫描件的OCR回退
	timeout time.Duration
	logger  zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(l zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = l
	}
}

// WithOCRFallback 设置文本层为空时使用的OCR提取器
func WithOCRFallback(ocr TextExtractable) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.ocr = ocr
	}
}

// WithPDFParser 替换底层的页面解析器
func WithPDFParser(p einoParser.Parser) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.parser = p
	}
}

// WithParseTimeout 设置单个PDF的解析超时
func WithParseTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.timeout = d
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器。
// 解析器按页面分割，每页一个文档，页序即文档顺序。
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	extractor := &EinoPDFTextExtractor{
		timeout: 30 * time.Second,
		logger:  logger.Component("pdf"),
	}
	for _, option := range options {
		option(extractor)
	}

	if extractor.parser == nil {
		p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
		if err != nil {
			return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
		}
		extractor.parser = p
	}
	return extractor, nil
}

// Extract 实现 TextExtractable：各页文本按页序以换行连接
func (e *EinoPDFTextExtractor) Extract(ctx context.Context, data []byte, uri string) (string, error) {
	text, err := e.extractPages(ctx, data, uri)
	if err != nil {
		// 文本层损坏的扫描件仍可能被OCR识别
		if e.ocr == nil {
			return "", err
		}
		e.logger.Warn().Err(err).Str("uri", uri).Msg("PDF文本层解析失败，尝试OCR")
		return e.ocr.Extract(ctx, data, uri)
	}

	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	if e.ocr == nil {
		e.logger.Warn().Str("uri", uri).Msg("PDF没有文本层且未配置OCR")
		return "", nil
	}

	e.logger.Info().Str("uri", uri).Msg("PDF文本层为空，使用OCR回退")
	return e.ocr.Extract(ctx, data, uri)
}

func (e *EinoPDFTextExtractor) extractPages(ctx context.Context, data []byte, uri string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	startTime := time.Now()
	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{
			"source_file_path": uri,
			"extraction_time":  startTime.Format(time.RFC3339),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}

	pages := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		pages = append(pages, doc.Content)
	}

	text := strings.Join(pages, "\n")
	e.logger.Debug().
		Str("uri", uri).
		Int("pages", len(pages)).
		Int("chars", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("PDF按页提取完成")
	return text, nil
}
