package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"resume-screener/internal/logger"
	"resume-screener/internal/types"
	"resume-screener/internal/utils"
)

var (
	// ErrUnsupportedFormat 没有可处理该格式的提取器
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyText 提取成功但没有任何文本
	ErrEmptyText = errors.New("no text extracted")
	// ErrOCRUnavailable 需要OCR但未配置OCR服务
	ErrOCRUnavailable = errors.New("ocr is not configured")
)

// TextExtractable 单一格式的文本提取能力
type TextExtractable interface {
	// Extract 从文件内容中提取纯文本，uri 仅用于日志与元数据
	Extract(ctx context.Context, data []byte, uri string) (string, error)
}

// TextCache 提取文本的可选缓存（按内容MD5）
type TextCache interface {
	GetExtractedText(ctx context.Context, md5Hex string) (string, bool, error)
	SetExtractedText(ctx context.Context, md5Hex, text string) error
}

// Extractor 根据格式分派到具体的提取器
type Extractor struct {
	extractors map[types.Format]TextExtractable
	cache      TextCache
	logger     zerolog.Logger
}

// ExtractorOption 提取器配置选项
type ExtractorOption func(*Extractor)

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(l zerolog.Logger) ExtractorOption {
	return func(e *Extractor) {
		e.logger = l
	}
}

// WithFormatExtractor 注册或替换某个格式的提取器
func WithFormatExtractor(format types.Format, te TextExtractable) ExtractorOption {
	return func(e *Extractor) {
		if te == nil {
			delete(e.extractors, format)
			return
		}
		e.extractors[format] = te
	}
}

// WithTextCache 启用提取文本缓存
func WithTextCache(cache TextCache) ExtractorOption {
	return func(e *Extractor) {
		e.cache = cache
	}
}

// NewExtractor 创建提取分派器。默认只注册纯文本提取器，其余格式通过选项注册。
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		extractors: map[types.Format]TextExtractable{
			types.FormatText: NewPlainTextExtractor(),
		},
		logger: logger.Component("extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports 判断是否注册了该格式的提取器
func (e *Extractor) Supports(format types.Format) bool {
	_, ok := e.extractors[format]
	return ok
}

// ExtractDocument 提取并返回带类型的错误，供需要区分失败原因的调用方使用
func (e *Extractor) ExtractDocument(ctx context.Context, src types.Source) (*types.Document, error) {
	format := DetectFormat(src.Name, src.Data)
	te, ok := e.extractors[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, src.Name, format)
	}

	md5Hex := ""
	if e.cache != nil {
		md5Hex = utils.CalculateMD5(src.Data)
		if text, hit, err := e.cache.GetExtractedText(ctx, md5Hex); err == nil && hit && text != "" {
			e.logger.Debug().Str("file", src.Name).Msg("命中提取文本缓存")
			return &types.Document{ID: md5Hex, Name: src.Name, Text: text, Format: format}, nil
		}
	}

	start := time.Now()
	text, err := te.Extract(ctx, src.Data, src.Name)
	if err != nil {
		return nil, fmt.Errorf("extract %s (%s): %w", src.Name, format, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("extract %s (%s): %w", src.Name, format, ErrEmptyText)
	}

	e.logger.Debug().
		Str("file", src.Name).
		Str("format", string(format)).
		Int("chars", len([]rune(text))).
		Dur("duration", time.Since(start)).
		Msg("文本提取完成")

	if e.cache != nil {
		if err := e.cache.SetExtractedText(ctx, md5Hex, text); err != nil {
			e.logger.Warn().Err(err).Str("file", src.Name).Msg("写入提取文本缓存失败")
		}
	}
	return &types.Document{ID: md5Hex, Name: src.Name, Text: text, Format: format}, nil
}

// Extract 提取文本。任何失败都会被记录并返回空字符串，调用方以空文本判断失败。
func (e *Extractor) Extract(ctx context.Context, src types.Source) string {
	doc, err := e.ExtractDocument(ctx, src)
	if err != nil {
		e.logger.Error().Err(err).Str("file", src.Name).Msg("文本提取失败")
		return ""
	}
	return doc.Text
}

// ExtractFile 读取文件并提取文本，失败时返回空字符串
func (e *Extractor) ExtractFile(ctx context.Context, path string) string {
	src, err := ReadSource(path)
	if err != nil {
		e.logger.Error().Err(err).Str("file", path).Msg("读取文件失败")
		return ""
	}
	return e.Extract(ctx, src)
}

// ReadSource 从磁盘读取一个文件作为 Source
func ReadSource(path string) (types.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Source{}, err
	}
	return types.Source{Name: filepath.Base(path), Data: data}, nil
}
