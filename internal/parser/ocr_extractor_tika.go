package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"resume-screener/internal/logger"
	"resume-screener/internal/types"
)

// TikaOCRExtractor 通过 Apache Tika 服务器（内置 Tesseract）识别图片和扫描PDF中的文字
type TikaOCRExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client   *http.Client
	language string
	logger   zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaOCRExtractor)

// WithOCRLanguage 设置 Tesseract 识别语言，例如 "eng" 或 "eng+chi_sim"
func WithOCRLanguage(lang string) TikaOption {
	return func(e *TikaOCRExtractor) {
		if lang != "" {
			e.language = lang
		}
	}
}

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(l zerolog.Logger) TikaOption {
	return func(e *TikaOCRExtractor) {
		e.logger = l
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaOCRExtractor) {
		e.Client.Timeout = timeout
	}
}

// NewTikaOCRExtractor 创建一个新的Tika OCR提取器
func NewTikaOCRExtractor(serverURL string, options ...TikaOption) *TikaOCRExtractor {
	extractor := &TikaOCRExtractor{
		ServerURL: strings.TrimRight(serverURL, "/"),
		Client:    &http.Client{Timeout: 60 * time.Second},
		language:  "eng",
		logger:    logger.Component("ocr"),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

// Extract 实现 TextExtractable。PDF 强制走OCR策略，图片直接识别。
func (e *TikaOCRExtractor) Extract(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()
	format := DetectFormat(uri, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeFor(format))
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Tika-OCRLanguage", e.language)
	if format == types.FormatPDF {
		req.Header.Set("X-Tika-PDFOcrStrategy", "ocr_only")
	}
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tika服务器返回错误状态码: %d, %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}

	text := normalizeOCRLines(string(raw))
	e.logger.Debug().
		Str("uri", uri).
		Str("format", string(format)).
		Int("chars", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("OCR识别完成")
	return text, nil
}

// normalizeOCRLines 去掉行尾空白和空行，识别出的行以换行连接
func normalizeOCRLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func contentTypeFor(format types.Format) string {
	switch format {
	case types.FormatPDF:
		return "application/pdf"
	case types.FormatPNG:
		return "image/png"
	case types.FormatJPEG:
		return "image/jpeg"
	}
	return "application/octet-stream"
}
