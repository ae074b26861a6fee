package feedback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"resume-screener/internal/constants"
)

// 报告格式
const (
	FormatPDF  = "pdf"
	FormatText = "txt"
)

// ErrEmptyName 报告名为空
var ErrEmptyName = errors.New("feedback: report name is empty")

// Renderer 把一段反馈文本渲染为分页报告文件
type Renderer interface {
	// Render 写入 <dir>/<name>_feedback.<ext>，已存在则覆盖，返回文件路径
	Render(ctx context.Context, name, feedbackText string) (string, error)
	// Ext 报告文件扩展名（不含点）
	Ext() string
}

// NewRenderer 按格式创建渲染器，未知格式返回错误
func NewRenderer(format, dir string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatPDF, "":
		return NewPDFRenderer(dir), nil
	case FormatText, "text":
		return NewTextRenderer(dir), nil
	default:
		return nil, fmt.Errorf("feedback: unsupported report format %q", format)
	}
}

// ReportFileName 返回报告文件名（不含目录）
func ReportFileName(name, ext string) string {
	return fmt.Sprintf("%s_feedback.%s", name, ext)
}

// Header 报告标题
func Header(name string) string {
	return constants.ReportHeaderPrefix + name
}

// prepare 规范化报告名并确保目录存在，返回最终的文件路径
func prepare(dir, name, ext string) (string, string, error) {
	name = strings.TrimSpace(filepath.Base(filepath.Clean("/" + name)))
	if name == "" || name == "/" || name == "." {
		return "", "", ErrEmptyName
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report directory %s: %w", dir, err)
	}
	return name, filepath.Join(dir, ReportFileName(name, ext)), nil
}

// writeReplace 先写同目录下的临时文件再重命名到 path。
// 并发渲染同名报告时文件内容不会交错，最后完成的一次生效。
func writeReplace(path string, write func(tmpPath string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
