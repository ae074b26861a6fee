package feedback

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	textLinesPerPage = 60
	textLineWidth    = 90
	pageSeparator    = "\f"
)

// TextRenderer 生成纯文本报告：每页固定行数，页间用换页符分隔，每页末尾带页码
type TextRenderer struct {
	dir string
}

// NewTextRenderer 创建纯文本渲染器
func NewTextRenderer(dir string) *TextRenderer {
	return &TextRenderer{dir: dir}
}

// Ext 实现 Renderer
func (r *TextRenderer) Ext() string { return FormatText }

// Render 实现 Renderer
func (r *TextRenderer) Render(ctx context.Context, name, feedbackText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, path, err := prepare(r.dir, name, r.Ext())
	if err != nil {
		return "", err
	}

	lines := append([]string{Header(name), ""}, wrapLines(feedbackText, textLineWidth)...)
	content := []byte(paginate(lines, textLinesPerPage))
	err = writeReplace(path, func(tmpPath string) error {
		return os.WriteFile(tmpPath, content, 0o644)
	})
	if err != nil {
		return "", fmt.Errorf("write text report %s: %w", path, err)
	}
	return path, nil
}

// paginate 每页最多 perPage 行正文，加空行和页码
func paginate(lines []string, perPage int) string {
	var b strings.Builder
	page := 1
	for start := 0; start < len(lines) || page == 1; start += perPage {
		end := start + perPage
		if end > len(lines) {
			end = len(lines)
		}
		if page > 1 {
			b.WriteString(pageSeparator)
		}
		for _, l := range lines[start:end] {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "\nPage %d\n", page)
		page++
		if end == len(lines) {
			break
		}
	}
	return b.String()
}

// wrapLines 按空白把每个段落折行到 width 个字符以内，超长单词单独成行
func wrapLines(text string, width int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > width {
				out = append(out, line)
				line = w
				continue
			}
			line += " " + w
		}
		out = append(out, line)
	}
	return out
}
