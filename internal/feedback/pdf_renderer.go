package feedback

import (
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	pdfFont       = "Helvetica"
	pdfFontSize   = 12
	pdfLineHeight = 6
)

// PDFRenderer 生成 A4 PDF 报告，每页底部带页码
type PDFRenderer struct {
	dir string
}

// NewPDFRenderer 创建 PDF 渲染器
func NewPDFRenderer(dir string) *PDFRenderer {
	return &PDFRenderer{dir: dir}
}

// Ext 实现 Renderer
func (r *PDFRenderer) Ext() string { return FormatPDF }

// Render 实现 Renderer
func (r *PDFRenderer) Render(ctx context.Context, name, feedbackText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, path, err := prepare(r.dir, name, r.Ext())
	if err != nil {
		return "", err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	// 内置字体只支持 cp1252，先转码
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(pdfFont, "B", 14)
	pdf.MultiCell(0, 8, tr(Header(name)), "", "L", false)
	pdf.Ln(4)

	pdf.SetFont(pdfFont, "", pdfFontSize)
	pdf.MultiCell(0, pdfLineHeight, tr(feedbackText), "", "L", false)

	if err := writeReplace(path, pdf.OutputFileAndClose); err != nil {
		return "", fmt.Errorf("write pdf report %s: %w", path, err)
	}
	return path, nil
}
