package parser

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePageParser 按预设内容返回每页文档
type fakePageParser struct {
	pages []string
	err   error
	uri   string
}

func (f *fakePageParser) Parse(_ context.Context, _ io.Reader, opts ...einoParser.Option) ([]*schema.Document, error) {
	o := einoParser.GetCommonOptions(&einoParser.Options{}, opts...)
	f.uri = o.URI
	if f.err != nil {
		return nil, f.err
	}
	docs := make([]*schema.Document, 0, len(f.pages))
	for _, p := range f.pages {
		docs = append(docs, &schema.Document{Content: p})
	}
	return docs, nil
}

// fakeOCR 记录调用次数并返回固定文本
type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Extract(_ context.Context, _ []byte, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestNewEinoPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor.parser, "PDF提取器内部的parser不应为nil")
}

func TestEinoPDFExtract_JoinsPagesInOrder(t *testing.T) {
	pages := &fakePageParser{pages: []string{"page one", "page two", "page three"}}
	ocr := &fakeOCR{text: "ocr text"}
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithPDFParser(pages), WithOCRFallback(ocr))
	require.NoError(t, err)

	text, err := extractor.Extract(context.Background(), []byte("%PDF-1.4"), "cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page one\npage two\npage three", text, "各页应按顺序以换行连接")
	assert.Equal(t, 0, ocr.calls, "有文本层时不应调用OCR")
	assert.Equal(t, "cv.pdf", pages.uri)
}

func TestEinoPDFExtract_BlankFallsBackToOCR(t *testing.T) {
	pages := &fakePageParser{pages: []string{"  ", "\n"}}
	ocr := &fakeOCR{text: "scanned resume text"}
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithPDFParser(pages), WithOCRFallback(ocr))
	require.NoError(t, err)

	text, err := extractor.Extract(context.Background(), []byte("%PDF-1.4"), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "scanned resume text", text)
	assert.Equal(t, 1, ocr.calls)
}

func TestEinoPDFExtract_ParseErrorUsesOCR(t *testing.T) {
	pages := &fakePageParser{err: errors.New("broken xref")}
	ocr := &fakeOCR{text: "recovered"}
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithPDFParser(pages), WithOCRFallback(ocr))
	require.NoError(t, err)

	text, err := extractor.Extract(context.Background(), []byte("%PDF-1.4"), "broken.pdf")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
}

func TestEinoPDFExtract_NoOCRConfigured(t *testing.T) {
	extractor, err := NewEinoPDFTextExtractor(context.Background(), WithPDFParser(&fakePageParser{pages: []string{""}}))
	require.NoError(t, err)

	text, err := extractor.Extract(context.Background(), []byte("%PDF-1.4"), "empty.pdf")
	require.NoError(t, err)
	assert.Empty(t, text, "无OCR时空白PDF返回空文本")

	extractor, err = NewEinoPDFTextExtractor(context.Background(), WithPDFParser(&fakePageParser{err: errors.New("bad")}))
	require.NoError(t, err)
	_, err = extractor.Extract(context.Background(), []byte("%PDF-1.4"), "bad.pdf")
	assert.Error(t, err)
}

// TestEinoPDFExtract_RealFile 使用 testdata 中的真实PDF（存在时）
func TestEinoPDFExtract_RealFile(t *testing.T) {
	path := filepath.Join("testdata", "resume.pdf")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skip("找不到测试PDF文件，跳过测试")
	}

	extractor, err := NewEinoPDFTextExtractor(context.Background())
	require.NoError(t, err)
	text, err := extractor.Extract(context.Background(), data, path)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
