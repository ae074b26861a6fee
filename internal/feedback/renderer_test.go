package feedback

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer("pdf", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "pdf", r.Ext())

	r, err = NewRenderer("TXT", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "txt", r.Ext())

	_, err = NewRenderer("docx", t.TempDir())
	assert.Error(t, err)
}

func TestPDFRenderer_WritesReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pdf_feedback")
	r := NewPDFRenderer(dir)

	path, err := r.Render(context.Background(), "jane_doe", strings.Repeat("Tailor the summary to the role. ", 400))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "jane_doe_feedback.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestPDFRenderer_OverwritesAndStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	r := NewPDFRenderer(dir)

	first, err := r.Render(context.Background(), "../../etc/jane", "first")
	require.NoError(t, err)
	second, err := r.Render(context.Background(), "jane", "second, longer body text")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, filepath.Join(dir, "jane_feedback.pdf"), second)
}

func TestPDFRenderer_ConcurrentSameName(t *testing.T) {
	dir := t.TempDir()
	r := NewPDFRenderer(dir)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := r.Render(context.Background(), "cand", strings.Repeat("feedback body ", 50*(i+1)))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "cand_feedback.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Equal(t, 1, bytes.Count(data, []byte("%%EOF")), "报告内容不应交错")
	assert.True(t, bytes.HasSuffix(bytes.TrimSpace(data), []byte("%%EOF")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "临时文件应被清理")
}

func TestTextRenderer_PaginatesWithHeader(t *testing.T) {
	dir := t.TempDir()
	r := NewTextRenderer(dir)

	body := strings.Repeat("line of feedback\n", 130)
	path, err := r.Render(context.Background(), "john", body)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "Resume Feedback for: john\n"))
	pages := strings.Split(text, pageSeparator)
	assert.Len(t, pages, 3)
	assert.Contains(t, pages[0], "Page 1")
	assert.Contains(t, pages[2], "Page 3")
}

func TestRender_EmptyName(t *testing.T) {
	_, err := NewTextRenderer(t.TempDir()).Render(context.Background(), "  ", "x")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPDFRenderer(t.TempDir()).Render(ctx, "n", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrapLines(t *testing.T) {
	got := wrapLines("aaa bbb ccc\n\nddd", 7)
	assert.Equal(t, []string{"aaa bbb", "ccc", "", "ddd"}, got)
}
