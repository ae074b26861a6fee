package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"testing"

	"resume-screener/internal/api/handler"
	"resume-screener/internal/api/router"
	"resume-screener/internal/feedback"
	"resume-screener/internal/parser"
	"resume-screener/internal/processor"
	"resume-screener/internal/retrieval"
	"resume-screener/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testJD = "golang kubernetes docker microservices"

type stubGenerator struct {
	err error
}

func (s stubGenerator) Answer(_ context.Context, documentID, _, question string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "Answer for " + documentID + ": " + question, nil
}

type upload struct {
	field, name, content string
}

func multipartBody(t *testing.T, files []upload, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func newTestServer(t *testing.T, gen processor.FeedbackGenerator, apiKeys []string, opts ...handler.HandlerOption) *server.Hertz {
	t.Helper()
	reportDir := t.TempDir()
	ranker, err := processor.NewBatchRanker(
		parser.NewExtractor(parser.WithExtractorLogger(zerolog.Nop())),
		gen,
		feedback.NewTextRenderer(reportDir),
		processor.WithLogger(zerolog.Nop()),
		processor.WithCSVPath(t.TempDir()+"/ranking.csv"),
	)
	require.NoError(t, err)
	svc, err := processor.NewScreeningService(ranker)
	require.NoError(t, err)

	h := server.Default()
	router.RegisterRoutes(h, handler.NewScreeningHandler(svc, reportDir, append([]handler.HandlerOption{handler.WithMaxUploadBytes(1 << 20)}, opts...)...), apiKeys)
	return h
}

func post(h *server.Hertz, path string, body *bytes.Buffer, contentType string, headers ...ut.Header) *ut.ResponseRecorder {
	headers = append(headers, ut.Header{Key: "Content-Type", Value: contentType})
	return ut.PerformRequest(h.Engine, consts.MethodPost, path, &ut.Body{Body: body, Len: body.Len()}, headers...)
}

func decode(t *testing.T, w *ut.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &out), string(w.Result().Body()))
	return out
}

func TestIndexAndHealth(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil)

	w := ut.PerformRequest(h.Engine, consts.MethodGet, "/", nil)
	assert.Equal(t, consts.StatusOK, w.Code)
	assert.Contains(t, string(w.Result().Body()), "Rank resumes")

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, consts.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["async"])
}

func TestAnalyzeAndDownloadReport(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil)

	buf, ct := multipartBody(t, []upload{
		{"resume", "jane_doe.txt", "golang kubernetes engineer"},
		{"jd", "platform_engineer.txt", testJD},
	}, nil)
	w := post(h, "/api/v1/analyze", buf, ct)
	require.Equal(t, consts.StatusOK, w.Code, string(w.Result().Body()))

	body := decode(t, w)
	assert.Equal(t, "jane_doe", body["name"])
	assert.Equal(t, "platform_engineer", body["role"])
	assert.Equal(t, "success", body["status"])
	assert.Contains(t, body["feedback"], "Answer for jane_doe")
	reportPath, _ := body["report_path"].(string)
	assert.Equal(t, "/api/v1/reports/"+feedback.ReportFileName("jane_doe", feedback.FormatText), reportPath)

	w = ut.PerformRequest(h.Engine, consts.MethodGet, reportPath, nil)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Contains(t, string(w.Result().Header.Peek("Content-Disposition")), "attachment")
	assert.Contains(t, string(w.Result().Body()), "jane_doe")

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/reports/missing.pdf", nil)
	assert.Equal(t, consts.StatusNotFound, w.Code)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil)

	buf, ct := multipartBody(t, []upload{{"resume", "a.txt", "golang"}}, nil)
	w := post(h, "/api/v1/analyze", buf, ct)
	assert.Equal(t, consts.StatusBadRequest, w.Code, "missing jd upload")

	buf, ct = multipartBody(t, []upload{{"resume", "a.txt", "golang"}, {"jd", "jd.txt", "   "}}, nil)
	w = post(h, "/api/v1/analyze", buf, ct)
	assert.Equal(t, consts.StatusBadRequest, w.Code, "empty job description")

	buf, ct = multipartBody(t, []upload{{"resume", "a.bin", "\x00\x01\x02"}, {"jd", "jd.txt", testJD}}, nil)
	w = post(h, "/api/v1/analyze", buf, ct)
	assert.Equal(t, consts.StatusUnprocessableEntity, w.Code, "unreadable resume")
}

func TestAsk(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil)

	buf, ct := multipartBody(t, []upload{{"resume", "jane.txt", "ten years of golang"}},
		map[string]string{"question": "How much Go?"})
	w := post(h, "/api/v1/ask", buf, ct)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Equal(t, "Answer for jane: How much Go?", decode(t, w)["answer"])

	buf, ct = multipartBody(t, []upload{{"resume", "jane.txt", "golang"}}, map[string]string{"question": " "})
	w = post(h, "/api/v1/ask", buf, ct)
	assert.Equal(t, consts.StatusBadRequest, w.Code)
}

func TestAsk_PipelineFailure(t *testing.T) {
	gen := stubGenerator{err: &retrieval.PipelineError{Stage: retrieval.StageEmbed, Err: retrieval.ErrEmbedding}}
	h := newTestServer(t, gen, nil)

	buf, ct := multipartBody(t, []upload{{"resume", "jane.txt", "golang"}}, map[string]string{"question": "Go?"})
	w := post(h, "/api/v1/ask", buf, ct)
	assert.Equal(t, consts.StatusBadGateway, w.Code)
	assert.Equal(t, "embed", decode(t, w)["stage"])
}

func TestRank(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil)

	buf, ct := multipartBody(t, []upload{
		{"resumes", "weak.txt", "python"},
		{"resumes", "strong.txt", testJD},
		{"resumes", "blank.txt", ""},
		{"jd", "sre.txt", testJD},
	}, nil)
	w := post(h, "/api/v1/rank", buf, ct)
	require.Equal(t, consts.StatusOK, w.Code, string(w.Result().Body()))

	body := decode(t, w)
	assert.Equal(t, "sre", body["role"])
	entries, ok := body["entries"].([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "strong", first["name"])
	assert.EqualValues(t, 1, first["rank"])
	assert.Contains(t, first["report_path"], "/api/v1/reports/")

	buf, ct = multipartBody(t, []upload{{"jd", "sre.txt", testJD}}, nil)
	w = post(h, "/api/v1/rank", buf, ct)
	assert.Equal(t, consts.StatusBadRequest, w.Code, "no resumes")
}

func TestRank_AsyncUnavailable(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, nil)

	buf, ct := multipartBody(t, []upload{{"resumes", "a.txt", "golang"}, {"jd", "sre.txt", testJD}},
		map[string]string{"async": "true"})
	w := post(h, "/api/v1/rank", buf, ct)
	assert.Equal(t, consts.StatusServiceUnavailable, w.Code)

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/jobs/abc", nil)
	assert.Equal(t, consts.StatusServiceUnavailable, w.Code)

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/history", nil)
	assert.Equal(t, consts.StatusServiceUnavailable, w.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, []string{"secret"})

	w := ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, consts.StatusOK, w.Code, "health is public")

	buf, ct := multipartBody(t, []upload{{"resume", "jane.txt", "golang"}}, map[string]string{"question": "Go?"})
	w = post(h, "/api/v1/ask", buf, ct)
	assert.Equal(t, consts.StatusUnauthorized, w.Code)

	buf, ct = multipartBody(t, []upload{{"resume", "jane.txt", "golang"}}, map[string]string{"question": "Go?"})
	w = post(h, "/api/v1/ask", buf, ct, ut.Header{Key: "X-API-Key", Value: "wrong"})
	assert.Equal(t, consts.StatusUnauthorized, w.Code)

	buf, ct = multipartBody(t, []upload{{"resume", "jane.txt", "golang"}}, map[string]string{"question": "Go?"})
	w = post(h, "/api/v1/ask", buf, ct, ut.Header{Key: "X-API-Key", Value: "secret"})
	assert.Equal(t, consts.StatusOK, w.Code)

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/", nil)
	assert.Equal(t, consts.StatusOK, w.Code, "ui page is public")
}

func TestReportDownloadWithAPIKey(t *testing.T) {
	h := newTestServer(t, stubGenerator{}, []string{"secret"})
	key := ut.Header{Key: "X-API-Key", Value: "secret"}

	buf, ct := multipartBody(t, []upload{
		{"resume", "jane_doe.txt", "golang kubernetes engineer"},
		{"jd", "platform_engineer.txt", testJD},
	}, nil)
	w := post(h, "/api/v1/analyze", buf, ct, key)
	require.Equal(t, consts.StatusOK, w.Code, string(w.Result().Body()))
	reportPath, _ := decode(t, w)["report_path"].(string)
	require.NotEmpty(t, reportPath)

	w = ut.PerformRequest(h.Engine, consts.MethodGet, reportPath, nil, key)
	require.Equal(t, consts.StatusOK, w.Code)
	assert.Contains(t, string(w.Result().Body()), "jane_doe")

	w = ut.PerformRequest(h.Engine, consts.MethodGet, reportPath, nil)
	assert.Equal(t, consts.StatusUnauthorized, w.Code, "报告下载同样需要 API Key")

	// 界面通过带请求头的 fetch 下载报告，而不是裸链接
	page := string(ut.PerformRequest(h.Engine, consts.MethodGet, "/", nil).Result().Body())
	assert.Contains(t, page, `class="report" data-href=`)
	assert.Contains(t, page, "fetch(href, {headers: authHeaders()})")
	assert.NotContains(t, page, `<a href="${esc(r.report_path)}">`)
	assert.Contains(t, page, "AI Feedback")
}

type fakeHistory struct {
	run *models.RankingRun
}

func (f fakeHistory) ListRankingRuns(_ context.Context, _ int) ([]models.RankingRun, error) {
	return []models.RankingRun{{RunID: f.run.RunID, Role: f.run.Role}}, nil
}

func (f fakeHistory) GetRankingRun(_ context.Context, runID string) (*models.RankingRun, error) {
	if runID != f.run.RunID {
		return nil, gorm.ErrRecordNotFound
	}
	run := *f.run
	run.Entries = append([]models.RankingEntry(nil), f.run.Entries...)
	return &run, nil
}

type fakeLinker struct{}

func (fakeLinker) PresignedReportURL(_ context.Context, objectName string) (string, error) {
	return "https://minio.local/" + objectName + "?signed=now", nil
}

func TestGetHistory_SignsReportsOnRead(t *testing.T) {
	history := fakeHistory{run: &models.RankingRun{
		RunID: "run-1",
		Role:  "sre",
		Entries: []models.RankingEntry{
			{Rank: 1, FileName: "strong.txt", ReportObject: "reports/run-1/strong_feedback.pdf"},
			{Rank: 2, FileName: "weak.txt"},
		},
	}}
	h := newTestServer(t, stubGenerator{}, nil, handler.WithHistory(history), handler.WithReportLinker(fakeLinker{}))

	w := ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/history/run-1", nil)
	require.Equal(t, consts.StatusOK, w.Code, string(w.Result().Body()))
	entries := decode(t, w)["entries"].([]interface{})
	require.Len(t, entries, 2)
	assert.Equal(t, "https://minio.local/reports/run-1/strong_feedback.pdf?signed=now", entries[0].(map[string]interface{})["report_url"])
	assert.Nil(t, entries[1].(map[string]interface{})["report_url"], "未上传的报告没有链接")

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/history/missing", nil)
	assert.Equal(t, consts.StatusNotFound, w.Code)

	w = ut.PerformRequest(h.Engine, consts.MethodGet, "/api/v1/history", nil)
	assert.Equal(t, consts.StatusOK, w.Code)
}
