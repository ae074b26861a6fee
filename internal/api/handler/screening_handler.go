package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"resume-screener/internal/processor"
	"resume-screener/internal/retrieval"
	"resume-screener/internal/storage/models"
	"resume-screener/internal/tracing"
	"resume-screener/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// RunHistory 排名历史查询，MySQL 未配置时为 nil
type RunHistory interface {
	ListRankingRuns(ctx context.Context, limit int) ([]models.RankingRun, error)
	GetRankingRun(ctx context.Context, runID string) (*models.RankingRun, error)
}

// ReportLinker 为对象存储中的报告生成下载链接
type ReportLinker interface {
	PresignedReportURL(ctx context.Context, objectName string) (string, error)
}

// ScreeningHandler 界面三个视图及异步任务、报告下载的 HTTP 入口
type ScreeningHandler struct {
	service   *processor.ScreeningService
	jobs      *processor.JobRunner
	history   RunHistory
	linker    ReportLinker
	reportDir string
	maxUpload int64
	logger    zerolog.Logger
}

// HandlerOption 处理器配置选项
type HandlerOption func(*ScreeningHandler)

// WithJobRunner 启用异步批量排名
func WithJobRunner(jobs *processor.JobRunner) HandlerOption {
	return func(h *ScreeningHandler) {
		h.jobs = jobs
	}
}

// WithHistory 启用排名历史查询
func WithHistory(history RunHistory) HandlerOption {
	return func(h *ScreeningHandler) {
		h.history = history
	}
}

// WithReportLinker 查询历史时为已上传的报告重新签发下载链接
func WithReportLinker(linker ReportLinker) HandlerOption {
	return func(h *ScreeningHandler) {
		h.linker = linker
	}
}

// WithMaxUploadBytes 单个上传文件的大小上限
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *ScreeningHandler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// WithHandlerLogger 设置日志
func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *ScreeningHandler) {
		h.logger = l
	}
}

// NewScreeningHandler 创建处理器，reportDir 为反馈报告的本地目录
func NewScreeningHandler(service *processor.ScreeningService, reportDir string, opts ...HandlerOption) *ScreeningHandler {
	h := &ScreeningHandler{
		service:   service,
		reportDir: reportDir,
		maxUpload: 32 << 20,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AsyncEnabled 是否支持异步批量排名
func (h *ScreeningHandler) AsyncEnabled() bool {
	return h.jobs != nil
}

// Index 返回单页界面
func (h *ScreeningHandler) Index(c context.Context, ctx *app.RequestContext) {
	ctx.Data(consts.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// Health 健康检查
func (h *ScreeningHandler) Health(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, utils.H{"status": "ok", "async": h.AsyncEnabled(), "history": h.history != nil})
}

// Analyze 视图一：单份简历评分与反馈
func (h *ScreeningHandler) Analyze(c context.Context, ctx *app.RequestContext) {
	resume, err := h.formSource(ctx, "resume")
	if err != nil {
		h.badRequest(ctx, err)
		return
	}
	jd, err := h.formSource(ctx, "jd")
	if err != nil {
		h.badRequest(ctx, err)
		return
	}

	result, err := h.service.Analyze(c, resume, jd)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	if result.ReportPath != "" {
		result.ReportPath = reportLink(result.ReportPath)
	}
	ctx.JSON(consts.StatusOK, result)
}

// Ask 视图二：针对简历的自由问答
func (h *ScreeningHandler) Ask(c context.Context, ctx *app.RequestContext) {
	resume, err := h.formSource(ctx, "resume")
	if err != nil {
		h.badRequest(ctx, err)
		return
	}
	question := ctx.PostForm("question")

	answer, err := h.service.Ask(c, resume, question)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"filename": resume.Name, "question": question, "answer": answer})
}

// Rank 视图三：批量排名。async=true 时提交到队列并返回 202。
func (h *ScreeningHandler) Rank(c context.Context, ctx *app.RequestContext) {
	jd, err := h.formSource(ctx, "jd")
	if err != nil {
		h.badRequest(ctx, err)
		return
	}
	resumes, err := h.formSources(ctx, "resumes")
	if err != nil {
		h.badRequest(ctx, err)
		return
	}

	if async, _ := strconv.ParseBool(ctx.PostForm("async")); async {
		if h.jobs == nil {
			h.writeError(c, ctx, processor.ErrAsyncUnavailable)
			return
		}
		job, err := h.jobs.Submit(c, resumes, jd)
		if err != nil {
			h.writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusAccepted, job)
		return
	}

	result, err := h.service.Rank(c, resumes, jd)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	linkReports(result)
	ctx.JSON(consts.StatusOK, result)
}

// JobStatus 查询异步任务
func (h *ScreeningHandler) JobStatus(c context.Context, ctx *app.RequestContext) {
	if h.jobs == nil {
		h.writeError(c, ctx, processor.ErrAsyncUnavailable)
		return
	}
	job, err := h.jobs.Status(c, ctx.Param("id"))
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	linkReports(job.Result)
	ctx.JSON(consts.StatusOK, job)
}

// Report 下载反馈报告
func (h *ScreeningHandler) Report(c context.Context, ctx *app.RequestContext) {
	name := filepath.Base(ctx.Param("file"))
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, "..") {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "非法的文件名"})
		return
	}
	path := filepath.Join(h.reportDir, name)
	if _, err := os.Stat(path); err != nil {
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "报告不存在"})
		return
	}
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	ctx.File(path)
}

// ListHistory 最近的排名批次
func (h *ScreeningHandler) ListHistory(c context.Context, ctx *app.RequestContext) {
	if h.history == nil {
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{"error": "排名历史未启用"})
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	runs, err := h.history.ListRankingRuns(c, limit)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, utils.H{"runs": runs})
}

// GetHistory 单个批次及其全部条目
func (h *ScreeningHandler) GetHistory(c context.Context, ctx *app.RequestContext) {
	if h.history == nil {
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{"error": "排名历史未启用"})
		return
	}
	run, err := h.history.GetRankingRun(c, ctx.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && run == nil) {
		ctx.JSON(consts.StatusNotFound, utils.H{"error": "批次不存在"})
		return
	}
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	h.signReports(c, run)
	ctx.JSON(consts.StatusOK, run)
}

// signReports 预签名链接会过期，每次读取时重新生成
func (h *ScreeningHandler) signReports(c context.Context, run *models.RankingRun) {
	if h.linker == nil {
		return
	}
	for i := range run.Entries {
		e := &run.Entries[i]
		if e.ReportObject == "" {
			continue
		}
		url, err := h.linker.PresignedReportURL(c, e.ReportObject)
		if err != nil {
			h.logger.Warn().Err(err).Str("object", e.ReportObject).Msg("生成报告下载链接失败")
			continue
		}
		e.ReportURL = url
	}
}

func (h *ScreeningHandler) formSource(ctx *app.RequestContext, field string) (types.Source, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return types.Source{}, fmt.Errorf("缺少上传文件 %s", field)
	}
	return h.readUpload(fh)
}

func (h *ScreeningHandler) formSources(ctx *app.RequestContext, field string) ([]types.Source, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("解析表单失败: %w", err)
	}
	headers := form.File[field]
	if len(headers) == 0 {
		headers = form.File[field+"[]"]
	}
	sources := make([]types.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := h.readUpload(fh)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func (h *ScreeningHandler) readUpload(fh *multipart.FileHeader) (types.Source, error) {
	if fh.Size > h.maxUpload {
		return types.Source{}, fmt.Errorf("文件 %s 超过大小上限 %d MB", fh.Filename, h.maxUpload>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return types.Source{}, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return types.Source{}, fmt.Errorf("读取上传文件失败: %w", err)
	}
	return types.Source{Name: fh.Filename, Data: data}, nil
}

func (h *ScreeningHandler) badRequest(ctx *app.RequestContext, err error) {
	ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
}

// writeError 将业务错误映射为状态码
func (h *ScreeningHandler) writeError(c context.Context, ctx *app.RequestContext, err error) {
	status := statusFor(err)
	span := trace.SpanFromContext(c)
	tracing.RecordHTTPError(span, err, status)
	if status >= consts.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", string(ctx.Path())).Int("status", status).Msg("请求处理失败")
	}

	body := utils.H{"error": err.Error()}
	if stage := retrieval.StageOf(err); stage != "" {
		body["stage"] = stage
	}
	ctx.JSON(status, body)
}

func statusFor(err error) int {
	var pipelineErr *retrieval.PipelineError
	switch {
	case errors.Is(err, processor.ErrEmptyJobDescription),
		errors.Is(err, processor.ErrNoResumes),
		errors.Is(err, processor.ErrEmptyQuestion):
		return consts.StatusBadRequest
	case errors.Is(err, processor.ErrExtractionFailed):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, processor.ErrJobNotFound):
		return consts.StatusNotFound
	case errors.Is(err, processor.ErrAsyncUnavailable):
		return consts.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	case errors.As(err, &pipelineErr):
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}

func linkReports(result *types.BatchResult) {
	if result == nil {
		return
	}
	for i := range result.Entries {
		if result.Entries[i].ReportPath != "" {
			result.Entries[i].ReportPath = reportLink(result.Entries[i].ReportPath)
		}
	}
}

// reportLink 报告的下载地址
func reportLink(path string) string {
	return "/api/v1/reports/" + filepath.Base(path)
}
