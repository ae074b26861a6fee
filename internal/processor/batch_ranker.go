package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"resume-screener/internal/export"
	"resume-screener/internal/feedback"
	"resume-screener/internal/logger"
	"resume-screener/internal/parser"
	"resume-screener/internal/retrieval"
	"resume-screener/internal/scorer"
	"resume-screener/internal/storage"
	"resume-screener/internal/tracing"
	"resume-screener/internal/types"
	"resume-screener/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("resume-screener/processor")

// BatchRanker 对一批简历和一个职位描述进行评分、生成反馈并排序
type BatchRanker struct {
	extractor TextExtractor
	scorer    *scorer.LexicalScorer
	generator FeedbackGenerator
	renderer  feedback.Renderer

	workers  int
	csvPath  string
	xlsxPath string

	reports     ReportStore
	repo        RankingRepository
	eventTarget storage.EventTarget
	progress    ProgressFunc

	logger zerolog.Logger
}

// NewBatchRanker 创建批量排名器
func NewBatchRanker(extractor TextExtractor, generator FeedbackGenerator, renderer feedback.Renderer, opts ...RankerOption) (*BatchRanker, error) {
	if extractor == nil {
		return nil, errors.New("processor: extractor is required")
	}
	if generator == nil {
		return nil, errors.New("processor: feedback generator is required")
	}
	if renderer == nil {
		return nil, errors.New("processor: renderer is required")
	}

	r := &BatchRanker{
		extractor: extractor,
		scorer:    scorer.New(),
		generator: generator,
		renderer:  renderer,
		workers:   defaultWorkers,
		csvPath:   defaultCSVPath,
		logger:    logger.Component("batch_ranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// WithProgress 返回使用指定进度回调的副本，用于单次异步任务
func (r *BatchRanker) WithProgress(fn ProgressFunc) *BatchRanker {
	cp := *r
	cp.progress = fn
	return &cp
}

// rankItem 一份待处理的简历，文件在工作协程中按需读取
type rankItem struct {
	name string
	load func() (types.Source, error)
}

type itemResult struct {
	entry   *types.RankedEntry
	outcome types.ItemOutcome
}

// Rank 从磁盘读取简历与职位描述并排名
func (r *BatchRanker) Rank(ctx context.Context, resumeFiles []string, jdFile string) (*types.BatchResult, error) {
	jd, err := parser.ReadSource(jdFile)
	if err != nil {
		return nil, NewJDError(jdFile, err.Error())
	}

	items := make([]rankItem, len(resumeFiles))
	for i, path := range resumeFiles {
		path := path
		items[i] = rankItem{
			name: path,
			load: func() (types.Source, error) { return parser.ReadSource(path) },
		}
	}
	return r.rank(ctx, items, jd)
}

// RankSources 对已在内存中的上传文件排名
func (r *BatchRanker) RankSources(ctx context.Context, resumes []types.Source, jd types.Source) (*types.BatchResult, error) {
	items := make([]rankItem, len(resumes))
	for i := range resumes {
		src := resumes[i]
		items[i] = rankItem{
			name: src.Name,
			load: func() (types.Source, error) { return src, nil },
		}
	}
	return r.rank(ctx, items, jd)
}

func (r *BatchRanker) rank(ctx context.Context, items []rankItem, jd types.Source) (*types.BatchResult, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "processor.Rank",
		trace.WithAttributes(
			attribute.String("ranking.run_id", runID),
			attribute.Int("ranking.total", len(items)),
			attribute.String("ranking.jd", jd.Name),
		))
	defer span.End()

	log := r.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	// 职位描述只提取一次，为空则整批失败且不产生任何产物
	jdText := r.extractor.Extract(ctx, jd)
	if strings.TrimSpace(jdText) == "" {
		err := NewJDError(jd.Name, "extraction yielded empty text")
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		log.Error().Err(err).Msg("职位描述提取失败，终止本次排名")
		return nil, err
	}

	role := utils.BaseName(jd.Name)
	question := retrieval.PersonaPrompt(role)
	log.Info().Str("role", role).Int("resumes", len(items)).Int("workers", r.workers).Msg("开始批量排名")

	results := make([]itemResult, len(items))
	var (
		wg        sync.WaitGroup
		progressM sync.Mutex
		done      int
	)
	sem := make(chan struct{}, r.workers)

schedule:
	for i := range items {
		select {
		case <-ctx.Done():
			break schedule
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = r.processOne(ctx, runID, jdText, question, items[i])

			if r.progress != nil {
				progressM.Lock()
				done++
				r.progress(done, len(items), results[i].outcome.FileName)
				progressM.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("批量排名被取消")
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	result := &types.BatchResult{
		RunID:    runID,
		Role:     role,
		Entries:  make([]types.RankedEntry, 0, len(items)),
		Outcomes: make([]types.ItemOutcome, 0, len(items)),
	}
	for _, res := range results {
		result.Outcomes = append(result.Outcomes, res.outcome)
		if res.entry != nil {
			result.Entries = append(result.Entries, *res.entry)
		}
	}
	SortEntries(result.Entries)

	r.export(ctx, result, log)

	if r.repo != nil {
		if err := r.repo.SaveRankingRun(ctx, result, jd.Name, r.eventTarget); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			log.Error().Err(err).Msg("保存排名历史失败")
		}
	}

	span.SetAttributes(
		attribute.Int("ranking.succeeded", result.Count(types.ItemSuccess)),
		attribute.Int("ranking.skipped", result.Count(types.ItemSkipped)),
		attribute.Int("ranking.failed", result.Count(types.ItemFailed)),
	)
	log.Info().
		Int("ranked", len(result.Entries)).
		Int("skipped", result.Count(types.ItemSkipped)).
		Int("failed", result.Count(types.ItemFailed)).
		Dur("duration", time.Since(start)).
		Msg("批量排名完成")
	return result, nil
}

// processOne 处理单份简历，任何失败都只影响这一项
func (r *BatchRanker) processOne(ctx context.Context, runID, jdText, question string, it rankItem) itemResult {
	src, err := it.load()
	if err != nil {
		r.logger.Warn().Err(err).Str("file", it.name).Msg("读取简历失败，跳过")
		return itemResult{outcome: types.ItemOutcome{FileName: fileNameOf(it.name), Status: types.ItemSkipped, Reason: err.Error()}}
	}
	fileName := fileNameOf(src.Name)

	text := r.extractor.Extract(ctx, src)
	if strings.TrimSpace(text) == "" {
		r.logger.Warn().Str("file", fileName).Msg("简历未提取到文本，跳过")
		return itemResult{outcome: types.ItemOutcome{FileName: fileName, Status: types.ItemSkipped, Reason: parser.ErrEmptyText.Error()}}
	}

	name := utils.BaseName(fileName)
	score := r.scorer.Score(text, jdText)
	if score.Failed() {
		r.logger.Warn().Str("file", fileName).Str("diagnostic", score.Diagnostic).Msg("评分失败，记为0分")
	}

	entry := &types.RankedEntry{
		Name:         name,
		FileName:     fileName,
		Score:        score.Similarity,
		MatchedTerms: score.MatchedTerms,
		Status:       types.ItemSuccess,
	}
	outcome := types.ItemOutcome{FileName: fileName, Status: types.ItemSuccess}

	answer, err := r.generator.Answer(ctx, name, text, question)
	if err != nil {
		r.logger.Error().Err(err).Str("file", fileName).Str("stage", string(retrieval.StageOf(err))).Msg("反馈生成失败")
		entry.Feedback = retrieval.ErrorText(err)
		entry.Status = types.ItemFailed
		outcome.Status = types.ItemFailed
		outcome.Reason = err.Error()
	} else {
		entry.Feedback = answer
	}

	path, err := r.renderer.Render(ctx, name, entry.Feedback)
	if err != nil {
		r.logger.Error().Err(err).Str("file", fileName).Msg("渲染反馈报告失败")
		return itemResult{entry: entry, outcome: outcome}
	}
	entry.ReportPath = path

	if r.reports != nil {
		entry.ReportObject, entry.ReportURL = r.mirrorReport(ctx, runID, path)
	}
	return itemResult{entry: entry, outcome: outcome}
}

// mirrorReport 上传报告，返回对象名和预签名链接，失败的部分为空串
func (r *BatchRanker) mirrorReport(ctx context.Context, runID, path string) (string, string) {
	object, err := r.reports.UploadReport(ctx, runID, path)
	if err != nil {
		r.logger.Warn().Err(err).Str("report", path).Msg("上传报告到对象存储失败")
		return "", ""
	}
	url, err := r.reports.PresignedReportURL(ctx, object)
	if err != nil {
		r.logger.Warn().Err(err).Str("object", object).Msg("生成报告下载链接失败")
		return object, ""
	}
	return object, url
}

// export 写出表格文件，失败只记录日志
func (r *BatchRanker) export(ctx context.Context, result *types.BatchResult, log zerolog.Logger) {
	if err := export.WriteCSV(r.csvPath, result.Entries); err != nil {
		tracing.RecordError(trace.SpanFromContext(ctx), err, tracing.ErrorTypeInternal)
		log.Error().Err(err).Str("path", r.csvPath).Msg("写出CSV失败")
	} else {
		result.CSVPath = r.csvPath
	}

	if r.xlsxPath == "" {
		return
	}
	if err := export.WriteXLSX(r.xlsxPath, result); err != nil {
		log.Error().Err(err).Str("path", r.xlsxPath).Msg("写出xlsx失败")
		return
	}
	result.XLSXPath = xlsxName(r.xlsxPath)
}

// SortEntries 按分数降序稳定排序，同分保持输入顺序，并写入名次
func SortEntries(entries []types.RankedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

func fileNameOf(name string) string {
	base := utils.BaseName(name)
	if base == "" {
		return name
	}
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

func xlsxName(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return path
	}
	return fmt.Sprintf("%s.xlsx", path)
}
