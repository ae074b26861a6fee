package processor

import (
	"context"
	"errors"
	"strings"

	"resume-screener/internal/retrieval"
	"resume-screener/internal/scorer"
	"resume-screener/internal/tracing"
	"resume-screener/internal/types"
	"resume-screener/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnalysisResult 单份简历对单个职位描述的评分与反馈
type AnalysisResult struct {
	FileName     string           `json:"filename"`
	Name         string           `json:"name"`
	Role         string           `json:"role"`
	Score        float64          `json:"score"`
	ScoreText    string           `json:"score_text"`
	MatchedTerms []string         `json:"matched_terms"`
	Feedback     string           `json:"feedback"`
	Status       types.ItemStatus `json:"status"`
	ReportPath   string           `json:"report_path,omitempty"`
	ReportURL    string           `json:"report_url,omitempty"`
}

// ScreeningService 交互式界面的三种操作：单份分析、问答、批量排名
type ScreeningService struct {
	ranker *BatchRanker
	asker  FeedbackGenerator
}

// ServiceOption 服务配置选项
type ServiceOption func(*ScreeningService)

// WithAskGenerator 问答使用单独的检索管道（例如配置了 qa 专用模型）
func WithAskGenerator(g FeedbackGenerator) ServiceOption {
	return func(s *ScreeningService) {
		if g != nil {
			s.asker = g
		}
	}
}

// NewScreeningService 复用排名器的提取、检索与渲染组件
func NewScreeningService(ranker *BatchRanker, opts ...ServiceOption) (*ScreeningService, error) {
	if ranker == nil {
		return nil, errors.New("processor: ranker is required")
	}
	s := &ScreeningService{ranker: ranker, asker: ranker.generator}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ranker 返回底层批量排名器
func (s *ScreeningService) Ranker() *BatchRanker {
	return s.ranker
}

// Analyze 评分并生成面向职位的反馈与报告。
// 反馈生成失败不返回错误，结果状态为 failed 且反馈为带错误标记的文本。
func (s *ScreeningService) Analyze(ctx context.Context, resume, jd types.Source) (*AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "processor.Analyze",
		trace.WithAttributes(attribute.String("resume.file", resume.Name), attribute.String("jd.file", jd.Name)))
	defer span.End()

	r := s.ranker
	jdDoc, err := r.extractor.ExtractDocument(ctx, jd)
	if err != nil {
		err = NewJDError(jd.Name, err.Error())
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, err
	}
	resumeDoc, err := r.extractor.ExtractDocument(ctx, resume)
	if err != nil {
		err = NewExtractError(resume.Name, err)
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return nil, err
	}

	role := utils.BaseName(jd.Name)
	name := utils.BaseName(resume.Name)
	score := r.scorer.Score(resumeDoc.Text, jdDoc.Text)

	result := &AnalysisResult{
		FileName:     fileNameOf(resume.Name),
		Name:         name,
		Role:         role,
		Score:        score.Similarity,
		ScoreText:    scorer.FormatScore(score.Similarity),
		MatchedTerms: score.MatchedTerms,
		Status:       types.ItemSuccess,
	}

	answer, err := r.generator.Answer(ctx, name, resumeDoc.Text, retrieval.PersonaPrompt(role))
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		r.logger.Error().Err(err).Str("file", resume.Name).Msg("反馈生成失败")
		result.Feedback = retrieval.ErrorText(err)
		result.Status = types.ItemFailed
	} else {
		result.Feedback = answer
	}

	path, err := r.renderer.Render(ctx, name, result.Feedback)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRender)
		r.logger.Error().Err(err).Str("file", resume.Name).Msg("渲染反馈报告失败")
		return result, nil
	}
	result.ReportPath = path
	if r.reports != nil {
		_, result.ReportURL = r.mirrorReport(ctx, uuid.NewString(), path)
	}
	return result, nil
}

// Ask 针对一份简历回答任意问题，不涉及职位描述与评分
func (s *ScreeningService) Ask(ctx context.Context, resume types.Source, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	ctx, span := tracer.Start(ctx, "processor.Ask", trace.WithAttributes(
		attribute.String("resume.file", resume.Name),
		attribute.String("question", tracing.SafePrompt(question)),
	))
	defer span.End()

	r := s.ranker
	doc, err := r.extractor.ExtractDocument(ctx, resume)
	if err != nil {
		err = NewExtractError(resume.Name, err)
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		return "", err
	}

	answer, err := s.asker.Answer(ctx, utils.BaseName(resume.Name), doc.Text, question)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return "", err
	}
	return answer, nil
}

// Rank 批量排名上传的简历
func (s *ScreeningService) Rank(ctx context.Context, resumes []types.Source, jd types.Source) (*types.BatchResult, error) {
	if len(resumes) == 0 {
		return nil, ErrNoResumes
	}
	return s.ranker.RankSources(ctx, resumes, jd)
}
