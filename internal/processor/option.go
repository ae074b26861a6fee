package processor

import (
	"resume-screener/internal/scorer"
	"resume-screener/internal/storage"

	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 4
	defaultCSVPath = "batch_ranking_results.csv"
)

// RankerOption 批量排名器配置选项
type RankerOption func(*BatchRanker)

// WithWorkers 设置并发处理的简历数
func WithWorkers(n int) RankerOption {
	return func(r *BatchRanker) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(l zerolog.Logger) RankerOption {
	return func(r *BatchRanker) {
		r.logger = l
	}
}

// WithCSVPath 设置CSV导出路径
func WithCSVPath(path string) RankerOption {
	return func(r *BatchRanker) {
		if path != "" {
			r.csvPath = path
		}
	}
}

// WithXLSXPath 设置xlsx导出路径，为空则不导出
func WithXLSXPath(path string) RankerOption {
	return func(r *BatchRanker) {
		r.xlsxPath = path
	}
}

// WithScorer 替换默认词法评分器
func WithScorer(s *scorer.LexicalScorer) RankerOption {
	return func(r *BatchRanker) {
		if s != nil {
			r.scorer = s
		}
	}
}

// WithReportStore 把生成的报告镜像到对象存储并返回预签名链接
func WithReportStore(store ReportStore) RankerOption {
	return func(r *BatchRanker) {
		r.reports = store
	}
}

// WithRankingRepository 保存排名历史，target.Exchange 非空时同时写出完成事件
func WithRankingRepository(repo RankingRepository, target storage.EventTarget) RankerOption {
	return func(r *BatchRanker) {
		r.repo = repo
		r.eventTarget = target
	}
}

// WithProgress 设置进度回调
func WithProgress(fn ProgressFunc) RankerOption {
	return func(r *BatchRanker) {
		r.progress = fn
	}
}
