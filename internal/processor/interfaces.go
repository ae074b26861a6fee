package processor

import (
	"context"
	"time"

	"resume-screener/internal/storage"
	"resume-screener/internal/types"
)

// TextExtractor 文本提取，由 parser.Extractor 实现
type TextExtractor interface {
	// Extract 提取失败时返回空字符串
	Extract(ctx context.Context, src types.Source) string
	// ExtractDocument 返回带原因的错误
	ExtractDocument(ctx context.Context, src types.Source) (*types.Document, error)
}

// FeedbackGenerator 基于检索增强生成回答问题，由 retrieval.Pipeline 实现
type FeedbackGenerator interface {
	Answer(ctx context.Context, documentID, documentText, question string) (string, error)
}

// ReportStore 反馈报告的对象存储镜像
type ReportStore interface {
	UploadReport(ctx context.Context, runID, localPath string) (string, error)
	PresignedReportURL(ctx context.Context, objectName string) (string, error)
}

// RankingRepository 排名历史持久化，由 storage.MySQL 实现
type RankingRepository interface {
	SaveRankingRun(ctx context.Context, result *types.BatchResult, jdFileName string, target storage.EventTarget) error
}

// JobStore 异步任务状态与处理锁，由 storage.Redis 实现
type JobStore interface {
	SaveJob(ctx context.Context, job *types.BatchJob) error
	GetJob(ctx context.Context, jobID string) (*types.BatchJob, error)
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// BatchFileStore 异步任务输入文件的暂存，由 storage.MinIO 实现
type BatchFileStore interface {
	UploadBatchFile(ctx context.Context, jobID, fileName string, data []byte) (string, string, error)
	DownloadBatchFile(ctx context.Context, objectName string) ([]byte, error)
	DeleteBatchFiles(ctx context.Context, objectNames []string) error
}

// JobPublisher 投递异步任务消息，由 storage.RabbitMQ 实现
type JobPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// ProgressFunc 每完成一份简历回调一次
type ProgressFunc func(done, total int, file string)

var (
	_ ReportStore       = (*storage.MinIO)(nil)
	_ BatchFileStore    = (*storage.MinIO)(nil)
	_ RankingRepository = (*storage.MySQL)(nil)
	_ JobStore          = (*storage.Redis)(nil)
	_ JobPublisher      = (*storage.RabbitMQ)(nil)
)
