package constants

import "time"

const (
	// DefaultRole 职位描述文件名为空时使用的角色名
	DefaultRole = "this role"

	// ReportHeaderPrefix 反馈报告标题前缀
	ReportHeaderPrefix = "Resume Feedback for: "

	// OutboxEventRankingCompleted 批量排名完成事件
	OutboxEventRankingCompleted = "ranking.completed"
	// AggregateTypeRankingRun 出站消息的聚合类型
	AggregateTypeRankingRun = "ranking_run"

	// JobLockTTL 异步任务处理锁的过期时间
	JobLockTTL = 30 * time.Minute
)

// SupportedExtensions 批量模式下扫描的简历文件扩展名
var SupportedExtensions = []string{".pdf", ".docx", ".txt", ".png", ".jpg", ".jpeg"}
