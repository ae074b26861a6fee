package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// RankingModulePrefix 批量排名模块
	RankingModulePrefix = "ranking"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntityJob 异步任务实体
	EntityJob = "job"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityText 文本实体
	EntityText = "text"

	// KeyRankingJob 异步批量任务状态 (STRING, JSON)
	// 格式: app:ranking:job:{jobID}
	KeyRankingJob = AppPrefix + ":" + RankingModulePrefix + ":" + EntityJob + ":%s"

	// KeyRankingJobLock 任务处理锁，防止重复投递被并发消费 (STRING)
	// 格式: app:ranking:lock:{jobID}
	KeyRankingJobLock = AppPrefix + ":" + RankingModulePrefix + ":" + EntityLock + ":%s"

	// KeyExtractedText 按文件内容MD5缓存的提取文本 (STRING)
	// 格式: app:file:text:{md5}
	KeyExtractedText = AppPrefix + ":" + FileModulePrefix + ":" + EntityText + ":%s"
)
