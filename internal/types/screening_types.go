package types

import "time"

// Format 表示输入文档的格式
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatText    Format = "txt"
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatUnknown Format = "unknown"
)

// IsImage 判断是否为需要OCR的图片格式
func (f Format) IsImage() bool {
	return f == FormatPNG || f == FormatJPEG
}

// Source 一个待提取的原始文件（上传或从磁盘读取）
type Source struct {
	Name string // 原始文件名，用于格式判断与报告命名
	Data []byte
}

// Document 提取后的文档，提取完成后不再修改
type Document struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	Format Format `json:"format"`
}

// Chunk 文档的一个分块，Offset 以字符(rune)计
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Offset     int    `json:"offset"`
	Text       string `json:"text"`
	Overlap    int    `json:"overlap"` // 与前一个分块重叠的字符数
}

// ScoreResult 词法相似度评分结果
type ScoreResult struct {
	Similarity   float64  `json:"similarity"`    // 0~1 之间的余弦相似度
	MatchedTerms []string `json:"matched_terms"` // 简历与JD共有的小写词
	Diagnostic   string   `json:"diagnostic,omitempty"`
}

// Failed 评分是否走了失败路径
func (s ScoreResult) Failed() bool {
	return s.Diagnostic != ""
}

// FeedbackResult 检索管道生成的反馈
type FeedbackResult struct {
	ResumeID string `json:"resume_id"`
	Text     string `json:"text"`
	Err      error  `json:"-"`
}

// ItemStatus 批量处理中单个简历的结果类型
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemSkipped ItemStatus = "skipped" // 文本提取为空
	ItemFailed  ItemStatus = "failed"  // 反馈生成失败（仍参与排名）
)

// RankedEntry 排名结果中的一行
type RankedEntry struct {
	Rank         int        `json:"rank"`
	Name         string     `json:"name"`     // 去掉扩展名的文件名
	FileName     string     `json:"filename"` // 原始文件名
	Score        float64    `json:"score"`
	MatchedTerms []string   `json:"matched_terms"`
	Feedback     string     `json:"feedback"`
	ReportPath   string     `json:"report_path,omitempty"`
	ReportObject string     `json:"report_object,omitempty"` // 对象存储中的报告名
	ReportURL    string     `json:"report_url,omitempty"`    // 预签名链接，会过期
	Status       ItemStatus `json:"status"`
}

// ItemOutcome 每个输入文件的处理结果
type ItemOutcome struct {
	FileName string     `json:"filename"`
	Status   ItemStatus `json:"status"`
	Reason   string     `json:"reason,omitempty"`
}

// BatchResult 一次批量排名的完整结果
type BatchResult struct {
	RunID    string        `json:"run_id"`
	Role     string        `json:"role"`
	Entries  []RankedEntry `json:"entries"`
	Outcomes []ItemOutcome `json:"outcomes"`
	CSVPath  string        `json:"csv_path,omitempty"`
	XLSXPath string        `json:"xlsx_path,omitempty"`
}

// Count 返回指定状态的输入数
func (b *BatchResult) Count(status ItemStatus) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// JobStatus 异步批量任务状态
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// BatchJob 异步批量任务，保存在 Redis 中供轮询
type BatchJob struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Role      string       `json:"role"`
	Total     int          `json:"total"`
	Done      int          `json:"done"`
	Result    *BatchResult `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BatchJobMessage 投递到队列的异步任务消息，文件保存在对象存储中
type BatchJobMessage struct {
	JobID         string   `json:"job_id"`
	JDObject      string   `json:"jd_object"`
	JDName        string   `json:"jd_name"`
	ResumeObjects []string `json:"resume_objects"`
	ResumeNames   []string `json:"resume_names"`
}
