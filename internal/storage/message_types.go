package storage

import "time"

// RankingCompletedEvent 批量排名完成后经出站表投递的事件
type RankingCompletedEvent struct {
	RunID       string    `json:"run_id"`
	Role        string    `json:"role"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	TopFile     string    `json:"top_file,omitempty"`
	TopScore    float64   `json:"top_score"`
	CSVPath     string    `json:"csv_path,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
