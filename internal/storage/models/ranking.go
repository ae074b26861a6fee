package models

import (
	"time"

	"gorm.io/datatypes"
)

// RankingRun 一次批量排名的汇总记录
type RankingRun struct {
	RunID      string    `gorm:"type:char(36);primaryKey" json:"run_id"`
	Role       string    `gorm:"type:varchar(255);not null" json:"role"`
	JDFileName string    `gorm:"type:varchar(255)" json:"jd_filename"`
	Total      int       `gorm:"not null" json:"total"`
	Succeeded  int       `gorm:"not null" json:"succeeded"`
	Skipped    int       `gorm:"not null" json:"skipped"`
	Failed     int       `gorm:"not null" json:"failed"`
	CSVPath    string    `gorm:"type:varchar(512)" json:"csv_path"`
	XLSXPath   string    `gorm:"type:varchar(512)" json:"xlsx_path"`
	CreatedAt  time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_ranking_runs_created_at" json:"created_at"`

	Entries []RankingEntry `gorm:"foreignKey:RunID;references:RunID" json:"entries,omitempty"`
}

// TableName 表名
func (RankingRun) TableName() string {
	return "ranking_runs"
}

// RankingEntry 排名结果中的一行
type RankingEntry struct {
	EntryID          string         `gorm:"type:char(36);primaryKey" json:"entry_id"`
	RunID            string         `gorm:"type:char(36);not null;index:idx_ranking_entries_run_rank,priority:1" json:"run_id"`
	Rank             int            `gorm:"not null;index:idx_ranking_entries_run_rank,priority:2" json:"rank"`
	FileName         string         `gorm:"type:varchar(255);not null" json:"filename"`
	Score            float64        `gorm:"not null" json:"score"`
	MatchedTermsJSON datatypes.JSON `gorm:"type:json" json:"matched_terms"`
	Feedback         string         `gorm:"type:mediumtext" json:"feedback"`
	Status           string         `gorm:"type:varchar(20);not null" json:"status"`
	ReportPath       string         `gorm:"type:varchar(512)" json:"report_path"`
	ReportObject     string         `gorm:"type:varchar(512)" json:"report_object"`
	ReportURL        string         `gorm:"-" json:"report_url,omitempty"` // 读取时按 ReportObject 生成
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)" json:"created_at"`
}

// TableName 表名
func (RankingEntry) TableName() string {
	return "ranking_entries"
}
