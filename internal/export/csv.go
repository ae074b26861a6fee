package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"resume-screener/internal/types"
)

// CSVHeader 排名结果表的列
var CSVHeader = []string{"filename", "score", "skills", "feedback"}

// WriteCSV 按排名顺序写出结果表，已存在的文件会被覆盖
func WriteCSV(path string, entries []types.RankedEntry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create csv directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(csvRow(e)); err != nil {
			return fmt.Errorf("write csv row %s: %w", e.FileName, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

func csvRow(e types.RankedEntry) []string {
	return []string{
		e.FileName,
		strconv.FormatFloat(e.Score, 'f', -1, 64),
		SkillsCell(e.MatchedTerms),
		e.Feedback,
	}
}

// SkillsCell 把共有词用逗号拼接为一个单元格
func SkillsCell(terms []string) string {
	return strings.Join(terms, ", ")
}
