package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"resume-screener/internal/types"
)

const (
	rankingSheet  = "Ranking"
	outcomesSheet = "Outcomes"
)

// WriteXLSX 写出排名工作簿：Ranking 表按排名列出结果，Outcomes 表列出每个文件的处理状态
func WriteXLSX(path string, result *types.BatchResult) error {
	if result == nil {
		return fmt.Errorf("write xlsx: nil result")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rankingSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(outcomesSheet); err != nil {
		return fmt.Errorf("create outcomes sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create wrap style: %w", err)
	}

	if err := writeRankingSheet(f, result.Entries, headerStyle, wrapStyle); err != nil {
		return err
	}
	if err := writeOutcomesSheet(f, result.Outcomes, headerStyle); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx %s: %w", path, err)
	}
	return nil
}

func writeRankingSheet(f *excelize.File, entries []types.RankedEntry, headerStyle, wrapStyle int) error {
	headers := []string{"Rank", "Filename", "Score", "Skills", "Feedback", "Report"}
	if err := writeHeader(f, rankingSheet, headers, headerStyle); err != nil {
		return err
	}
	_ = f.SetColWidth(rankingSheet, "A", "A", 8)
	_ = f.SetColWidth(rankingSheet, "B", "B", 30)
	_ = f.SetColWidth(rankingSheet, "C", "C", 10)
	_ = f.SetColWidth(rankingSheet, "D", "D", 40)
	_ = f.SetColWidth(rankingSheet, "E", "E", 80)
	_ = f.SetColWidth(rankingSheet, "F", "F", 40)

	for i, e := range entries {
		row := i + 2
		report := e.ReportURL
		if report == "" {
			report = e.ReportPath
		}
		values := []any{e.Rank, e.FileName, e.Score, SkillsCell(e.MatchedTerms), e.Feedback, report}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(rankingSheet, cell, &values); err != nil {
			return fmt.Errorf("write ranking row %d: %w", row, err)
		}
		feedbackCell := fmt.Sprintf("E%d", row)
		if err := f.SetCellStyle(rankingSheet, feedbackCell, feedbackCell, wrapStyle); err != nil {
			return err
		}
	}
	return nil
}

func writeOutcomesSheet(f *excelize.File, outcomes []types.ItemOutcome, headerStyle int) error {
	if err := writeHeader(f, outcomesSheet, []string{"Filename", "Status", "Reason"}, headerStyle); err != nil {
		return err
	}
	_ = f.SetColWidth(outcomesSheet, "A", "A", 30)
	_ = f.SetColWidth(outcomesSheet, "B", "B", 12)
	_ = f.SetColWidth(outcomesSheet, "C", "C", 60)

	for i, o := range outcomes {
		values := []any{o.FileName, string(o.Status), o.Reason}
		if err := f.SetSheetRow(outcomesSheet, fmt.Sprintf("A%d", i+2), &values); err != nil {
			return fmt.Errorf("write outcome row %d: %w", i+2, err)
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}
