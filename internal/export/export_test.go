package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"resume-screener/internal/types"
)

func sampleEntries() []types.RankedEntry {
	return []types.RankedEntry{
		{Rank: 1, Name: "b", FileName: "b.pdf", Score: 0.9, MatchedTerms: []string{"go", "kubernetes"}, Feedback: "Strong match, add metrics.", Status: types.ItemSuccess},
		{Rank: 2, Name: "c", FileName: "c.docx", Score: 0.5, MatchedTerms: []string{}, Feedback: "RAG pipeline error [embed]: connection refused", Status: types.ItemFailed},
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "batch_ranking_results.csv")
	require.NoError(t, WriteCSV(path, sampleEntries()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"filename", "score", "skills", "feedback"}, rows[0])
	assert.Equal(t, []string{"b.pdf", "0.9", "go, kubernetes", "Strong match, add metrics."}, rows[1])
	assert.Equal(t, "c.docx", rows[2][0])
	assert.Equal(t, "", rows[2][2])
}

func TestWriteCSV_EmptyHasHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.csv")
	require.NoError(t, WriteCSV(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "filename,score,skills,feedback\n", string(data))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranking")
	result := &types.BatchResult{
		Entries: sampleEntries(),
		Outcomes: []types.ItemOutcome{
			{FileName: "b.pdf", Status: types.ItemSuccess},
			{FileName: "empty.txt", Status: types.ItemSkipped, Reason: "no text extracted"},
		},
	}
	require.NoError(t, WriteXLSX(path, result))

	f, err := excelize.OpenFile(path + ".xlsx")
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(rankingSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Rank", rows[0][0])
	assert.Equal(t, "b.pdf", rows[1][1])
	assert.Equal(t, "go, kubernetes", rows[1][3])

	outcomes, err := f.GetRows(outcomesSheet)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "skipped", outcomes[2][1])
}

func TestWriteXLSX_NilResult(t *testing.T) {
	assert.Error(t, WriteXLSX(filepath.Join(t.TempDir(), "x.xlsx"), nil))
}
