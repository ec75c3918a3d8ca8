package report

import (
	"testing"

	"github.com/example/expense-workflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func TestExporter_RequestsWorkbook(t *testing.T) {
	comment := "needs receipt"
	summaries := []models.RequestSummary{
		{ID: 1, Title: "Taxi", Amount: 1200, Status: models.StatusApproved, Note: "airport run"},
		{ID: 2, Title: "Hotel", Amount: 45000, Status: models.StatusReturned, Note: "", LastReturnComment: &comment},
	}

	exporter := NewExporter(zap.NewNop())
	buf, err := exporter.RequestsWorkbook(summaries)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per summary")

	assert.Equal(t, []string{"ID", "Title", "Amount", "Status", "Note", "Last Return Comment"}, rows[0])

	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "Taxi", rows[1][1])
	assert.Equal(t, "1200", rows[1][2])
	assert.Equal(t, models.StatusApproved, rows[1][3])

	assert.Equal(t, "Hotel", rows[2][1])
	assert.Equal(t, models.StatusReturned, rows[2][3])
	assert.Equal(t, "needs receipt", rows[2][5])
}

func TestExporter_RequestsWorkbookEmpty(t *testing.T) {
	exporter := NewExporter(zap.NewNop())

	buf, err := exporter.RequestsWorkbook(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 1, "header only")
}
