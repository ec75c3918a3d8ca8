// Package report renders an applicant's requests as an xlsx workbook for
// download. It is a read-only consumer of the query service's summaries.
package report

import (
	"bytes"
	"fmt"

	"github.com/example/expense-workflow/internal/models"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Exporter builds xlsx workbooks from request summaries
type Exporter struct {
	logger *zap.Logger
}

// NewExporter creates a new exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger}
}

var headerCells = []string{"ID", "Title", "Amount", "Status", "Note", "Last Return Comment"}

// RequestsWorkbook renders one row per request summary under a header row
// and returns the serialized workbook.
func (e *Exporter) RequestsWorkbook(summaries []models.RequestSummary) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	for col, header := range headerCells {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell: %w", err)
		}
	}

	for i, summary := range summaries {
		comment := ""
		if summary.LastReturnComment != nil {
			comment = *summary.LastReturnComment
		}

		values := []interface{}{
			summary.ID,
			summary.Title,
			summary.Amount,
			summary.Status,
			summary.Note,
			comment,
		}

		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	e.logger.Info("Rendered requests workbook", zap.Int("rows", len(summaries)))
	return buf, nil
}
