package analytics

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kyujin/internal/models"
)

const exportSheet = "Searches"

var exportHeader = []any{
	"ID", "Timestamp", "Query", "Location", "Sources", "Duration (ms)", "Listings",
	"Successful Sources", "Failed Sources", "Errors", "Cached", "Outcome",
}

// ExportXLSX writes metrics as a spreadsheet with one row per search.
func ExportXLSX(w io.Writer, metrics []models.SearchMetric) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, m := range metrics {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			m.ID,
			m.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			m.Query,
			m.Location,
			strings.Join(m.Sources, ","),
			m.Duration.Milliseconds(),
			m.ListingsFound,
			strings.Join(m.SuccessfulSources, ","),
			strings.Join(m.FailedSources, ","),
			m.ErrorCount,
			m.Cached,
			m.Outcome,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
