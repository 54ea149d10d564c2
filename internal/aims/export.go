package aims

import (
	"fmt"
	"io"

	"github.com/golang-sql/civil"
	"github.com/xuri/excelize/v2"
)

const (
	reportSheet  = "AIMS Report"
	summarySheet = "Summary"
)

// ExportHeader is the column layout of the report sheet.
var ExportHeader = []string{
	"Client ID",
	"Client First Name",
	"Client Last Name",
	"Medication Name",
	"Start Date",
	"End Date",
	"Prescriber ID",
	"Prescriber Name",
	"Last AIMS Date",
	"Last AIMS Score",
	"Days Since Last AIMS",
	"Risk Bucket",
	"Alert Reason",
	"Measurement Date",
	"Has AIMS Screening",
	"Has High AIMS Score",
}

var exportColumnWidths = []float64{
	10, 18, 18, 28, 12, 12, 12, 24, 14, 14, 12, 24, 60, 16, 12, 12,
}

// WriteXLSX renders a report as an Excel workbook: one row per client on the
// report sheet and the per-bucket counts on a summary sheet.
func WriteXLSX(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reportSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, reportSheet, 1, toAny(ExportHeader)); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(ExportHeader))
	if err != nil {
		return fmt.Errorf("failed to convert column: %w", err)
	}
	if err := f.SetCellStyle(reportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, width := range exportColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column: %w", err)
		}
		if err := f.SetColWidth(reportSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, row := range report.Rows {
		if err := writeRow(f, reportSheet, i+2, exportValues(row)); err != nil {
			return err
		}
	}

	if len(report.Rows) > 0 {
		ref := fmt.Sprintf("A1:%s%d", lastCol, len(report.Rows)+1)
		if err := f.AutoFilter(reportSheet, ref, nil); err != nil {
			return fmt.Errorf("failed to set auto filter: %w", err)
		}
	}

	if err := writeSummarySheet(f, report, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, report *Report, headerStyle int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	lines := [][]any{
		{"Run ID", report.RunID.String()},
		{"Source", report.Source},
		{"Measurement Date", report.MeasurementDate.String()},
		{"Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{},
		{"Risk Bucket", "Clients"},
	}
	for _, b := range RiskBuckets {
		lines = append(lines, []any{string(b), report.Summary[b]})
	}
	lines = append(lines, []any{"Total", len(report.Rows)})

	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		if err := writeRow(f, summarySheet, i+1, line); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(summarySheet, "A6", "B6", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 26); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", rowNum, err)
	}
	return nil
}

// exportValues flattens a row in ExportHeader order. Missing values are
// written as empty cells.
func exportValues(r ReportRow) []any {
	return []any{
		r.ClientID,
		r.ClientFirstName,
		r.ClientLastName,
		r.MedicationName,
		r.StartDate.String(),
		dateCell(r.EndDate),
		int64Cell(r.PrescriberID),
		stringCell(r.PrescriberName),
		dateCell(r.LastAimsDate),
		scoreCell(r.LastAimsScore),
		intCell(r.DaysSinceLastAims),
		string(r.RiskBucket),
		r.AlertReason,
		r.MeasurementDate.String(),
		r.HasAimsScreening,
		r.HasHighAimsScore,
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func dateCell(d *civil.Date) any {
	if d == nil {
		return ""
	}
	return d.String()
}

func stringCell(s *string) any {
	if s == nil {
		return ""
	}
	return *s
}

func int64Cell(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}

func intCell(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func scoreCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
