package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// RenderXLSX writes doc as a workbook with Summary, Operations and Check-ins
// sheets.
func RenderXLSX(w io.Writer, doc Document) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	s := Summarize(doc.Operations)
	label := doc.OperatorLabel
	if label == "" {
		label = "All Operators"
	}
	summaryRows := [][]any{
		{"Report", doc.Title},
		{"Generated", doc.GeneratedAt.UTC().Format(timeLayout)},
		{"Operator", label},
		{"Date Range", doc.Filter.DateRange()},
		{"Total Operations", s.Total},
		{"Active", s.Active},
		{"Completed", s.Completed},
		{"Scheduled", s.Scheduled},
		{"Total Check-ins", s.CheckIns},
		{"Average Check-ins", fmt.Sprintf("%.1f", s.AverageCheckIns)},
	}
	for i, row := range summaryRows {
		if err := setRow(f, "Summary", i+1, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth("Summary", "A", "A", 20)
	_ = f.SetColWidth("Summary", "B", "B", 40)

	opHeaders := []any{"ID", "Net", "Operator", "Status", "Start (UTC)", "End (UTC)", "Frequency", "Check-ins", "Notes"}
	var opRows [][]any
	for _, op := range doc.Operations {
		opRows = append(opRows, []any{op.ID, op.NetName, op.OperatorCallsign, op.Status,
			op.StartTime.UTC().Format(timeLayout), formatEnd(op), op.Frequency, len(op.CheckIns), op.Notes})
	}
	if err := writeTable(f, "Operations", header, opHeaders, opRows, []float64{8, 36, 12, 12, 20, 20, 14, 10, 50}); err != nil {
		return err
	}

	ciHeaders := []any{"Net ID", "Net", "#", "Callsign", "Name", "License Class", "Location", "Time (UTC)", "Staying for Comments", "Commented", "Notes"}
	var ciRows [][]any
	for _, op := range doc.Operations {
		for i, ci := range op.CheckIns {
			ciRows = append(ciRows, []any{op.ID, op.NetName, i + 1, ci.Callsign, ci.Name, ci.LicenseClass, ci.Location,
				ci.Timestamp.UTC().Format(timeLayout), yesNo(ci.StayingForComments), yesNo(ci.Commented), ci.Notes})
		}
	}
	if err := writeTable(f, "Check-ins", header, ciHeaders, ciRows, []float64{8, 30, 5, 12, 24, 14, 24, 20, 20, 11, 50}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeTable(f *excelize.File, sheet string, style int, headers []any, rows [][]any, widths []float64) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
