// Package export renders attendance reports as xlsx workbooks.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"schoolattend/internal/attendance"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	summarySheet = "Summary"
	historySheet = "Attendance"
)

// RosterSummary writes one row per student with present/absent/total counts.
func RosterSummary(rows []attendance.RosterEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	headers := []string{"Student ID", "Name", "Class", "Present", "Absent", "Total", "Attendance %"}
	if err := writeHeader(f, summarySheet, headers); err != nil {
		return nil, err
	}
	for i, r := range rows {
		values := []any{
			r.Student.StudentID, r.Student.Name, r.Student.Class,
			r.Summary.Present, r.Summary.Absent, r.Summary.Total, rate(r.Summary),
		}
		if err := writeRow(f, summarySheet, i+2, values); err != nil {
			return nil, err
		}
	}
	if err := setWidths(f, summarySheet, []float64{14, 28, 12, 10, 10, 10, 14}); err != nil {
		return nil, err
	}
	return f, nil
}

// StudentReport writes the identity block, the summary and the full history of one student.
func StudentReport(rep attendance.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, err
	}
	info := [][]any{
		{"Student", rep.Student.Name},
		{"Student ID", rep.Student.StudentID},
		{"Class", rep.Student.Class},
		{"Present", rep.Summary.Present},
		{"Absent", rep.Summary.Absent},
		{"Total", rep.Summary.Total},
	}
	for i, row := range info {
		if err := writeRow(f, historySheet, i+1, row); err != nil {
			return nil, err
		}
	}

	start := len(info) + 2
	headers := []string{"Date", "Status", "Marked by"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, start)
		if err := f.SetCellValue(historySheet, cell, h); err != nil {
			return nil, err
		}
	}
	style, err := headerStyle(f)
	if err != nil {
		return nil, err
	}
	first, _ := excelize.CoordinatesToCellName(1, start)
	last, _ := excelize.CoordinatesToCellName(len(headers), start)
	if err := f.SetCellStyle(historySheet, first, last, style); err != nil {
		return nil, err
	}
	for i, h := range rep.Attendance {
		if err := writeRow(f, historySheet, start+1+i, []any{h.Date, string(h.Status), h.MarkedBy}); err != nil {
			return nil, err
		}
	}
	if err := setWidths(f, historySheet, []float64{14, 12, 28}); err != nil {
		return nil, err
	}
	return f, nil
}

func rate(s attendance.Summary) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Present*10000/s.Total) / 100
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	style, err := headerStyle(f)
	if err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#9BC2E6", Style: 1},
		},
	})
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	v := values
	return f.SetSheetRow(sheet, cell, &v)
}

func setWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}
	return nil
}
