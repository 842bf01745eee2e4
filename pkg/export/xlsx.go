package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

// SheetName is the worksheet holding the export.
const SheetName = "Submissions"

var columnWidths = []float64{24, 40, 10, 6, 18, 30, 60, 12}

// XLSX writes a workbook with a bold header row, linked photo URLs and an
// auto filter over the data.
func XLSX(w io.Writer, subs []submission.Submission) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	for col, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("export: header %s: %w", cell, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(Headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	for i, s := range subs {
		row := i + 2
		for col, v := range rowValues(s) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("export: cell %s: %w", cell, err)
			}
		}
		if s.PhotoURL != "" {
			cell, _ := excelize.CoordinatesToCellName(7, row)
			if err := f.SetCellHyperLink(SheetName, cell, s.PhotoURL, "External"); err != nil {
				return fmt.Errorf("export: link %s: %w", cell, err)
			}
		}
	}

	for col, width := range columnWidths {
		name, _ := excelize.ColumnNumberToName(col + 1)
		if err := f.SetColWidth(SheetName, name, name, width); err != nil {
			return fmt.Errorf("export: column width: %w", err)
		}
	}

	if len(subs) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(Headers), len(subs)+1)
		if err := f.AutoFilter(SheetName, "A1:"+end, nil); err != nil {
			return fmt.Errorf("export: auto filter: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write xlsx: %w", err)
	}
	return nil
}

// rowValues keeps Age numeric so spreadsheet sorting works.
func rowValues(s submission.Submission) []any {
	cells := Row(s)
	out := make([]any, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	out[3] = s.Age
	return out
}
