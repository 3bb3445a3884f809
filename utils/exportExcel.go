package utils

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter is a row that can be written to a sheet.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

// WriteExcel writes headings and one row per item into a single-sheet workbook.
func WriteExcel[T ExcelExporter](w io.Writer, sheetName string, data []T, headings ...string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if sheetName != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return err
		}
	}

	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	for r, d := range data {
		for c, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	return f.Write(w)
}
