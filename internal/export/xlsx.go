package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding exported rules.
const SheetName = "布控记录"

// maxCellRunes is the per-cell character limit of a worksheet. Longer
// values are silently cut by spreadsheet software.
const maxCellRunes = 32767

var columnWidths = []float64{10, 16, 14, 30, 30, 14, 20, 20, 10, 10, 16, 20}

// WriteXLSX writes rules as a single-sheet workbook with the CSV columns.
func WriteXLSX(w io.Writer, rules []entities.WatchRule, opts Options) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrExport, cerr)
		}
	}()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("%w: failed to create sheet: %w", ErrExport, err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create header style: %w", ErrExport, err)
	}

	if err := setRow(f, 1, Header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("%w: failed to set header style: %w", ErrExport, err)
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExport, err)
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("%w: failed to set column width: %w", ErrExport, err)
		}
	}

	for i, row := range Rows(rules, opts) {
		if err := setRow(f, i+2, row.Values()); err != nil {
			return err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("%w: failed to render workbook: %w", ErrExport, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	for col, v := range values {
		if n := utf8.RuneCountInString(v); n > maxCellRunes {
			return fmt.Errorf("%w: row %d column %q is %d characters, limit is %d",
				ErrExport, row, Header[col], n, maxCellRunes)
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("%w: failed to write row %d: %w", ErrExport, row, err)
	}
	return nil
}

// ParseXLSX reads the rule sheet of a workbook produced by WriteXLSX.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", SheetName, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", SheetName)
	}

	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		// GetRows trims trailing empty cells.
		for len(rec) < len(Header) {
			rec = append(rec, "")
		}
		rows = append(rows, rowFromValues(rec))
	}
	return rows, nil
}
