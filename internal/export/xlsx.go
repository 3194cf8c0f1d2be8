package export

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/joelkehle/bizfinder/internal/business"
)

const SheetName = "Business Data"

var Columns = []string{"Name", "Address", "Rating", "Reviews", "Phone", "Website", "Business Type", "Map Link"}

var columnWidths = []float64{30, 40, 10, 10, 15, 25, 20, 40}

var ErrNoRecords = errors.New("no records to export")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	unsafeNameRe = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)
)

// WriteXLSX writes records as a single-sheet workbook, one row per record
// under a bold header row.
func WriteXLSX(w io.Writer, records []business.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{r.Name, r.Address, r.Rating, r.ReviewCount, r.Phone, r.Website, r.BusinessType, r.MapsURI}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("column width %s: %w", col, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName builds "<industry>_<location>_data.xlsx" with whitespace runs
// replaced by underscores and path separators removed.
func FileName(industry, location string) string {
	return fileNamePart(industry, "Unknown_Industry") + "_" + fileNamePart(location, "Unknown_Location") + "_data.xlsx"
}

func fileNamePart(s, fallback string) string {
	s = unsafeNameRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), "_")
	if s == "" || s == "." || s == ".." {
		return fallback
	}
	return s
}
