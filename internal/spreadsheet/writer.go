package spreadsheet

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alertsift/alertsift/internal/llm"
)

var outputHeaders = []string{
	"Row",
	"Input Content",
	"Raw Path",
	"Filename",
	"Type",
	"Application",
}

var (
	// ASCII control characters Excel refuses, keeping \t \n \r out of scope
	// since cell text is flattened anyway.
	reControlChars = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]")
	// Zero-width and bidi format characters that corrupt exported cells.
	reHiddenChars = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{202A}-\x{202E}\x{00AD}\x{180E}]`)
	reFlatten     = regexp.MustCompile(`[\t\n\r]`)
)

// CleanCellString scrubs a value for Excel: control characters and hidden
// format characters removed, line breaks flattened to spaces.
func CleanCellString(s string) string {
	s = reControlChars.ReplaceAllString(s, "")
	s = reHiddenChars.ReplaceAllString(s, "")
	return reFlatten.ReplaceAllString(s, " ")
}

// WriteRecords materializes one result partition as an XLSX workbook.
func WriteRecords(path string, records []llm.Record, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	const sheet = "Results"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		logger.Warn("spreadsheet.delete_default_sheet", "error", err)
	}

	for i, h := range outputHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, rec := range records {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, rec.RowNumber)
		write(2, CleanCellString(rec.InputText))
		write(3, CleanCellString(rec.Path))
		write(4, CleanCellString(rec.Filename))
		write(5, CleanCellString(rec.Kind))
		write(6, CleanCellString(rec.AppName))
	}

	_ = f.SetColWidth(sheet, "A", "A", 8)
	_ = f.SetColWidth(sheet, "B", "B", 60)
	_ = f.SetColWidth(sheet, "C", "C", 48)
	_ = f.SetColWidth(sheet, "D", "D", 24)
	_ = f.SetColWidth(sheet, "E", "E", 12)
	_ = f.SetColWidth(sheet, "F", "F", 20)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("spreadsheet.written",
		"path", path,
		"rows", len(records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
