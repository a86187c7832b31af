package spreadsheet

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/alertsift/alertsift/internal/process"
)

// ReadRows loads the first sheet of an XLSX workbook into ordered rows.
// The first row is the header; later rows map header name → cell value.
func ReadRows(path string, logger *slog.Logger) ([]process.Row, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("spreadsheet.close_error", "path", path, "error", cerr)
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := make([]string, 0, len(raw[0]))
	for i, h := range raw[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		header = append(header, h)
	}

	rows := make([]process.Row, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := process.Row{
			Columns: header,
			Cells:   make(map[string]string, len(header)),
		}
		for i, col := range header {
			if i < len(cells) {
				row.Cells[col] = cells[i]
			}
		}
		rows = append(rows, row)
	}

	logger.Info("spreadsheet.loaded", "path", path, "sheet", sheet, "rows", len(rows), "columns", len(header))
	return rows, nil
}

// Columns returns just the header of the first sheet, for previews and
// column selection in the dashboard.
func Columns(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	raw, err := f.GetRows(sheet)
	if err != nil || len(raw) == 0 {
		return nil, fmt.Errorf("read header of %q: %w", sheet, err)
	}
	header := make([]string, 0, len(raw[0]))
	for _, h := range raw[0] {
		header = append(header, strings.TrimSpace(h))
	}
	return header, nil
}

// Preview returns the header plus up to limit data rows as raw cells.
func Preview(path string, limit int) (header []string, rows [][]string, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}
	header = raw[0]
	data := raw[1:]
	if limit > 0 && len(data) > limit {
		data = data[:limit]
	}
	return header, data, nil
}
