package process

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/alertsift/alertsift/internal/llm"
)

// Row is one spreadsheet row: column order plus name→value cells.
type Row struct {
	Columns []string
	Cells   map[string]string
}

// Snapshot renders the row for sentinel records and logs.
func (r Row) Snapshot() string {
	parts := make([]string, 0, len(r.Columns))
	for _, col := range r.Columns {
		if v := strings.TrimSpace(r.Cells[col]); v != "" {
			parts = append(parts, col+" = "+v)
		}
	}
	return strings.Join(parts, " ; ")
}

// OutcomeKind tags a RowOutcome.
type OutcomeKind int

const (
	// NoInputFound means the row produced no model input, either because
	// no columns were selected or everything was filtered away.
	NoInputFound OutcomeKind = iota
	// Processed means the model was invoked and records were recovered.
	Processed
)

// RowOutcome is produced once per row and consumed immediately by the
// batch coordinator.
type RowOutcome struct {
	Kind        OutcomeKind
	RowSnapshot string
	Note        string
	Records     []llm.Record
}

// reClause matches a "key = value" filter clause, value quoted or bare.
var reClause = regexp.MustCompile(`^([^=]+?)\s*=\s*("[^"]*"|'[^']*'|\S+)`)

// RowProcessor builds the model input for one row from the operator's
// column selection and hands it to the extractor.
type RowProcessor struct {
	extractor llm.PathExtractor
	selected  []string
	ignored   []string
	logger    *slog.Logger
}

func NewRowProcessor(extractor llm.PathExtractor, selected, ignored []string, logger *slog.Logger) *RowProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RowProcessor{
		extractor: extractor,
		selected:  selected,
		ignored:   ignored,
		logger:    logger,
	}
}

// Process handles a single row. idx is zero-based; row numbers reported in
// records are one-based.
//
// Column selection is deliberately explicit: with no selected columns the
// row is refused rather than silently falling back to every column, so an
// operator cannot accidentally feed sensitive columns to the model.
func (p *RowProcessor) Process(ctx context.Context, row Row, idx int) RowOutcome {
	rowNumber := idx + 1
	token := fmt.Sprintf("task_%d", rowNumber)

	if len(p.selected) == 0 {
		p.logger.Debug("row.no_columns_selected", "token", token, "row", rowNumber)
		return RowOutcome{
			Kind:        NoInputFound,
			RowSnapshot: row.Snapshot(),
			Note:        "no columns selected; select at least one column to process",
		}
	}

	ignoredSet := make(map[string]struct{}, len(p.ignored))
	for _, c := range p.ignored {
		ignoredSet[c] = struct{}{}
	}

	var parts []string
	for _, col := range p.selected {
		val := strings.TrimSpace(row.Cells[col])
		if val == "" {
			continue
		}
		if _, skip := ignoredSet[col]; skip {
			p.logger.Debug("row.column_ignored", "token", token, "column", col)
			continue
		}
		filtered := val
		if len(p.ignored) > 0 {
			filtered = filterIgnoredClauses(val, ignoredSet)
		}
		if filtered == "" {
			p.logger.Debug("row.column_filtered_empty", "token", token, "column", col)
			continue
		}
		parts = append(parts, filtered)
	}

	input := strings.Join(parts, " ; ")
	if strings.TrimSpace(input) == "" {
		return RowOutcome{
			Kind:        NoInputFound,
			RowSnapshot: row.Snapshot(),
			Note:        "selected columns were empty or fully filtered",
		}
	}
	p.logger.Debug("row.input_built", "token", token, "input", input)

	records := p.extractor.ExtractPaths(ctx, llm.ExtractRequest{
		Input:     input,
		RowNumber: rowNumber,
		Token:     token,
	})
	return RowOutcome{Kind: Processed, Records: records}
}

// filterIgnoredClauses strips "key = value" sub-clauses whose key is an
// ignored column. Clauses are joined by the literal " and " separator
// (case sensitive); anything not shaped like a clause is kept as-is.
func filterIgnoredClauses(s string, ignored map[string]struct{}) string {
	clauses := strings.Split(s, " and ")
	remaining := make([]string, 0, len(clauses))
	for _, clause := range clauses {
		m := reClause.FindStringSubmatch(strings.TrimSpace(clause))
		if m == nil {
			remaining = append(remaining, clause)
			continue
		}
		key := strings.TrimSpace(m[1])
		if _, skip := ignored[key]; !skip {
			remaining = append(remaining, clause)
		}
	}
	return strings.Join(remaining, " and ")
}
