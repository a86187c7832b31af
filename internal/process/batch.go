package process

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alertsift/alertsift/internal/llm"
	"github.com/alertsift/alertsift/internal/metrics"
)

// Coordinator fans rows out to a bounded worker pool and partitions the
// recovered records into valid and invalid sequences. Row failures are
// data, not control flow: a panicking row becomes one invalid sentinel and
// the batch runs to completion.
type Coordinator struct {
	processor *RowProcessor
	rules     PathRules
	workers   int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewCoordinator(processor *RowProcessor, workers int, rules PathRules, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		processor: processor,
		rules:     rules,
		workers:   workers,
		logger:    logger,
		metrics:   m,
	}
}

type indexedRow struct {
	idx int
	row Row
}

// Run processes all rows and returns the two partitions, each sorted
// ascending by row number. Workers complete in arbitrary order; ordering
// is restored only here, at materialization.
func (c *Coordinator) Run(ctx context.Context, rows []Row, tracker *Tracker) (valid, invalid []llm.Record) {
	tracker.Start()

	jobs := make(chan indexedRow)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobs {
				v, iv := c.processOne(ctx, job)
				mu.Lock()
				valid = append(valid, v...)
				invalid = append(invalid, iv...)
				mu.Unlock()
				tracker.RowDone()
			}
		}(w + 1)
	}

	for i, row := range rows {
		jobs <- indexedRow{idx: i, row: row}
	}
	close(jobs)
	wg.Wait()

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].RowNumber < valid[j].RowNumber })
	sort.SliceStable(invalid, func(i, j int) bool { return invalid[i].RowNumber < invalid[j].RowNumber })

	c.logger.Info("batch.done",
		"rows", len(rows),
		"valid", len(valid),
		"invalid", len(invalid),
	)
	return valid, invalid
}

// processOne reduces a single row outcome to partition contributions.
// Panics are converted into an invalid sentinel so one bad row can never
// abort the batch.
func (c *Coordinator) processOne(ctx context.Context, job indexedRow) (valid, invalid []llm.Record) {
	rowNumber := job.idx + 1
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("batch.row.panic", "row", rowNumber, "panic", r)
			c.metrics.Row("error")
			valid = nil
			invalid = []llm.Record{{
				RowNumber: rowNumber,
				InputText: job.row.Snapshot(),
				Path:      fmt.Sprintf("<row processing failed: %v>", r),
				Filename:  llm.NoFilename,
				Kind:      "error",
				AppName:   llm.NoApp,
			}}
		}
	}()

	outcome := c.processor.Process(ctx, job.row, job.idx)
	switch outcome.Kind {
	case NoInputFound:
		c.metrics.Row("no_input")
		c.logger.Debug("batch.row.no_input", "row", rowNumber, "note", outcome.Note)
		return nil, []llm.Record{{
			RowNumber: rowNumber,
			InputText: outcome.RowSnapshot,
			Path:      "<no input found: " + outcome.Note + ">",
			Filename:  llm.NoFilename,
			Kind:      llm.NoKind,
			AppName:   llm.NoApp,
		}}
	default: // Processed
		for _, rec := range outcome.Records {
			ok := IsValidPath(rec.Path, true, c.rules)
			c.logger.Debug("batch.path_checked", "row", rowNumber, "path", rec.Path, "valid", ok)
			if ok {
				valid = append(valid, rec)
			} else {
				invalid = append(invalid, rec)
			}
		}
		c.metrics.Row("processed")
		return valid, invalid
	}
}
