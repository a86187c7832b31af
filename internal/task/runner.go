package task

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alertsift/alertsift/internal/common"
	"github.com/alertsift/alertsift/internal/llm"
	"github.com/alertsift/alertsift/internal/metrics"
	"github.com/alertsift/alertsift/internal/process"
	"github.com/alertsift/alertsift/internal/spreadsheet"
)

// Output workbook names inside a run's output directory.
const (
	ValidResultsFile   = "valid_results.xlsx"
	InvalidRecordsFile = "invalid_records.xlsx"
)

// ProgressRegistry hands out per-task progress trackers for polling.
type ProgressRegistry struct {
	mu       sync.Mutex
	trackers map[string]*process.Tracker
}

func NewProgressRegistry() *ProgressRegistry {
	return &ProgressRegistry{trackers: make(map[string]*process.Tracker)}
}

func (r *ProgressRegistry) Put(taskID string, t *process.Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[taskID] = t
}

// Get returns the tracker for taskID, or nil when none is registered.
func (r *ProgressRegistry) Get(taskID string) *process.Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackers[taskID]
}

// RunOptions are the per-run knobs the dashboard exposes.
type RunOptions struct {
	// SelectedColumns is the operator's explicit column choice. An empty
	// selection is passed through: every row then refuses to build input,
	// by design.
	SelectedColumns []string
	// MaxRows overrides processing.max_rows_to_process when > 0.
	MaxRows int
}

// Runner executes one task end to end: load workbook, fan rows through
// the model pipeline, write both result partitions, update the store.
type Runner struct {
	cfg      common.Config
	store    *Store
	registry *ProgressRegistry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewRunner(cfg common.Config, store *Store, registry *ProgressRegistry, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewProgressRegistry()
	}
	return &Runner{cfg: cfg, store: store, registry: registry, logger: logger, metrics: m}
}

// Registry exposes the progress registry for the polling endpoint.
func (r *Runner) Registry() *ProgressRegistry { return r.registry }

// buildPipeline wires transport → invoker → salvager → extractor →
// row processor the way the run's config asks. Everything is explicitly
// constructed per run; no shared mutable clients.
func (r *Runner) buildPipeline(opts RunOptions) *process.RowProcessor {
	o := r.cfg.Ollama
	transport := llm.NewHTTPTransport(o.URL, o.ModelName, o.Timeout(), r.logger)

	policy := llm.TimeoutOnlyPolicy(o.MaxRetries, o.BackoffBase())
	if o.RetryAll {
		policy = llm.RetryAllPolicy(o.MaxRetries, o.BackoffBase())
	}

	invoker := llm.NewInvoker(transport, policy, r.logger, r.metrics)
	salvager := llm.NewSalvager(r.logger, r.metrics)
	extractor := llm.NewExtractor(invoker, salvager, r.cfg.SystemPrompt, o.Temperature, o.NumPredict, r.logger)

	return process.NewRowProcessor(extractor, opts.SelectedColumns, r.cfg.Processing.IgnoredColumns, r.logger)
}

// ProcessTask runs the given task to completion. All row- and model-level
// failures end up in the invalid partition; only setup failures (missing
// file, unreadable workbook, unwritable output) fail the task itself.
func (r *Runner) ProcessTask(ctx context.Context, taskID string, opts RunOptions) error {
	t, err := r.store.Get(ctx, taskID)
	if err != nil {
		return err
	}

	outputDir := filepath.Join(r.cfg.OutputDir, "run_"+time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return r.fail(ctx, taskID, fmt.Errorf("create output dir: %w", err))
	}

	rows, err := spreadsheet.ReadRows(t.FilePath, r.logger)
	if err != nil {
		return r.fail(ctx, taskID, err)
	}

	totalRows := len(rows)
	maxRows := r.cfg.Processing.MaxRows
	if opts.MaxRows > 0 {
		maxRows = opts.MaxRows
	}
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	tracker := process.NewTracker(len(rows))
	r.registry.Put(taskID, tracker)

	if err := r.store.MarkProcessing(ctx, taskID, outputDir, totalRows); err != nil {
		return err
	}

	r.logger.Info("task.run.start",
		"task_id", taskID,
		"rows", len(rows),
		"total_rows", totalRows,
		"workers", r.cfg.Processing.MaxWorkers,
		"selected_columns", len(opts.SelectedColumns),
	)

	processor := r.buildPipeline(opts)
	coord := process.NewCoordinator(processor, r.cfg.Processing.MaxWorkers, process.HostRules(), r.logger, r.metrics)
	valid, invalid := coord.Run(ctx, rows, tracker)

	if len(invalid) > 0 {
		if err := spreadsheet.WriteRecords(filepath.Join(outputDir, InvalidRecordsFile), invalid, r.logger); err != nil {
			tracker.Fail()
			return r.fail(ctx, taskID, err)
		}
	}
	if len(valid) > 0 {
		if err := spreadsheet.WriteRecords(filepath.Join(outputDir, ValidResultsFile), valid, r.logger); err != nil {
			tracker.Fail()
			return r.fail(ctx, taskID, err)
		}
	}

	tracker.Complete()
	r.metrics.Task(StatusCompleted)
	if err := r.store.MarkCompleted(ctx, taskID, len(valid), len(invalid)); err != nil {
		return err
	}

	r.logger.Info("task.run.done",
		"task_id", taskID,
		"valid", len(valid),
		"invalid", len(invalid),
		"output_dir", outputDir,
	)
	return nil
}

func (r *Runner) fail(ctx context.Context, taskID string, cause error) error {
	r.logger.Error("task.run.failed", "task_id", taskID, "error", cause)
	r.metrics.Task(StatusFailed)
	if serr := r.store.MarkFailed(ctx, taskID, cause.Error()); serr != nil {
		r.logger.Error("task.mark_failed_error", "task_id", taskID, "error", serr)
	}
	return cause
}
