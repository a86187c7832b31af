package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/alertsift/alertsift/internal/common"
	"github.com/alertsift/alertsift/internal/task"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to YAML config file")
		in         = flag.String("in", "", "input XLSX workbook (required)")
		columns    = flag.String("columns", "", "comma-separated columns to process (required)")
		maxRows    = flag.Int("max-rows", 0, "cap on rows to process (0 = all)")
	)
	flag.Parse()

	if *in == "" {
		printError("Error: --in is required\n")
		os.Exit(1)
	}
	if *columns == "" {
		printError("Error: --columns is required; the pipeline never falls back to all columns\n")
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup, err := common.NewLogger(cfg.Logging)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()

	// The batch CLI uses a throwaway in-memory task store: it exists so
	// the run shares the exact pipeline the dashboard uses.
	store, err := task.Open(":memory:", logger)
	if err != nil {
		logger.Error("task store open failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	taskID := "task_" + uuid.New().String()
	if err := store.Create(ctx, task.Task{
		ID:        taskID,
		Filename:  *in,
		FilePath:  *in,
		Status:    task.StatusUploaded,
		CreatedAt: time.Now(),
	}); err != nil {
		logger.Error("task create failed", "error", err)
		os.Exit(1)
	}

	selected := make([]string, 0)
	for _, c := range strings.Split(*columns, ",") {
		if c = strings.TrimSpace(c); c != "" {
			selected = append(selected, c)
		}
	}

	runner := task.NewRunner(cfg, store, task.NewProgressRegistry(), logger, nil)
	start := time.Now()
	if err := runner.ProcessTask(ctx, taskID, task.RunOptions{
		SelectedColumns: selected,
		MaxRows:         *maxRows,
	}); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}

	done, err := store.Get(ctx, taskID)
	if err != nil {
		logger.Error("task read-back failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch complete in %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("- Rows: %d\n", done.TotalRows)
	fmt.Printf("- Valid results: %d\n", done.ValidCount)
	fmt.Printf("- Invalid records: %d\n", done.InvalidCount)
	fmt.Printf("- Output: %s\n", done.OutputDir)
}
