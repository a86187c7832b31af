package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// Extractor drives one full model exchange for a row: prompt build,
// resilient invocation, then salvage. It implements PathExtractor.
type Extractor struct {
	invoker      *Invoker
	salvager     *Salvager
	logger       *slog.Logger
	systemPrompt string
	temperature  float32
	maxTokens    int
}

func NewExtractor(invoker *Invoker, salvager *Salvager, systemPrompt string, temperature float32, maxTokens int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Extractor{
		invoker:      invoker,
		salvager:     salvager,
		logger:       logger,
		systemPrompt: systemPrompt,
		temperature:  temperature,
		maxTokens:    maxTokens,
	}
}

// ExtractPaths never fails: an exhausted invocation degrades to a single
// call-failure sentinel record, salvage handles everything else.
func (e *Extractor) ExtractPaths(ctx context.Context, req ExtractRequest) []Record {
	prompt := BuildPrompt(req.Input)
	e.logger.Debug("ollama_input", "token", req.Token, "row", req.RowNumber, "input", req.Input)

	outcome := e.invoker.Invoke(ctx, InvocationRequest{
		Prompt:       prompt,
		SystemPrompt: e.systemPrompt,
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
		Token:        req.Token,
	})

	if !outcome.Succeeded {
		e.logger.Warn("ollama_call_failed",
			"token", req.Token,
			"row", req.RowNumber,
			"attempts", outcome.Attempts,
			"error", outcome.Err,
		)
		return []Record{callFailureRecord(req.RowNumber, req.Input, outcome.Err)}
	}

	return e.salvager.Extract(outcome.Text, req.RowNumber, req.Input)
}

func callFailureRecord(rowNumber int, inputText string, cause error) Record {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return Record{
		RowNumber: rowNumber,
		InputText: inputText,
		Path:      fmt.Sprintf("<model call failed: %s>", msg),
		Filename:  NoFilename,
		Kind:      NoKind,
		AppName:   NoApp,
	}
}
