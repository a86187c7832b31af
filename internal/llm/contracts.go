package llm

import (
	"context"
	"time"
)

// Record is one path extraction recovered from model output.
// A single input row may produce zero, one, or many records.
type Record struct {
	RowNumber int    `json:"row_number"`
	InputText string `json:"input_text"`
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	Kind      string `json:"kind"`
	AppName   string `json:"app_name"`
}

// Placeholder values used when the model omits a field or the response
// cannot be recovered. Missing keys never fail a structurally valid object.
const (
	NoPath     = "no path"
	NoFilename = "no filename"
	NoKind     = "unknown"
	NoApp      = "no app"
)

// InvocationRequest is a single model call. Immutable once built.
type InvocationRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	// Token correlates log lines and retries with the originating row.
	Token string
}

// Outcome is the terminal result of an invocation: either a success with
// cleaned text, or a failure after the retry policy is exhausted.
type Outcome struct {
	Succeeded bool
	Text      string
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

// ExtractRequest asks for path records from one row's joined alert text.
type ExtractRequest struct {
	Input     string
	RowNumber int
	Token     string
}

// PathExtractor is the interface the row processor depends on.
type PathExtractor interface {
	ExtractPaths(ctx context.Context, req ExtractRequest) []Record
}
