package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/alertsift/alertsift/internal/metrics"
)

// shape tags the dynamic form of a recovered model payload so the mapping
// into records is one exhaustive switch.
type shape int

const (
	shapeEmpty shape = iota
	shapeSingle
	shapeMany
	shapeUnparseable
)

func (s shape) String() string {
	switch s {
	case shapeEmpty:
		return "empty"
	case shapeSingle:
		return "single"
	case shapeMany:
		return "many"
	}
	return "unparseable"
}

var (
	reLeadFence  = regexp.MustCompile("(?i)^```[ \t]*json[ \t\r\n]*|^```[ \t\r\n]*")
	reTrailFence = regexp.MustCompile("[ \t\r\n]*```$")
	reLeadJSON   = regexp.MustCompile(`(?i)^json\s*`)
)

// Salvager recovers path records from unreliable model text. Extract never
// fails: irrecoverable input degrades to a single sentinel record so one
// bad row cannot abort a batch.
type Salvager struct {
	logger  *slog.Logger
	schema  *recordSchema
	metrics *metrics.Metrics
}

func NewSalvager(logger *slog.Logger, m *metrics.Metrics) *Salvager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Salvager{logger: logger, schema: compileRecordSchema(), metrics: m}
}

// Extract recovers zero-or-more records from raw model text and always
// returns at least one record.
func (s *Salvager) Extract(raw string, rowNumber int, inputText string) []Record {
	cleaned := salvageSpan(raw)

	s.logger.Debug("raw_model_response", "row", rowNumber, "response", raw)
	s.logger.Debug("cleaned_model_response", "row", rowNumber, "response", cleaned)

	sh, single, many, parseErr := decodeShape(cleaned)
	s.metrics.Salvage(sh.String())

	switch sh {
	case shapeUnparseable, shapeEmpty:
		s.logger.Warn("json_parse_failed",
			"row", rowNumber,
			"error", parseErr,
			"cleaned_response", cleaned,
			"raw_response", snippet(raw, 500),
		)
		return []Record{parseFailureRecord(rowNumber, inputText, parseErr)}
	case shapeSingle:
		s.checkSchema(single, rowNumber)
		return []Record{s.mapObject(single, rowNumber, inputText)}
	default: // shapeMany
		out := make([]Record, 0, len(many))
		for _, el := range many {
			obj, ok := el.(map[string]any)
			if !ok {
				// Non-object array elements are ignored.
				continue
			}
			s.checkSchema(obj, rowNumber)
			out = append(out, s.mapObject(obj, rowNumber, inputText))
		}
		if len(out) == 0 {
			err := fmt.Errorf("array contained no objects")
			s.logger.Warn("json_parse_failed",
				"row", rowNumber,
				"error", err,
				"cleaned_response", cleaned,
			)
			return []Record{parseFailureRecord(rowNumber, inputText, err)}
		}
		return out
	}
}

// salvageSpan trims fencing and cuts the text down to the heuristic JSON
// span: from the first '{' or '[' (whichever comes first) to the last '}'
// or ']' (whichever comes last). This is deliberately not a matched-bracket
// parse; a truncated tail is discarded and a bad span simply fails the
// parse step and becomes a sentinel.
func salvageSpan(raw string) string {
	text := strings.TrimSpace(raw)
	text = reLeadFence.ReplaceAllString(text, "")
	text = reTrailFence.ReplaceAllString(text, "")
	text = reLeadJSON.ReplaceAllString(text, "")

	startBrace := strings.Index(text, "{")
	startBracket := strings.Index(text, "[")
	start := startBrace
	if start == -1 || (startBracket != -1 && startBracket < start) {
		start = startBracket
	}
	if start != -1 {
		text = text[start:]
	} else {
		text = strings.TrimLeft(text, " \t\r\n")
	}

	endBrace := strings.LastIndex(text, "}")
	endBracket := strings.LastIndex(text, "]")
	end := endBrace
	if endBracket > end {
		end = endBracket
	}
	if end != -1 {
		text = text[:end+1]
	}
	return strings.TrimSpace(text)
}

// decodeShape parses the span and tags its dynamic form.
func decodeShape(text string) (shape, map[string]any, []any, error) {
	if text == "" {
		return shapeEmpty, nil, nil, fmt.Errorf("cleaned response is empty")
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return shapeUnparseable, nil, nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return shapeSingle, t, nil, nil
	case []any:
		return shapeMany, nil, t, nil
	default:
		return shapeUnparseable, nil, nil, fmt.Errorf("json value is %T, want object or array", v)
	}
}

// mapObject builds a record from a decoded object, defaulting missing or
// non-string fields to placeholders.
func (s *Salvager) mapObject(obj map[string]any, rowNumber int, inputText string) Record {
	return Record{
		RowNumber: rowNumber,
		InputText: inputText,
		Path:      stringField(obj, "path", NoPath),
		Filename:  stringField(obj, "filename", NoFilename),
		Kind:      stringField(obj, "type", NoKind),
		AppName:   stringField(obj, "app", NoApp),
	}
}

func (s *Salvager) checkSchema(obj map[string]any, rowNumber int) {
	if s.schema == nil {
		return
	}
	if err := s.schema.validate(obj); err != nil {
		// Advisory only: a structurally valid object is never rejected
		// for missing or odd keys.
		s.logger.Debug("schema_mismatch", "row", rowNumber, "error", err)
	}
}

func stringField(obj map[string]any, key, fallback string) string {
	v, ok := obj[key]
	if !ok {
		return fallback
	}
	str, ok := v.(string)
	if !ok || strings.TrimSpace(str) == "" {
		return fallback
	}
	return str
}

func parseFailureRecord(rowNumber int, inputText string, cause error) Record {
	msg := "unknown error"
	if cause != nil {
		msg = snippet(cause.Error(), 100)
	}
	return Record{
		RowNumber: rowNumber,
		InputText: inputText,
		Path:      fmt.Sprintf("<json parse failed: %s>", msg),
		Filename:  NoFilename,
		Kind:      NoKind,
		AppName:   NoApp,
	}
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
