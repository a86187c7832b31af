package process

import (
	"context"
	"testing"

	"github.com/alertsift/alertsift/internal/llm"
)

// stubExtractor records the inputs it receives and replays canned records.
type stubExtractor struct {
	requests []llm.ExtractRequest
	records  []llm.Record
	panicOn  string
}

func (s *stubExtractor) ExtractPaths(_ context.Context, req llm.ExtractRequest) []llm.Record {
	if s.panicOn != "" && req.Input == s.panicOn {
		panic("extractor blew up")
	}
	s.requests = append(s.requests, req)
	if s.records != nil {
		out := make([]llm.Record, len(s.records))
		copy(out, s.records)
		for i := range out {
			out[i].RowNumber = req.RowNumber
			out[i].InputText = req.Input
		}
		return out
	}
	return []llm.Record{{
		RowNumber: req.RowNumber,
		InputText: req.Input,
		Path:      "/tmp/found",
		Filename:  "found",
		Kind:      "file",
		AppName:   llm.NoApp,
	}}
}

func alertRow(cells map[string]string, columns ...string) Row {
	return Row{Columns: columns, Cells: cells}
}

func TestRowSnapshot(t *testing.T) {
	row := alertRow(map[string]string{
		"host":    "web-01",
		"alert":   "suspicious exec",
		"comment": "   ",
	}, "host", "alert", "comment")

	got := row.Snapshot()
	want := "host = web-01 ; alert = suspicious exec"
	if got != want {
		t.Errorf("Snapshot() = %q, want %q", got, want)
	}
}

func TestRowProcessorRefusesEmptySelection(t *testing.T) {
	ex := &stubExtractor{}
	p := NewRowProcessor(ex, nil, nil, nil)

	out := p.Process(context.Background(), alertRow(map[string]string{"alert": "x"}, "alert"), 0)
	if out.Kind != NoInputFound {
		t.Fatalf("Kind = %v, want NoInputFound", out.Kind)
	}
	if out.Note != "no columns selected; select at least one column to process" {
		t.Errorf("Note = %q", out.Note)
	}
	if len(ex.requests) != 0 {
		t.Error("extractor was called with no selected columns")
	}
}

func TestRowProcessorJoinsSelectedColumns(t *testing.T) {
	ex := &stubExtractor{}
	p := NewRowProcessor(ex, []string{"alert", "detail"}, nil, nil)

	row := alertRow(map[string]string{
		"alert":  "exec of /bin/nc",
		"detail": "parent is sshd",
		"extra":  "never included",
	}, "alert", "detail", "extra")

	out := p.Process(context.Background(), row, 2)
	if out.Kind != Processed {
		t.Fatalf("Kind = %v, want Processed", out.Kind)
	}
	if len(ex.requests) != 1 {
		t.Fatalf("extractor called %d times, want 1", len(ex.requests))
	}
	req := ex.requests[0]
	if req.Input != "exec of /bin/nc ; parent is sshd" {
		t.Errorf("input = %q", req.Input)
	}
	if req.RowNumber != 3 {
		t.Errorf("row number = %d, want one-based 3", req.RowNumber)
	}
	if req.Token != "task_3" {
		t.Errorf("token = %q", req.Token)
	}
}

func TestRowProcessorSkipsIgnoredColumns(t *testing.T) {
	ex := &stubExtractor{}
	p := NewRowProcessor(ex, []string{"sig", "alert"}, []string{"sig"}, nil)

	row := alertRow(map[string]string{
		"sig":   "rule-1234",
		"alert": "ran /usr/bin/xmrig",
	}, "sig", "alert")

	out := p.Process(context.Background(), row, 0)
	if out.Kind != Processed {
		t.Fatalf("Kind = %v, want Processed", out.Kind)
	}
	if ex.requests[0].Input != "ran /usr/bin/xmrig" {
		t.Errorf("input = %q, ignored column leaked", ex.requests[0].Input)
	}
}

func TestRowProcessorEmptyAfterFiltering(t *testing.T) {
	ex := &stubExtractor{}
	p := NewRowProcessor(ex, []string{"sig"}, []string{"sig"}, nil)

	out := p.Process(context.Background(), alertRow(map[string]string{"sig": "rule-1"}, "sig"), 0)
	if out.Kind != NoInputFound {
		t.Fatalf("Kind = %v, want NoInputFound", out.Kind)
	}
	if out.Note != "selected columns were empty or fully filtered" {
		t.Errorf("Note = %q", out.Note)
	}
}

func TestFilterIgnoredClauses(t *testing.T) {
	ignored := map[string]struct{}{"sig": {}, "host": {}}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "middle clause kept",
			in:   "sig = rule-1 and path = /x/y and host = web-01",
			want: "path = /x/y",
		},
		{
			name: "quoted values",
			in:   `sig = "rule one" and cmd = '/bin/sh -c id'`,
			want: `cmd = '/bin/sh -c id'`,
		},
		{
			name: "no clauses match ignore set",
			in:   "path = /a and cmd = /b",
			want: "path = /a and cmd = /b",
		},
		{
			name: "non-clause text kept as-is",
			in:   "free text without equals",
			want: "free text without equals",
		},
		{
			name: "case sensitive separator",
			in:   "sig = a AND path = /x",
			want: "",
		},
		{
			name: "all clauses filtered",
			in:   "sig = a and host = b",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filterIgnoredClauses(tt.in, ignored); got != tt.want {
				t.Errorf("filterIgnoredClauses(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
