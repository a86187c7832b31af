package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Attempt("ok")
	m.Attempt("ok")
	m.Attempt("error")
	m.Retry()
	m.ObserveInvoke(0.25)
	m.Salvage("many")
	m.Row("processed")
	m.Task("completed")

	if got := testutil.ToFloat64(m.ModelAttempts.WithLabelValues("ok")); got != 2 {
		t.Errorf("attempts ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ModelAttempts.WithLabelValues("error")); got != 1 {
		t.Errorf("attempts error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelRetries); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Salvages.WithLabelValues("many")); got != 1 {
		t.Errorf("salvages = %v, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	// Every recording method must be a no-op on the nil handle.
	m.Attempt("ok")
	m.Retry()
	m.ObserveInvoke(1)
	m.Salvage("single")
	m.Row("processed")
	m.Task("failed")
}
