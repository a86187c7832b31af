package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for the extraction pipeline. A nil *Metrics
// is valid everywhere and records nothing, so tests and the batch CLI can
// run without a registry.
type Metrics struct {
	ModelAttempts  *prometheus.CounterVec
	ModelRetries   prometheus.Counter
	InvokeDuration prometheus.Histogram
	Salvages       *prometheus.CounterVec
	RowsProcessed  *prometheus.CounterVec
	Tasks          *prometheus.CounterVec
}

// New registers all collectors on reg and returns the handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ModelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertsift_model_attempts_total",
			Help: "Model invocation attempts by terminal result of the attempt.",
		}, []string{"result"}),
		ModelRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertsift_model_retries_total",
			Help: "Attempts that were retried after a timeout.",
		}),
		InvokeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertsift_invoke_duration_seconds",
			Help:    "Wall time of a full invocation including retries and backoff.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		Salvages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertsift_salvage_total",
			Help: "Salvage outcomes by recovered payload shape.",
		}, []string{"shape"}),
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertsift_rows_processed_total",
			Help: "Rows completed by outcome.",
		}, []string{"outcome"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertsift_tasks_total",
			Help: "Task terminal states.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.ModelAttempts, m.ModelRetries, m.InvokeDuration,
		m.Salvages, m.RowsProcessed, m.Tasks,
	)
	return m
}

func (m *Metrics) Attempt(result string) {
	if m != nil {
		m.ModelAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Retry() {
	if m != nil {
		m.ModelRetries.Inc()
	}
}

func (m *Metrics) ObserveInvoke(seconds float64) {
	if m != nil {
		m.InvokeDuration.Observe(seconds)
	}
}

func (m *Metrics) Salvage(shape string) {
	if m != nil {
		m.Salvages.WithLabelValues(shape).Inc()
	}
}

func (m *Metrics) Row(outcome string) {
	if m != nil {
		m.RowsProcessed.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Task(status string) {
	if m != nil {
		m.Tasks.WithLabelValues(status).Inc()
	}
}
