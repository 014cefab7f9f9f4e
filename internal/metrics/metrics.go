package metrics

import "github.com/prometheus/client_golang/prometheus"

type Counter interface {
	Inc(labels ...string)
}

type Counters struct {
	LogsIngested     Counter
	AnomaliesFlagged Counter
	StagesDegraded   Counter
}

type PrometheusCounter struct {
	counter *prometheus.CounterVec
}

func NewPrometheusCounter(reg prometheus.Registerer, name, help string, labels []string) *PrometheusCounter {
	c := &PrometheusCounter{
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, labels),
	}
	reg.MustRegister(c.counter)
	return c
}

func (p *PrometheusCounter) Inc(labels ...string) {
	p.counter.WithLabelValues(labels...).Inc()
}

func New() *Counters {
	return newWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTestCounters registers on a private registry so tests do not collide
// with the process-wide default.
func NewTestCounters() *Counters {
	return newWithRegisterer(prometheus.NewRegistry())
}

func newWithRegisterer(reg prometheus.Registerer) *Counters {
	return &Counters{
		LogsIngested: NewPrometheusCounter(
			reg,
			"logs_ingested_total",
			"Number of telemetry records accepted by the pipeline",
			[]string{"method", "status_class"},
		),
		AnomaliesFlagged: NewPrometheusCounter(
			reg,
			"anomalies_flagged_total",
			"Number of ingested records flagged anomalous",
			[]string{"severity"},
		),
		StagesDegraded: NewPrometheusCounter(
			reg,
			"pipeline_stages_degraded_total",
			"Number of optional pipeline stages that degraded",
			[]string{"stage"},
		),
	}
}
