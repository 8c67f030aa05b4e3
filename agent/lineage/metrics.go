package lineage

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is notified synchronously after each record is appended.
// Implementations must not block.
type Observer interface {
	Observe(rec Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec Record)

func (f ObserverFunc) Observe(rec Record) { f(rec) }

// Metrics exports lineage records as Prometheus series.
type Metrics struct {
	recordsTotal *prometheus.CounterVec
	elapsed      *prometheus.HistogramVec
	untimedTotal prometheus.Counter
}

var _ Observer = (*Metrics)(nil)

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genai_data_lineage_records_total",
				Help: "Completed invocations recorded in the lineage log",
			},
			[]string{"agent_name", "method", "has_result"},
		),
		elapsed: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genai_data_lineage_elapsed_seconds",
				Help:    "Elapsed time of timed invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_name", "method"},
		),
		untimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "genai_data_lineage_untimed_total",
				Help: "Records completed without an observed start",
			},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.recordsTotal, m.elapsed, m.untimedTotal} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) Observe(rec Record) {
	m.recordsTotal.WithLabelValues(rec.AgentName, rec.Method, strconv.FormatBool(rec.HasResult)).Inc()
	if !rec.Timed {
		m.untimedTotal.Inc()
		return
	}
	m.elapsed.WithLabelValues(rec.AgentName, rec.Method).Observe(rec.ElapsedMS / 1e3)
}
