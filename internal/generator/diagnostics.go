package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reclampsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagen_reclamps_total",
		Help: "Sampled values pulled back into their valid band, by field.",
	}, []string{"field"})

	rowsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagen_rows_generated_total",
		Help: "Rows handed to the writer, by table.",
	}, []string{"table"})

	undetectedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagen_undetected_events_total",
		Help: "Golden events that produced no signal.",
	})

	runSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "datagen_run_seconds",
		Help:    "Wall time of a generation run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})
)

// diagnostics counts out-of-band samples for one run. Counts also feed the
// process-wide prometheus counters.
type diagnostics struct {
	reclamps map[string]int
}

func newDiagnostics() *diagnostics {
	return &diagnostics{reclamps: map[string]int{}}
}

// reclamp clamps v into [lo, hi] and counts the correction under field.
func (d *diagnostics) reclamp(field string, v, lo, hi float64) float64 {
	c := clamp(v, lo, hi)
	if c != v {
		d.reclamps[field]++
		reclampsTotal.WithLabelValues(field).Inc()
	}
	return c
}

func (d *diagnostics) snapshot() map[string]int {
	out := make(map[string]int, len(d.reclamps))
	for k, v := range d.reclamps {
		out[k] = v
	}
	return out
}
