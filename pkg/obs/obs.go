// Package obs wires the ambient observability stack: a component-scoped
// zerolog.Logger (teacher idiom) and a Prometheus metrics registry
// (enrichment from open-policy-agent-gatekeeper, the pack's one repo
// that exercises prometheus/client_golang) exposing the checker's
// health to operators.
package obs

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// NewLogger returns a console-friendly zerolog.Logger writing to
// stderr, matching the teacher's preference for human-readable dev
// output over raw JSON in its CLI-adjacent tools.
func NewLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// Metrics holds every Prometheus collector rewire exposes on /metrics.
type Metrics struct {
	TicksTotal            prometheus.Counter
	ViolationsOpenTotal   *prometheus.CounterVec
	ViolationsClosedTotal *prometheus.CounterVec
	NotifierFailuresTotal prometheus.Counter
	ObservationsTotal     prometheus.Counter
}

// NewMetrics constructs and registers the Metrics collectors against
// registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rewire", Name: "checker_ticks_total", Help: "Number of CheckerLoop ticks run.",
		}),
		ViolationsOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewire", Name: "violations_opened_total", Help: "Violations opened by code.",
		}, []string{"code"}),
		ViolationsClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rewire", Name: "violations_closed_total", Help: "Violations closed by code.",
		}, []string{"code"}),
		NotifierFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rewire", Name: "notifier_failures_total", Help: "Notifier.Deliver calls that returned an error.",
		}),
		ObservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rewire", Name: "observations_appended_total", Help: "Observations appended via the HTTP surface.",
		}),
	}
	registry.MustRegister(m.TicksTotal, m.ViolationsOpenTotal, m.ViolationsClosedTotal, m.NotifierFailuresTotal, m.ObservationsTotal)
	return m
}
