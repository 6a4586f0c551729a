package git

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "snoopycrimecop_git"

const (
	subcommandLabel = "subcommand"
	resultLabel     = "result"
)

type metricCollector struct {
	commands *prometheus.HistogramVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		commands: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "command_duration_seconds",
				Help:      "duration of executed git commands",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{subcommandLabel, resultLabel},
		),
	}
}

func (m *metricCollector) CommandFinished(args []string, result string, duration time.Duration) {
	subcommand := "none"
	if len(args) > 0 {
		subcommand = args[0]
	}

	m.commands.WithLabelValues(subcommand, result).Observe(duration.Seconds())
}
