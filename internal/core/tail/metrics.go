package tail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailer_lines_emitted_total",
			Help: "Total number of log lines emitted by tailers",
		},
		[]string{"channel"},
	)

	rotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tailer_rotations_total",
			Help: "Total number of log file rotations detected",
		},
	)
)
