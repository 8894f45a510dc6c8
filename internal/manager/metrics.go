package manager

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"workermgr/internal/protocol"
)

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "workermgr",
			Subsystem: "manager",
			Name:      "commands_total",
			Help:      "Control commands handled, by command and response code",
		},
		[]string{"command", "code"},
	)

	workersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "workermgr",
			Subsystem: "manager",
			Name:      "workers",
			Help:      "Registered worker processes",
		},
	)

	scaleUpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "workermgr",
			Subsystem: "manager",
			Name:      "scale_up_seconds",
			Help:      "Time from spawn to readiness verdict",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 10, 15},
		},
		[]string{"outcome"},
	)

	readinessAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "workermgr",
			Subsystem: "manager",
			Name:      "readiness_attempts",
			Help:      "Probe attempts used per scale up",
			Buckets:   prometheus.LinearBuckets(1, 1, DefaultProbeAttempts),
		},
	)
)

func init() {
	prometheus.MustRegister(commandsTotal, workersGauge, scaleUpDuration, readinessAttempts)
}

func commandName(cmd byte) string {
	switch cmd {
	case protocol.CmdLoad:
		return "load"
	case protocol.CmdScaleUp:
		return "scale_up"
	case protocol.CmdScaleDown:
		return "scale_down"
	}
	return "unknown"
}

func observeCommand(cmd byte, code int32) {
	commandsTotal.WithLabelValues(commandName(cmd), strconv.Itoa(int(code))).Inc()
}
