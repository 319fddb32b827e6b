package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Per-command metrics
var (
	// CommandDuration tracks subcommand wall time
	CommandDuration *prometheus.HistogramVec

	// ErrorsTotal counts failed subcommand invocations
	ErrorsTotal *prometheus.CounterVec

	// FetchBytesTotal counts bytes downloaded by fetch
	FetchBytesTotal prometheus.Counter

	// FetchSkippedTotal counts downloads skipped because the target existed
	FetchSkippedTotal prometheus.Counter
)

func initCommandMetrics() {
	CommandDuration = NewDurationHistogramVec(
		"releng_command_duration_seconds",
		"Duration of releng subcommands in seconds.",
		[]string{"command"},
	)

	ErrorsTotal = NewCounterVec(
		"releng_errors_total",
		"Total number of failed releng subcommands.",
		[]string{"command"},
	)

	FetchBytesTotal = NewBytesCounter(
		"releng_fetch_bytes_total",
		"Total bytes downloaded by fetch.",
	)

	FetchSkippedTotal = NewCounter(
		"releng_fetch_skipped_total",
		"Total number of downloads skipped because the file already existed.",
	)
}

func registerCommandMetrics() {
	Registry.MustRegister(
		CommandDuration,
		ErrorsTotal,
		FetchBytesTotal,
		FetchSkippedTotal,
	)
}

// ObserveCommand records the outcome of one subcommand
func ObserveCommand(command string, start time.Time, err error) {
	CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	if err != nil {
		ErrorsTotal.WithLabelValues(command).Inc()
	}
}
