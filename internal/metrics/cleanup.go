package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tree cleaner metrics
var (
	// CleanupDuration tracks how long cleaner runs take
	CleanupDuration prometheus.Histogram

	// FilesRemovedTotal counts removed files and symlinks per rule mode
	FilesRemovedTotal *prometheus.CounterVec

	// DirsPrunedTotal counts directories removed by pruning
	DirsPrunedTotal prometheus.Counter

	// BytesFreedTotal tracks total bytes freed by cleaner runs
	BytesFreedTotal prometheus.Counter

	// CleanupLastRunTimestamp records Unix timestamp of the last cleaner run
	CleanupLastRunTimestamp prometheus.Gauge
)

func initCleanupMetrics() {
	CleanupDuration = NewDurationHistogram(
		"releng_cleanup_duration_seconds",
		"Duration of tree cleaner runs in seconds.",
	)

	FilesRemovedTotal = NewCounterVec(
		"releng_files_removed_total",
		"Total number of files and symlinks removed by the tree cleaner.",
		[]string{"mode"},
	)

	DirsPrunedTotal = NewCounter(
		"releng_dirs_pruned_total",
		"Total number of empty directories pruned by the tree cleaner.",
	)

	BytesFreedTotal = NewBytesCounter(
		"releng_bytes_freed_total",
		"Total bytes freed by the tree cleaner.",
	)

	CleanupLastRunTimestamp = NewGauge(
		"releng_cleanup_last_run_timestamp",
		"Unix timestamp of the last tree cleaner run.",
	)
}

func registerCleanupMetrics() {
	Registry.MustRegister(
		CleanupDuration,
		FilesRemovedTotal,
		DirsPrunedTotal,
		BytesFreedTotal,
		CleanupLastRunTimestamp,
	)
}

// RecordFileRemoved counts one removed file
func RecordFileRemoved(mode string, size int64) {
	FilesRemovedTotal.WithLabelValues(mode).Inc()
	BytesFreedTotal.Add(float64(size))
}

// RecordCleanupRun records the duration and completion time of a run
func RecordCleanupRun(start time.Time) {
	CleanupDuration.Observe(time.Since(start).Seconds())
	CleanupLastRunTimestamp.Set(float64(time.Now().Unix()))
}
