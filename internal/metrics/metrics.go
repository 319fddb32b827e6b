package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	initOnce sync.Once

	// Registry holds every releng metric. The tools are short-lived, so the
	// registry is exported to a textfile or a Pushgateway instead of served.
	Registry = prometheus.NewRegistry()
)

// Init initializes all metrics subsystems and registers them with Registry
// This function is safe to call multiple times (uses sync.Once)
func Init() {
	initOnce.Do(func() {
		initCleanupMetrics()
		initCommandMetrics()

		registerCleanupMetrics()
		registerCommandMetrics()

		// Visible in exports even before the first run
		CleanupLastRunTimestamp.Set(0)
	})
}

// WriteTextfile writes the registry in text exposition format to path,
// for node_exporter's textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Push sends the registry to a Pushgateway under the given job name
func Push(ctx context.Context, url, job string) error {
	if job == "" {
		job = "releng"
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
