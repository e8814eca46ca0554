package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"desabasto/internal/config"
	"desabasto/internal/metrics"
	"desabasto/internal/metrics/datadog"
)

// metricsBackend is what initMetrics needs from a concrete backend.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Test seams.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = metrics.SetBackend
	logPrintf         = log.Printf
)

// initMetrics wires the named backend into the metrics facade. The returned
// cleanup is never nil and flushes the backend; it must run once at exit.
//
// Backends:
//   - "", "none", "noop": metrics stay disabled
//   - "datadog", "dd": periodic submission plus a final flush on cleanup
func initMetrics(ctx context.Context, cfg config.Config, backend string) (func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "none", "noop":
		return noop, nil

	case "datadog", "dd":
		tags := append([]string(nil), cfg.Metrics.Tags...)
		tags = append(tags, datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    cfg.Job,
			Tags:       tags,
			FlushEvery: cfg.Metrics.FlushEvery.Std(),
		})
		if err != nil {
			return noop, fmt.Errorf("init datadog backend: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
			setMetricsBackend(nil)
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q", backend)
	}
}
