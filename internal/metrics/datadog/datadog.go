// Package datadog submits loader metrics to Datadog.
//
// Samples are buffered in memory and submitted on a ticker (once per minute
// by default) and once more on Close, so a long load shows up as a time
// series rather than a single point at exit. Step durations are reduced to
// percentile gauges at flush time.
//
// If the process is killed before Close runs, the last window is lost.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"desabasto/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "desabasto".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"team:ventas"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu     sync.Mutex
	window window
}

// window holds the samples collected since the last flush.
type window struct {
	steps     map[stepKey]float64
	durations map[stepKey][]float64
	records   map[string]float64 // kind -> count
	batches   map[string]float64 // status -> count
}

type stepKey struct {
	step, status string
}

func newWindow() window {
	return window{
		steps:     make(map[stepKey]float64),
		durations: make(map[stepKey][]float64),
		records:   make(map[string]float64),
		batches:   make(map[string]float64),
	}
}

func (w window) isEmpty() bool {
	return len(w.steps) == 0 && len(w.durations) == 0 && len(w.records) == 0 && len(w.batches) == 0
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop.
//
// When to use:
//   - -metrics-backend datadog, with DD_API_KEY (and DD_SITE when not
//     datadoghq.com) in the environment.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "desabasto".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - None at construction; submission errors surface from Flush and Close.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "desabasto"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		window:     newWindow(),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Later calls only
// flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.window.steps[stepKey{labels["step"], orUnknown(labels["status"])}] += delta
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.window.records[kind] += delta
		}
	case metrics.BatchesTotal:
		b.window.batches[orUnknown(labels["status"])] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := stepKey{labels["step"], orUnknown(labels["status"])}
	b.window.durations[k] = append(b.window.durations[k], value)
}

func (b *Backend) swapWindow() window {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.window
	b.window = newWindow()
	return w
}

// Flush submits the current window and starts a new one. The window is
// dropped even when submission fails.
func (b *Backend) Flush() error {
	w := b.swapWindow()
	if w.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(w, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries turns a window into Datadog series stamped at nowUnix.
// Series are sorted by metric name then tags so payloads are stable.
func (b *Backend) buildSeries(w window, nowUnix int64) []datadogV2.MetricSeries {
	point := func(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   typ.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: tags,
		}
	}
	count := func(metric string, v float64, tags []string) datadogV2.MetricSeries {
		return point(metric, datadogV2.METRICINTAKETYPE_COUNT, v, tags)
	}
	gauge := func(metric string, v float64, tags []string) datadogV2.MetricSeries {
		return point(metric, datadogV2.METRICINTAKETYPE_GAUGE, v, tags)
	}

	var series []datadogV2.MetricSeries

	for k, v := range w.steps {
		series = append(series, count("loader.step.total", v, withTags(b.baseTags, "step:"+k.step, "status:"+k.status)))
	}
	for kind, v := range w.records {
		series = append(series, count("loader.records.total", v, withTags(b.baseTags, "kind:"+kind)))
	}
	for status, v := range w.batches {
		series = append(series, count("loader.batches.total", v, withTags(b.baseTags, "status:"+status)))
	}

	for k, samples := range w.durations {
		if len(samples) == 0 {
			continue
		}
		cp := append([]float64(nil), samples...)
		sort.Float64s(cp)

		tags := withTags(b.baseTags, "step:"+k.step, "status:"+k.status)
		const prefix = "loader.step.duration_seconds"
		series = append(series,
			gauge(prefix+".p50", percentileNearestRank(cp, 0.50), tags),
			gauge(prefix+".p90", percentileNearestRank(cp, 0.90), tags),
			gauge(prefix+".p99", percentileNearestRank(cp, 0.99), tags),
			gauge(prefix+".max", cp[len(cp)-1], tags),
			gauge(prefix+".samples", float64(len(cp)), tags),
		)
	}

	sort.Slice(series, func(i, j int) bool {
		if series[i].Metric != series[j].Metric {
			return series[i].Metric < series[j].Metric
		}
		return strings.Join(series[i].Tags, ",") < strings.Join(series[j].Tags, ",")
	})
	return series
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:ventas".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
