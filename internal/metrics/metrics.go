// Package metrics is the process-wide metrics facade used by the loader.
//
// Code records through the package-level helpers; a concrete Backend is
// installed once at startup with SetBackend. Until then every call goes to a
// no-op backend, so tests and the default CLI need no setup.
package metrics

import "sync"

// Metric names recorded by the loader.
const (
	StepTotal           = "loader_step_total"            // labels: step, status
	RecordsTotal        = "loader_records_total"         // labels: kind
	BatchesTotal        = "loader_batches_total"         // labels: status
	StepDurationSeconds = "loader_step_duration_seconds" // labels: step, status
)

// Record kinds used with RecordsTotal.
const (
	KindRead      = "read"
	KindExcluded  = "excluded"
	KindNew       = "new"
	KindDuplicate = "duplicate"
	KindInserted  = "inserted"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric samples.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered samples of the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one finished step and observes its duration.
func RecordStep(step, status string, seconds float64) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, seconds, l)
}

// RecordRecords adds n records of the given kind. Zero is not recorded.
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one batch insert attempt.
func RecordBatch(status string) {
	IncCounter(BatchesTotal, 1, Labels{"status": status})
}
