package pipeline

import (
	"context"
	"fmt"
	"time"

	"desabasto/internal/config"
	"desabasto/internal/metrics"
	"desabasto/internal/storage"
	"desabasto/pkg/records"
)

// BatchLoader inserts records in fixed-size batches, one Store.Insert call
// per batch, strictly in order.
//
// Fail-fast, partial commit: the first failing batch stops the load. Batches
// before it stay committed and batches after it are never attempted.
type BatchLoader struct {
	Store     storage.Store
	Table     string
	BatchSize int
	Logger    Logger
}

// LoadReport summarizes a Load call.
type LoadReport struct {
	// Committed is the number of records inserted by successful batches.
	Committed int
	// Batches is the number of insert calls made, including a failed one.
	Batches int
	// FailedBatch is the 1-based number of the failing batch, or 0.
	FailedBatch int
}

// BatchError reports the first failing batch.
type BatchError struct {
	Batch     int // 1-based
	Size      int
	Committed int // records committed before this batch
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d records) failed after %d committed: %v", e.Batch, e.Size, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Load inserts recs. An empty recs makes no calls.
//
// Errors:
//   - *BatchError wrapping the *storage.Error of the failing insert.
func (l BatchLoader) Load(ctx context.Context, recs []records.Record) (LoadReport, error) {
	var rep LoadReport
	if l.Store == nil {
		return rep, fmt.Errorf("batch loader: Store is required")
	}

	logf := loggerOf(l.Logger)
	size := l.BatchSize
	if size <= 0 {
		size = config.DefaultBatchSize
	}
	total := (len(recs) + size - 1) / size

	for start := 0; start < len(recs); start += size {
		end := min(start+size, len(recs))
		batch := recs[start:end]
		rep.Batches++

		t0 := time.Now()
		if _, err := l.Store.Insert(ctx, l.Table, batch); err != nil {
			metrics.RecordBatch("error")
			rep.FailedBatch = rep.Batches
			logf("stage=insert batch=%d/%d size=%d failed duration=%s err=%v", rep.Batches, total, len(batch), durMS(t0), err)
			return rep, &BatchError{Batch: rep.Batches, Size: len(batch), Committed: rep.Committed, Err: err}
		}
		metrics.RecordBatch("ok")
		rep.Committed += len(batch)
		logf("stage=insert batch=%d/%d size=%d ok committed=%d duration=%s", rep.Batches, total, len(batch), rep.Committed, durMS(t0))
	}
	return rep, nil
}
