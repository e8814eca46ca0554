package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"desabasto/internal/config"
	"desabasto/internal/metrics"
	"desabasto/internal/normalize"
	csvparser "desabasto/internal/parser/csv"
	"desabasto/internal/parser/xlsx"
	"desabasto/internal/storage"
	"desabasto/internal/transformer"
	"desabasto/internal/transformer/builtin"
	"desabasto/pkg/records"
)

// Summary is shown to the operator before any row is inserted.
type Summary struct {
	Feed       string
	File       string
	Table      string
	New        int
	Duplicates int
	Batches    int
}

// Mirror writes the normalized copy of a loaded file.
type Mirror interface {
	Write(source string, at time.Time, columns []string, recs []records.Record) (string, error)
}

// Runner loads files for the feeds in Config.
type Runner struct {
	Store  storage.Store
	Config config.Config
	Logger Logger

	// Now defaults to time.Now. Load timestamps use Config.Location().
	Now func() time.Time

	// Confirm is asked before inserting. A false answer ends the run with no
	// mutation. Nil means the caller already confirmed.
	Confirm func(Summary) bool

	// Mirror is optional. Mirror failures are logged and do not stop the run.
	Mirror Mirror
}

// Report describes one run.
type Report struct {
	RunID      string
	Feed       string
	File       string
	Table      string
	Rows       int // data rows read
	Dropped    []normalize.Drop
	Excluded   int
	New        int
	Duplicates int
	Declined   bool
	Committed  int
	Batches    int
	MirrorPath string
}

// Run loads the file at path using the named feed.
//
// Edge cases:
//   - a file with no data rows is not an error; nothing is inserted.
//   - feeds without key_column skip the key fetch; every record is new.
//
// Errors:
//   - unknown feed, unsupported extension or unreadable file (before any
//     remote call);
//   - key index fetch failure (nothing inserted);
//   - *BatchError from the loader; Report.Committed holds the prefix that
//     was inserted.
func (r *Runner) Run(ctx context.Context, feedName, path string) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Feed: feedName, File: filepath.Base(path)}
	if r.Store == nil {
		return rep, fmt.Errorf("runner: Store is required")
	}
	logf := loggerOf(r.Logger)

	feed, err := r.Config.Feed(feedName)
	if err != nil {
		return rep, err
	}
	rep.Table = r.Config.Table(feed.Table)
	logf("run=%s feed=%s file=%s table=%s", rep.RunID, feedName, rep.File, rep.Table)

	// Read.
	start := time.Now()
	sheet, err := ReadSheet(ctx, path, feed, func(line int, err error) {
		logf("warning: line %d skipped: %v", line, err)
	})
	if err != nil {
		metrics.RecordStep("read", "error", time.Since(start).Seconds())
		return rep, err
	}
	rep.Rows = len(sheet.Rows)
	metrics.RecordStep("read", "ok", time.Since(start).Seconds())
	metrics.RecordRecords(metrics.KindRead, rep.Rows)
	logf("stage=read ok rows=%d duration=%s", rep.Rows, durMS(start))

	// Normalize headers and filter rows.
	start = time.Now()
	cols := normalize.Columns(sheet.Headers)
	rep.Dropped = cols.Dropped
	for _, d := range cols.Dropped {
		logf("warning: column=%d header=%q dropped reason=%s key=%q", d.Index+1, d.Header, d.Reason, d.Key)
	}
	raw := canonicalRows(sheet, cols)

	filters := make([]transformer.RowFilter, 0, len(feed.Exclude))
	for _, ex := range feed.Exclude {
		filters = append(filters, builtin.Exclude{Column: normalize.Key(ex.Column), Equals: ex.Equals})
	}
	raw, rep.Excluded = transformer.Filter(raw, filters...)
	metrics.RecordRecords(metrics.KindExcluded, rep.Excluded)

	// Sanitize and stamp.
	now := r.now().In(r.Config.Location())
	recs := builtin.NewSanitizer(feed.Rename, feed.NumericSet()).SanitizeAll(raw)
	recs = r.transforms(feed, rep.File, now).Apply(recs)
	metrics.RecordStep("normalize", "ok", time.Since(start).Seconds())
	logf("stage=normalize ok records=%d excluded=%d duration=%s", len(recs), rep.Excluded, durMS(start))

	if r.Mirror != nil && len(recs) > 0 {
		p, err := r.Mirror.Write(path, now, mirrorColumns(cols, feed, recs), recs)
		if err != nil {
			logf("warning: mirror: %v", err)
		} else {
			rep.MirrorPath = p
			logf("stage=mirror ok path=%s", p)
		}
	}

	// Dedupe against the remote table.
	fresh := recs
	if key := normalize.Key(feed.KeyColumn); key != "" && len(recs) > 0 {
		start = time.Now()
		idx, err := FetchKeyIndex(ctx, r.Store, rep.Table, key, r.Config.Runtime.PageSize)
		if err != nil {
			metrics.RecordStep("key_index", "error", time.Since(start).Seconds())
			return rep, err
		}
		metrics.RecordStep("key_index", "ok", time.Since(start).Seconds())
		logf("stage=key_index ok keys=%d duration=%s", idx.Len(), durMS(start))

		fresh, rep.Duplicates = FilterNew(recs, key, idx)
		metrics.RecordRecords(metrics.KindDuplicate, rep.Duplicates)
	}
	rep.New = len(fresh)
	metrics.RecordRecords(metrics.KindNew, rep.New)
	logf("stage=dedupe ok new=%d duplicates=%d", rep.New, rep.Duplicates)

	if rep.New == 0 {
		return rep, nil
	}

	batchSize := r.Config.Runtime.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	if r.Confirm != nil && !r.Confirm(Summary{
		Feed:       feedName,
		File:       rep.File,
		Table:      rep.Table,
		New:        rep.New,
		Duplicates: rep.Duplicates,
		Batches:    (rep.New + batchSize - 1) / batchSize,
	}) {
		rep.Declined = true
		logf("stage=insert declined")
		return rep, nil
	}

	// Load.
	start = time.Now()
	lr, err := BatchLoader{Store: r.Store, Table: rep.Table, BatchSize: batchSize, Logger: r.Logger}.Load(ctx, fresh)
	rep.Committed, rep.Batches = lr.Committed, lr.Batches
	metrics.RecordRecords(metrics.KindInserted, rep.Committed)
	if err != nil {
		metrics.RecordStep("insert", "error", time.Since(start).Seconds())
		return rep, err
	}
	metrics.RecordStep("insert", "ok", time.Since(start).Seconds())
	logf("stage=insert ok committed=%d batches=%d duration=%s", rep.Committed, rep.Batches, durMS(start))
	return rep, nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ReadSheet reads path with the reader its extension selects: excelize for
// .xlsx/.xlsm, encoding/csv for .csv/.txt. SkipRows applies to both, Sheet
// only to workbooks and ParserOptions only to delimited text. onSkip may be
// nil.
func ReadSheet(ctx context.Context, path string, feed config.Feed, onSkip func(line int, err error)) (records.Sheet, error) {
	if onSkip == nil {
		onSkip = func(int, error) {}
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return xlsx.ReadSheet(ctx, path, xlsx.Options{Sheet: feed.Sheet, SkipRows: feed.SkipRows})
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return records.Sheet{}, fmt.Errorf("open %s: %w", path, err)
		}
		opt := config.Options{"skip_rows": feed.SkipRows}
		for k, v := range feed.ParserOptions {
			opt[k] = v
		}
		return csvparser.ReadSheet(ctx, f, opt, onSkip)
	default:
		return records.Sheet{}, fmt.Errorf("unsupported file type %q", ext)
	}
}

func (r *Runner) transforms(feed config.Feed, source string, at time.Time) transformer.Chain {
	var chain transformer.Chain
	if s := feed.Stamp; s != nil {
		chain = append(chain, builtin.Stamp{
			SourceFileColumn: s.SourceFileColumn,
			LoadedAtColumn:   s.LoadedAtColumn,
			Source:           source,
			At:               at,
			Layout:           s.Layout,
		})
	}
	if h := feed.Hash; h != nil {
		fields := make([]string, len(h.Fields))
		for i, f := range h.Fields {
			fields[i] = normalize.Key(f)
		}
		chain = append(chain, builtin.Hash{
			Fields:            fields,
			TargetField:       normalize.Key(h.TargetField),
			IncludeFieldNames: true,
			TrimSpace:         true,
			Overwrite:         true,
		})
	}
	return chain
}

// canonicalRows keys every data row by canonical header. Cells of dropped
// columns are discarded; missing trailing cells become nil.
func canonicalRows(sheet records.Sheet, cols normalize.Result) []records.RawRow {
	out := make([]records.RawRow, 0, len(sheet.Rows))
	for i := range sheet.Rows {
		row := make(records.RawRow, len(cols.Keys))
		for j, k := range cols.Keys {
			if k == "" {
				continue
			}
			row[k] = sheet.Cell(i, j)
		}
		out = append(out, row)
	}
	return out
}

// mirrorColumns keeps the sheet's column order for renamed or kept columns
// and appends the rest (stamps, hashes) sorted.
func mirrorColumns(cols normalize.Result, feed config.Feed, recs []records.Record) []string {
	all := records.UnionColumns(recs)
	present := make(map[string]bool, len(all))
	for _, c := range all {
		present[c] = true
	}

	rename := make(map[string]string, len(feed.Rename))
	for src, dst := range feed.Rename {
		rename[normalize.Key(src)] = normalize.Key(dst)
	}

	out := make([]string, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, k := range cols.Keys {
		if k == "" {
			continue
		}
		if len(rename) > 0 {
			k = rename[k]
		}
		if k == "" || seen[k] || !present[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	for _, c := range all {
		if !seen[c] {
			out = append(out, c)
		}
	}
	return out
}
