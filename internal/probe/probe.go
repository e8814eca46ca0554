// Package probe inspects a spreadsheet export and suggests the feed
// configuration that would load it.
//
// The probe is meant for onboarding a new export: it reads the file once,
// locates the header row under the title block, normalizes the headers the
// way the loader will, and profiles a bounded sample of data rows per column
// (fill count, distinct count, coarse type). From that it proposes:
//
//   - skip_rows, when Options.SkipRows is negative (auto-detect)
//   - numeric_fields, for columns whose every sampled value is an integer
//   - key_column, the most distinct fully-populated integer or text column
//
// The probe never connects to storage.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"desabasto/internal/config"
	"desabasto/internal/normalize"
	"desabasto/internal/pipeline"
	"desabasto/internal/transformer/builtin"
	"desabasto/pkg/records"
)

const (
	// DefaultSampleRows bounds how many data rows are profiled.
	DefaultSampleRows = 500

	// headerScanRows is how many leading rows are considered as the header
	// when auto-detecting skip_rows.
	headerScanRows = 10

	distinctCapPerColumn = 10000
)

// Coarse column types reported by the probe.
const (
	TypeInteger = "integer"
	TypeDate    = "date"
	TypeText    = "text"
	TypeEmpty   = "empty"
)

// Options controls what is read and how much is sampled.
type Options struct {
	Path string
	// Sheet selects a worksheet by name; empty means the first one.
	Sheet string
	// SkipRows is the number of rows above the header. Negative means
	// auto-detect within the first rows of the file.
	SkipRows int
	// SampleRows bounds the profiled rows; <= 0 uses DefaultSampleRows.
	SampleRows int
	// ParserOptions are passed to the CSV reader for delimited inputs.
	ParserOptions config.Options
}

// Column is the profile of one kept column.
type Column struct {
	Index  int
	Header string
	Key    string
	Type   string
	// Filled counts sampled rows with a value in this column.
	Filled int
	// Distinct counts distinct sampled values, bounded by a cap.
	Distinct int
	Capped   bool
}

// Ratio is Distinct/Filled, or 0 for an unfilled column.
func (c Column) Ratio() float64 {
	if c.Filled == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Filled)
}

// Result is what the probe learned about a file.
type Result struct {
	File     string
	Sheet    string
	SkipRows int
	// Rows is the number of non-blank data rows in the file.
	Rows    int
	Sampled int
	Columns []Column
	Dropped []normalize.Drop
	// KeyCandidate is the suggested key column, or "".
	KeyCandidate string
}

// ErrNoHeader is returned when no plausible header row is found.
var ErrNoHeader = errors.New("probe: no header row found")

// Probe reads opt.Path and profiles it.
//
// Errors:
//   - the file cannot be read (unsupported extension, missing sheet, ...)
//   - auto-detect finds no row with at least one usable header (ErrNoHeader)
func Probe(ctx context.Context, opt Options) (Result, error) {
	feed := config.Feed{Sheet: opt.Sheet, SkipRows: opt.SkipRows, ParserOptions: opt.ParserOptions}
	if opt.SkipRows < 0 {
		feed.SkipRows = 0
	}
	sheet, err := pipeline.ReadSheet(ctx, opt.Path, feed, nil)
	if err != nil {
		return Result{}, err
	}

	if opt.SkipRows < 0 {
		skip, ok := detectHeader(sheet)
		if !ok {
			return Result{}, fmt.Errorf("%w in first %d rows of %s", ErrNoHeader, headerScanRows, filepath.Base(opt.Path))
		}
		sheet = rebase(sheet, skip)
		feed.SkipRows = skip
	}

	n := opt.SampleRows
	if n <= 0 {
		n = DefaultSampleRows
	}
	res := profile(sheet, n)
	res.File = filepath.Base(opt.Path)
	res.SkipRows = feed.SkipRows
	return res, nil
}

// detectHeader picks the leading row with the most usable headers. A cell
// counts when it is text, not numeric, and normalizes to a fresh key. Ties go
// to the earliest row. It returns the number of rows above the winner.
func detectHeader(s records.Sheet) (int, bool) {
	best, bestScore := -1, 0
	score := func(cells []any) int {
		hdr := make([]string, len(cells))
		for j, c := range cells {
			txt, ok := c.(string)
			if !ok {
				continue
			}
			if _, num := builtin.CoerceInt(txt); num {
				continue
			}
			hdr[j] = txt
		}
		cols := normalize.Columns(hdr)
		return len(cols.Keys) - len(cols.Dropped)
	}

	first := make([]any, len(s.Headers))
	for j, h := range s.Headers {
		first[j] = h
	}
	if sc := score(first); sc > bestScore {
		best, bestScore = 0, sc
	}
	for i := 0; i < len(s.Rows) && i < headerScanRows-1; i++ {
		if sc := score(s.Rows[i]); sc > bestScore {
			best, bestScore = s.Lines[i]-1, sc
		}
	}
	return best, best >= 0
}

// rebase turns the row that sits skip rows down into the header row.
func rebase(s records.Sheet, skip int) records.Sheet {
	if skip == 0 {
		return s
	}
	out := records.Sheet{Name: s.Name}
	for i, line := range s.Lines {
		switch {
		case line-1 == skip:
			out.Headers = make([]string, len(s.Rows[i]))
			for j, c := range s.Rows[i] {
				if txt, ok := builtin.CellText(c); ok {
					out.Headers[j] = txt
				}
			}
		case line-1 > skip:
			out.Rows = append(out.Rows, s.Rows[i])
			out.Lines = append(out.Lines, line)
		}
	}
	return out
}

func profile(s records.Sheet, limit int) Result {
	cols := normalize.Columns(s.Headers)
	res := Result{Sheet: s.Name, Rows: len(s.Rows), Dropped: cols.Dropped}
	res.Sampled = min(limit, len(s.Rows))

	for j, key := range cols.Keys {
		if key == "" {
			continue
		}
		c := Column{Index: j, Header: s.Headers[j], Key: key}
		set := make(map[string]struct{})
		allInt, allDate := true, true
		for i := 0; i < res.Sampled; i++ {
			v := s.Cell(i, j)
			txt, ok := builtin.CellText(v)
			if !ok {
				continue
			}
			c.Filled++
			if _, isTime := v.(time.Time); !isTime {
				allDate = false
			}
			if _, isInt := builtin.CoerceInt(v); !isInt || !integral(v) {
				allInt = false
			}
			if c.Capped {
				continue
			}
			set[txt] = struct{}{}
			if len(set) >= distinctCapPerColumn {
				c.Capped = true
				set = nil
			}
		}
		c.Distinct = len(set)
		if c.Capped {
			c.Distinct = distinctCapPerColumn
		}
		switch {
		case c.Filled == 0:
			c.Type = TypeEmpty
		case allDate:
			c.Type = TypeDate
		case allInt:
			c.Type = TypeInteger
		default:
			c.Type = TypeText
		}
		res.Columns = append(res.Columns, c)
	}
	res.KeyCandidate = keyCandidate(res.Columns, res.Sampled)
	return res
}

// integral rejects values CoerceInt would truncate, so "12.5" stays text.
func integral(v any) bool {
	switch t := v.(type) {
	case float64:
		return t == math.Trunc(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return err == nil && f == math.Trunc(f)
	default:
		return true
	}
}

// keyCandidate returns the column that is filled and distinct in every
// sampled row. Integer columns win over text; then the leftmost wins.
func keyCandidate(cols []Column, sampled int) string {
	if sampled == 0 {
		return ""
	}
	var cands []Column
	for _, c := range cols {
		if c.Filled == sampled && c.Distinct == sampled && !c.Capped && (c.Type == TypeInteger || c.Type == TypeText) {
			cands = append(cands, c)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Type == TypeInteger && cands[j].Type != TypeInteger
	})
	if len(cands) == 0 {
		return ""
	}
	return cands[0].Key
}

// Feed returns a feed configuration for table built from the probe. Numeric
// fields are the integer columns; the key column is left empty when withKey
// is false (append-only feeds such as desabasto).
func (r Result) Feed(table string, withKey bool) config.Feed {
	f := config.Feed{Table: table, SkipRows: r.SkipRows, Sheet: r.Sheet}
	for _, c := range r.Columns {
		if c.Type == TypeInteger {
			f.Numeric = append(f.Numeric, c.Key)
		}
	}
	if withKey {
		f.KeyColumn = r.KeyCandidate
	}
	return f
}

// Report renders a tab-separated summary for operators.
func (r Result) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "file=%s sheet=%s skip_rows=%d rows=%d sampled=%d\n", r.File, r.Sheet, r.SkipRows, r.Rows, r.Sampled)
	fmt.Fprintf(&b, "%-30s\t%-30s\t%-8s\tfilled\tunique\tratio\n", "header", "key", "type")
	for _, c := range r.Columns {
		fmt.Fprintf(&b, "%-30s\t%-30s\t%-8s\t%d\t%d\t%.1f%%\n", c.Header, c.Key, c.Type, c.Filled, c.Distinct, c.Ratio()*100)
	}
	for _, d := range r.Dropped {
		fmt.Fprintf(&b, "dropped column %d %q (%s)\n", d.Index+1, d.Header, d.Reason)
	}
	if r.KeyCandidate != "" {
		fmt.Fprintf(&b, "key candidate: %s\n", r.KeyCandidate)
	}
	return strings.TrimRight(b.String(), "\n")
}
