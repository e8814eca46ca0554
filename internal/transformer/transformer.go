// Package transformer defines the two shapes of per-row work the loader runs
// between reading a sheet and inserting it:
//
//   - RowFilter decides, on the canonical raw row, whether a row is loaded.
//   - Transform rewrites sanitized records in place (stamps, hashes).
//
// Concrete implementations live in the builtin subpackage.
package transformer

import "desabasto/pkg/records"

// RowFilter reports whether a raw row should be kept.
type RowFilter interface {
	Keep(row records.RawRow) bool
}

// Transform mutates records and returns the slice to pass downstream.
type Transform interface {
	Apply(in []records.Record) []records.Record
}

// Filter returns the rows every filter keeps, in input order, and the number
// of rows dropped.
func Filter(rows []records.RawRow, filters ...RowFilter) ([]records.RawRow, int) {
	if len(filters) == 0 {
		return rows, 0
	}
	out := make([]records.RawRow, 0, len(rows))
	for _, r := range rows {
		keep := true
		for _, f := range filters {
			if !f.Keep(r) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out, len(rows) - len(out)
}

// Chain applies transforms in order.
type Chain []Transform

// Apply implements Transform.
func (c Chain) Apply(in []records.Record) []records.Record {
	for _, t := range c {
		if t == nil {
			continue
		}
		in = t.Apply(in)
	}
	return in
}
