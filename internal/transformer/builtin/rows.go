package builtin

import (
	"strings"
	"time"

	"desabasto/pkg/records"
)

// Exclude drops raw rows whose Column equals Equals, ignoring case and edge
// whitespace. Column is a canonical key. Rows without the column are kept.
type Exclude struct {
	Column string
	Equals string
}

// Keep implements transformer.RowFilter.
func (e Exclude) Keep(row records.RawRow) bool {
	v, ok := row[e.Column]
	if !ok {
		return true
	}
	s, ok := CellText(v)
	if !ok {
		return true
	}
	return !strings.EqualFold(s, strings.TrimSpace(e.Equals))
}

// Stamp writes provenance columns on every record: the source file name and
// the load timestamp rendered with Layout. Empty column names are skipped.
type Stamp struct {
	SourceFileColumn string
	LoadedAtColumn   string
	Source           string
	At               time.Time
	Layout           string
}

// Apply implements transformer.Transform.
func (s Stamp) Apply(in []records.Record) []records.Record {
	layout := s.Layout
	if layout == "" {
		layout = "2006-01-02 15:04:05-07"
	}
	at := records.Text(s.At.Format(layout))
	src := records.Text(s.Source)

	for _, r := range in {
		if r == nil {
			continue
		}
		if s.SourceFileColumn != "" {
			r.Set(s.SourceFileColumn, src)
		}
		if s.LoadedAtColumn != "" {
			r.Set(s.LoadedAtColumn, at)
		}
	}
	return in
}
