// Package records defines the row shapes that flow through the loader, from
// the parsed Sheet to the sanitized Record.
package records

import (
	"sort"
	"strconv"
)

// RawRow maps a column name to a scalar cell value as read from the source
// (string, int, int64, float64, bool, time.Time or nil).
type RawRow map[string]any

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindText
	KindInteger
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindBool:
		return "bool"
	default:
		return "absent"
	}
}

// Value is a storage-ready cell: Text, Integer or Absent. Bool is used only
// by account maintenance, never by the sanitizer.
// The zero Value is Absent.
type Value struct {
	kind Kind
	s    string
	i    int64
	b    bool
}

// Text returns a Text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Int returns an Integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Bool returns a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Absent returns the absent-value marker.
func Absent() Value { return Value{} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsAbsent() bool  { return v.kind == KindAbsent }
func (v Value) IsText() bool    { return v.kind == KindText }
func (v Value) IsInteger() bool { return v.kind == KindInteger }

// Str returns the text payload and whether v is Text.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindText }

// Int64 returns the integer payload and whether v is Integer.
func (v Value) Int64() (int64, bool) { return v.i, v.kind == KindInteger }

// Boolean returns the bool payload and whether v is Bool.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Bind returns the value in the form database drivers accept:
// nil, string, int64 or bool.
func (v Value) Bind() any {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return v.i
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String renders v for CSV output and logs. Absent renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Record is a normalized row keyed by canonical column name.
type Record map[string]Value

// Get returns the value for col; missing columns are Absent.
func (r Record) Get(col string) Value { return r[col] }

// Set stores v under col.
func (r Record) Set(col string, v Value) { r[col] = v }

// Columns returns the record's column names in sorted order.
func (r Record) Columns() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Bind returns the positional driver values of r for columns.
func (r Record) Bind(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = r[c].Bind()
	}
	return out
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// UnionColumns returns the sorted union of column names across recs.
func UnionColumns(recs []Record) []string {
	set := make(map[string]struct{})
	for _, r := range recs {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sheet is a parsed source table: the header row as written in the file and
// the data rows below it. Rows are positional and may be shorter than
// Headers; missing trailing cells are nil. Lines holds the 1-based source
// line (or spreadsheet row) of each data row.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
	Lines   []int
}

// Cell returns row i, column j, or nil when the row is short.
func (s Sheet) Cell(i, j int) any {
	if i < 0 || i >= len(s.Rows) || j < 0 || j >= len(s.Rows[i]) {
		return nil
	}
	return s.Rows[i][j]
}
