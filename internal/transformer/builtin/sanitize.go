// Package builtin contains the row filters and record transforms used by the
// loader: sanitizing, exclusion, provenance stamps and row hashes.
package builtin

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"desabasto/internal/normalize"
	"desabasto/pkg/records"
)

// nullMarkers are cell texts that spreadsheet exports use for "no value".
var nullMarkers = map[string]bool{
	"nan":  true,
	"NaN":  true,
	"NaT":  true,
	"None": true,
	"<NA>": true,
}

// Sanitizer turns canonical raw rows into typed records.
//
// Rename maps source columns to destination columns; both sides are matched
// by canonical key, so "ULTIMO_USO_MR" matches a header "Último uso MR". An
// empty Rename keeps every input column under its own name. Columns without a
// rename entry are dropped.
//
// Numeric lists destination columns that must hold integers. Values that
// cannot be coerced become Absent rather than failing the row.
type Sanitizer struct {
	rename  map[string]string
	numeric map[string]bool
}

// NewSanitizer compiles a rename map and numeric column set.
func NewSanitizer(rename map[string]string, numeric map[string]bool) *Sanitizer {
	s := &Sanitizer{numeric: make(map[string]bool, len(numeric))}
	for k, v := range numeric {
		if v {
			s.numeric[normalize.Key(k)] = true
		}
	}
	if len(rename) > 0 {
		s.rename = make(map[string]string, len(rename))
		for src, dst := range rename {
			k, t := normalize.Key(src), normalize.Key(dst)
			if k == "" || t == "" {
				continue
			}
			s.rename[k] = t
		}
	}
	return s
}

// Sanitize converts one row. It never fails: malformed cells become Absent.
func (s *Sanitizer) Sanitize(raw records.RawRow) records.Record {
	out := make(records.Record, len(raw))

	// Sorted so that two sources renamed onto one target resolve the same way
	// on every run.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		target := k
		if s.rename != nil {
			t, ok := s.rename[k]
			if !ok {
				continue
			}
			target = t
		}
		v := s.value(target, raw[k])
		if prev, seen := out[target]; seen && !prev.IsAbsent() {
			continue
		}
		out[target] = v
	}
	return out
}

// SanitizeAll converts rows in order.
func (s *Sanitizer) SanitizeAll(rows []records.RawRow) []records.Record {
	out := make([]records.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.Sanitize(r))
	}
	return out
}

func (s *Sanitizer) value(target string, v any) records.Value {
	if s.numeric[target] {
		if n, ok := CoerceInt(v); ok {
			return records.Int(n)
		}
		return records.Absent()
	}
	if txt, ok := CellText(v); ok {
		return records.Text(txt)
	}
	return records.Absent()
}

// CoerceInt converts a cell to an integer.
//
// Accepts Go integers, finite floats (truncated toward zero) and numeric text
// such as "123", "123.0" or " 1e3 ". Everything else reports false.
func CoerceInt(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return uintToInt(uint64(t))
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return uintToInt(t)
	case float32:
		return floatToInt(float64(t))
	case float64:
		return floatToInt(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case []byte:
		return CoerceInt(string(t))
	default:
		return 0, false
	}
}

func uintToInt(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// CellText renders a cell as trimmed text. Blank cells, null markers and
// non-finite floats report false. Integral floats render without ".0".
func CellText(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case []byte:
		s = string(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e18 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return CellText(float64(t))
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.Format("2006-01-02 15:04:05"), true
	default:
		s = fmt.Sprint(t)
	}

	s = strings.TrimSpace(s)
	if s == "" || nullMarkers[s] {
		return "", false
	}
	return s, true
}
