package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"desabasto/pkg/records"
)

// Hash computes a deterministic SHA-256 hash from selected fields and writes it
// into a target field on each record.
//
// It gives feeds with no natural key a stable, always-non-null key so the
// dedupe filter can still skip rows that were loaded before.
//
// JSON options expected by this transform (feed "hash" block):
//
//	{
//	  "fields": ["mdn_usuario", "pdv", "fecha_ultima_compra"],
//	  "target_field": "row_hash"
//	}
//
// Behavior / canonicalization rules:
//   - Fields are concatenated in the given order using Separator.
//   - Absent values are encoded as a single NUL byte (0x00) so missing
//     differs from empty-string.
//   - Integers are rendered in base 10; text is used as is (optionally trimmed).
//   - Output is a lowercase hex string (length 64).
type Hash struct {
	// Fields is the ordered list of input fields used to compute the hash.
	Fields []string

	// TargetField is where the computed hash is stored.
	TargetField string

	// IncludeFieldNames includes "field=value" in the canonical form.
	// This reduces accidental collisions when many fields are missing/empty.
	IncludeFieldNames bool

	// Separator used between field components in the canonical string.
	// If empty, defaults to ASCII Unit Separator (0x1f).
	Separator string

	// Overwrite controls whether an existing TargetField is replaced.
	// If false and TargetField holds a value, the record is left unchanged.
	Overwrite bool

	// TrimSpace trims leading/trailing ASCII whitespace for text values.
	TrimSpace bool
}

// Apply computes hashes and mutates records in-place.
func (h Hash) Apply(in []records.Record) []records.Record {
	if len(in) == 0 {
		return in
	}
	if h.TargetField == "" || len(h.Fields) == 0 {
		return in
	}

	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}

	for _, r := range in {
		if r == nil {
			continue
		}
		if !h.Overwrite && !r.Get(h.TargetField).IsAbsent() {
			continue
		}

		sum := hashRecord(r, h.Fields, sep, h.IncludeFieldNames, h.TrimSpace)
		r.Set(h.TargetField, records.Text(hex.EncodeToString(sum[:])))
	}

	return in
}

func hashRecord(r records.Record, fields []string, sep string, includeNames bool, trimSpace bool) [sha256.Size]byte {
	var b strings.Builder

	// Heuristic: reduce reallocs for common short-ish fields.
	b.Grow(len(fields) * 20)

	for i, f := range fields {
		if i > 0 {
			b.WriteString(sep)
		}
		if includeNames {
			b.WriteString(f)
			b.WriteByte('=')
		}

		v := r.Get(f)
		switch {
		case v.IsInteger():
			n, _ := v.Int64()
			b.WriteString(strconv.FormatInt(n, 10))
		case v.IsText():
			s, _ := v.Str()
			if trimSpace && HasEdgeSpace(s) {
				s = strings.TrimSpace(s)
			}
			b.WriteString(s)
		default:
			b.WriteByte('\x00')
		}
	}

	return sha256.Sum256([]byte(b.String()))
}

// HasEdgeSpace reports whether s starts or ends with a space or tab. It lets
// hot paths skip strings.TrimSpace when there is nothing to trim.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t'
}
