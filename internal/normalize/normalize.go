// Package normalize maps human-authored spreadsheet headers to canonical
// snake_case column keys.
//
// A canonical key matches [a-z0-9]+(_[a-z0-9]+)*: accents are stripped, every
// run of other characters becomes a single underscore, and the result is
// lowercased with no leading, trailing or doubled underscores.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Reason explains why a column position was dropped.
type Reason string

const (
	// ReasonDuplicate marks a later header that collided with an earlier one.
	ReasonDuplicate Reason = "duplicate"
	// ReasonEmpty marks a header with no alphanumeric content (blank or
	// punctuation only).
	ReasonEmpty Reason = "empty"
)

// Drop describes one dropped column position.
type Drop struct {
	Index  int
	Header string
	Key    string
	Reason Reason
}

// Result is the outcome of normalizing a header row.
type Result struct {
	// Keys has one entry per input header. Dropped positions hold "".
	Keys []string
	// Dropped lists dropped positions in column order.
	Dropped []Drop
}

// Kept reports whether column i survived normalization.
func (r Result) Kept(i int) bool {
	return i >= 0 && i < len(r.Keys) && r.Keys[i] != ""
}

// Key returns the canonical key for a single header.
//
//	Key("Última Uso MR")    == "ultima_uso_mr"
//	Key("  Saldo  Menor!!") == "saldo_menor"
func Key(header string) string {
	// Chained transformers carry state, so one is built per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, header)
	if err != nil {
		folded = header
	}

	var b strings.Builder
	b.Grow(len(folded))
	pending := false
	for _, r := range folded {
		if isASCIIAlnum(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pending = true
	}
	return b.String()
}

// Columns normalizes a header row. The first occurrence of a key wins; later
// collisions and headers that normalize to "" are dropped and reported.
func Columns(headers []string) Result {
	res := Result{Keys: make([]string, len(headers))}
	seen := make(map[string]int, len(headers))

	for i, h := range headers {
		k := Key(h)
		switch {
		case k == "":
			res.Dropped = append(res.Dropped, Drop{Index: i, Header: h, Reason: ReasonEmpty})
		case seenBefore(seen, k):
			res.Dropped = append(res.Dropped, Drop{Index: i, Header: h, Key: k, Reason: ReasonDuplicate})
		default:
			seen[k] = i
			res.Keys[i] = k
		}
	}
	return res
}

func seenBefore(seen map[string]int, k string) bool {
	_, ok := seen[k]
	return ok
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
