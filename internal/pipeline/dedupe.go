package pipeline

import "desabasto/pkg/records"

// FilterNew returns the records whose keyField is Absent or not in idx, in
// input order, and the number of records dropped as already present.
//
// Records without a key cannot be matched, so they are treated as new.
// Repeats of a key within recs are all kept; only idx is consulted.
func FilterNew(recs []records.Record, keyField string, idx KeyIndex) (fresh []records.Record, dupes int) {
	fresh = make([]records.Record, 0, len(recs))
	for _, r := range recs {
		if idx.Has(r.Get(keyField)) {
			dupes++
			continue
		}
		fresh = append(fresh, r)
	}
	return fresh, dupes
}
