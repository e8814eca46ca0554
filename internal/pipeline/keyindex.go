package pipeline

import (
	"context"
	"fmt"

	"desabasto/internal/config"
	"desabasto/internal/storage"
	"desabasto/pkg/records"
)

// KeyIndex is the set of business keys already stored remotely, in
// storage.NormalizeKey form. It is rebuilt per run and never updated.
type KeyIndex map[string]struct{}

// Has reports whether v is in the index. Absent values are never present.
func (idx KeyIndex) Has(v records.Value) bool {
	if v.IsAbsent() {
		return false
	}
	_, ok := idx[storage.NormalizeKey(v.Bind())]
	return ok
}

// Len returns the number of distinct keys.
func (idx KeyIndex) Len() int { return len(idx) }

// FetchKeyIndex reads every value of column from table, one page at a time.
//
// Pages are requested at offsets 0, pageSize, 2*pageSize, ... ordered by the
// key column. A page shorter than pageSize (or empty) ends the scan. Rows
// whose key is NULL are skipped.
//
// Errors:
//   - any page failure aborts the fetch; no partial index is returned and the
//     error names the offset of the failing page.
func FetchKeyIndex(ctx context.Context, store storage.Store, table, column string, pageSize int) (KeyIndex, error) {
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}

	idx := KeyIndex{}
	for offset := 0; ; offset += pageSize {
		rows, err := store.Select(ctx, table, storage.Query{
			Columns: []string{column},
			OrderBy: []string{column},
			Offset:  offset,
			Limit:   pageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s.%s keys at offset %d: %w", table, column, offset, err)
		}

		for _, r := range rows {
			v, ok := r[column]
			if !ok || v == nil {
				continue
			}
			if k := storage.NormalizeKey(v); k != "" {
				idx[k] = struct{}{}
			}
		}

		if len(rows) < pageSize {
			return idx, nil
		}
	}
}
