package storage

import (
	"context"
	"time"

	"desabasto/pkg/records"
)

// WithCallTimeout returns a Store that bounds every call with its own
// deadline of d. A d <= 0 returns s unchanged.
func WithCallTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return timeoutStore{s: s, d: d}
}

type timeoutStore struct {
	s Store
	d time.Duration
}

func (t timeoutStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Select(ctx, table, q)
}

func (t timeoutStore) Insert(ctx context.Context, table string, recs []records.Record) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Insert(ctx, table, recs)
}

func (t timeoutStore) Update(ctx context.Context, table string, patch records.Record, filters ...Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Update(ctx, table, patch, filters...)
}

func (t timeoutStore) Delete(ctx context.Context, table string, filters ...Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Delete(ctx, table, filters...)
}

func (t timeoutStore) Count(ctx context.Context, table string, filters ...Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.Count(ctx, table, filters...)
}

func (t timeoutStore) EnsureTables(ctx context.Context, tables []TableSpec) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.s.EnsureTables(ctx, tables)
}

func (t timeoutStore) Close() { t.s.Close() }
