package pipeline

import (
	"context"
	"fmt"
	"sync"

	"desabasto/internal/storage"
	"desabasto/pkg/records"
)

// fakeLogger collects formatted log lines.
type fakeLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *fakeLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, fmt.Sprintf(format, v...))
}

// fakeStore serves key pages from keys and records every insert call.
type fakeStore struct {
	keys    []any
	queries []storage.Query

	// selectErrAt fails the Select whose offset equals it (when >= 0).
	selectErrAt int

	inserts [][]records.Record
	// failInsert fails the n-th insert call (1-based); 0 never fails.
	failInsert int
}

func newFakeStore() *fakeStore { return &fakeStore{selectErrAt: -1} }

func (f *fakeStore) Select(ctx context.Context, table string, q storage.Query) ([]storage.Row, error) {
	f.queries = append(f.queries, q)
	if q.Offset == f.selectErrAt {
		return nil, &storage.Error{Kind: storage.KindNetwork, Op: "select", Table: table, Message: "connection reset"}
	}
	var out []storage.Row
	for i := q.Offset; i < len(f.keys) && (q.Limit <= 0 || i < q.Offset+q.Limit); i++ {
		out = append(out, storage.Row{q.Columns[0]: f.keys[i]})
	}
	return out, nil
}

func (f *fakeStore) Insert(ctx context.Context, table string, recs []records.Record) (int64, error) {
	f.inserts = append(f.inserts, recs)
	if len(f.inserts) == f.failInsert {
		return 0, &storage.Error{Kind: storage.KindConstraint, Op: "insert", Table: table, Message: "duplicate key"}
	}
	return int64(len(recs)), nil
}

func (f *fakeStore) Update(ctx context.Context, table string, patch records.Record, filters ...storage.Filter) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Delete(ctx context.Context, table string, filters ...storage.Filter) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Count(ctx context.Context, table string, filters ...storage.Filter) (int64, error) {
	return 0, nil
}

func (f *fakeStore) EnsureTables(ctx context.Context, tables []storage.TableSpec) error { return nil }
func (f *fakeStore) Close()                                                             {}

func keyed(ids ...int64) []records.Record {
	out := make([]records.Record, len(ids))
	for i, id := range ids {
		out[i] = records.Record{"id_cliente": records.Int(id)}
	}
	return out
}

func ids(recs []records.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i], _ = r.Get("id_cliente").Int64()
	}
	return out
}
