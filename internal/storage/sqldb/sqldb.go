// Package sqldb implements storage.Store on top of database/sql. The sqlite
// and sqlserver backends share it and differ only in dialect, driver and
// error classification.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"desabasto/internal/storage"
	"desabasto/internal/storage/sqlgen"
	"desabasto/pkg/records"
)

// Conn is a small interface over *sql.DB used to make the store testable.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
}

// Tx is the transactional subset used by Insert.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// Wrap adapts *sql.DB to Conn.
func Wrap(db *sql.DB) Conn { return &sqlDB{db: db} }

type sqlDB struct{ db *sql.DB }

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

// Store is a storage.Store over a database/sql connection.
type Store struct {
	db       Conn
	dialect  sqlgen.Dialect
	classify storage.Classifier
}

var _ storage.Store = (*Store)(nil)

// New returns a Store issuing dialect SQL over db. classify maps driver
// errors to storage kinds and may be nil.
func New(db Conn, dialect sqlgen.Dialect, classify storage.Classifier) *Store {
	return &Store{db: db, dialect: dialect, classify: classify}
}

func (s *Store) wrap(op, table string, err error) error {
	return storage.Wrap(op, table, err, s.classify)
}

// Close releases the underlying handle.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// Select implements storage.Store.
func (s *Store) Select(ctx context.Context, table string, q storage.Query) ([]storage.Row, error) {
	st, err := sqlgen.Select(s.dialect, table, q)
	if err != nil {
		return nil, s.wrap("select", table, err)
	}
	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, s.wrap("select", table, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, s.wrap("select", table, err)
	}
	return out, nil
}

// Insert writes recs inside one transaction, split into statements that fit
// the dialect's parameter ceiling. Either every row lands or none does.
func (s *Store) Insert(ctx context.Context, table string, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	columns := records.UnionColumns(recs)
	if len(columns) == 0 {
		return 0, s.wrap("insert", table, fmt.Errorf("records have no columns"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.wrap("insert", table, err)
	}
	defer tx.Rollback()

	per := s.dialect.RowsPerStatement(len(columns))
	var total int64
	for start := 0; start < len(recs); start += per {
		end := min(start+per, len(recs))
		rows := make([][]any, 0, end-start)
		for _, r := range recs[start:end] {
			rows = append(rows, r.Bind(columns))
		}
		st, err := sqlgen.Insert(s.dialect, table, columns, rows)
		if err != nil {
			return 0, s.wrap("insert", table, err)
		}
		res, err := tx.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			return 0, s.wrap("insert", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(rows))
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, s.wrap("insert", table, err)
	}
	return total, nil
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, table string, patch records.Record, filters ...storage.Filter) (int64, error) {
	st, err := sqlgen.Update(s.dialect, table, patch, filters)
	if err != nil {
		if errors.Is(err, storage.ErrUnfiltered) {
			return 0, err
		}
		return 0, s.wrap("update", table, err)
	}
	return s.exec(ctx, "update", table, st)
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...storage.Filter) (int64, error) {
	st, err := sqlgen.Delete(s.dialect, table, filters)
	if err != nil {
		if errors.Is(err, storage.ErrUnfiltered) {
			return 0, err
		}
		return 0, s.wrap("delete", table, err)
	}
	return s.exec(ctx, "delete", table, st)
}

func (s *Store) exec(ctx context.Context, op, table string, st sqlgen.Stmt) (int64, error) {
	res, err := s.db.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, s.wrap(op, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.wrap(op, table, err)
	}
	return n, nil
}

// Count implements storage.Store.
func (s *Store) Count(ctx context.Context, table string, filters ...storage.Filter) (int64, error) {
	st, err := sqlgen.Count(s.dialect, table, filters)
	if err != nil {
		return 0, s.wrap("count", table, err)
	}
	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, s.wrap("count", table, err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, s.wrap("count", table, err)
		}
	}
	return n, s.wrap("count", table, rows.Err())
}

// EnsureTables implements storage.Store.
func (s *Store) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := sqlgen.CreateTable(s.dialect, t)
		if err != nil {
			return s.wrap("ddl", t.Name, err)
		}
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return s.wrap("ddl", t.Name, err)
		}
	}
	return nil
}

// scanRows reads every row into a storage.Row. []byte values become strings.
func scanRows(rows *sql.Rows) ([]storage.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []storage.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(storage.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
