package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"desabasto/internal/storage"
	"desabasto/internal/storage/sqlgen"
	"desabasto/pkg/records"
)

func init() {
	storage.Register("postgres", New)
}

/*
Store implements storage.Store for Postgres using a pgx connection pool.

Statements come from sqlgen with $n placeholders. Inserts run in one
transaction and are split into statements below the 65535 bind-parameter
ceiling, so a batch either lands whole or not at all.
*/
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New creates a pool for cfg.DSN and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("connect", "", err, classify)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("connect", "", err, classify)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Select implements storage.Store.
func (s *Store) Select(ctx context.Context, table string, q storage.Query) ([]storage.Row, error) {
	st, err := sqlgen.Select(sqlgen.Postgres, table, q)
	if err != nil {
		return nil, storage.Wrap("select", table, err, classify)
	}

	rows, err := s.pool.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, storage.Wrap("select", table, err, classify)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []storage.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, storage.Wrap("select", table, err, classify)
		}
		row := make(storage.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = plain(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("select", table, err, classify)
	}
	return out, nil
}

// plain reduces pgx-specific value types (numeric, uuid, ...) to their
// driver.Value form so callers only see strings, integers and times.
func plain(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return v
		}
		if b, ok := dv.([]byte); ok {
			return string(b)
		}
		return dv
	default:
		return v
	}
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, table string, recs []records.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	columns := records.UnionColumns(recs)
	if len(columns) == 0 {
		return 0, storage.Wrap("insert", table, fmt.Errorf("records have no columns"), classify)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, storage.Wrap("insert", table, err, classify)
	}
	defer tx.Rollback(ctx)

	total, err := insertTx(ctx, tx, table, columns, recs)
	if err != nil {
		return 0, storage.Wrap("insert", table, err, classify)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storage.Wrap("insert", table, err, classify)
	}
	return total, nil
}

func insertTx(ctx context.Context, tx pgx.Tx, table string, columns []string, recs []records.Record) (int64, error) {
	per := sqlgen.Postgres.RowsPerStatement(len(columns))
	var total int64
	for start := 0; start < len(recs); start += per {
		end := min(start+per, len(recs))
		rows := make([][]any, 0, end-start)
		for _, r := range recs[start:end] {
			rows = append(rows, r.Bind(columns))
		}
		st, err := sqlgen.Insert(sqlgen.Postgres, table, columns, rows)
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, st.SQL, st.Args...)
		if err != nil {
			return 0, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, table string, patch records.Record, filters ...storage.Filter) (int64, error) {
	st, err := sqlgen.Update(sqlgen.Postgres, table, patch, filters)
	if err != nil {
		if errors.Is(err, storage.ErrUnfiltered) {
			return 0, err
		}
		return 0, storage.Wrap("update", table, err, classify)
	}
	return s.exec(ctx, "update", table, st)
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...storage.Filter) (int64, error) {
	st, err := sqlgen.Delete(sqlgen.Postgres, table, filters)
	if err != nil {
		if errors.Is(err, storage.ErrUnfiltered) {
			return 0, err
		}
		return 0, storage.Wrap("delete", table, err, classify)
	}
	return s.exec(ctx, "delete", table, st)
}

func (s *Store) exec(ctx context.Context, op, table string, st sqlgen.Stmt) (int64, error) {
	tag, err := s.pool.Exec(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, storage.Wrap(op, table, err, classify)
	}
	return tag.RowsAffected(), nil
}

// Count implements storage.Store.
func (s *Store) Count(ctx context.Context, table string, filters ...storage.Filter) (int64, error) {
	st, err := sqlgen.Count(sqlgen.Postgres, table, filters)
	if err != nil {
		return 0, storage.Wrap("count", table, err, classify)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, st.SQL, st.Args...).Scan(&n); err != nil {
		return 0, storage.Wrap("count", table, err, classify)
	}
	return n, nil
}

// EnsureTables creates missing tables. Schema-qualified names get their
// schema created first.
func (s *Store) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		if schema, _, ok := strings.Cut(t.Name, "."); ok && schema != "" {
			ddl := "CREATE SCHEMA IF NOT EXISTS " + sqlgen.Postgres.Ident(schema) + ";"
			if _, err := s.pool.Exec(ctx, ddl); err != nil {
				return storage.Wrap("ddl", t.Name, err, classify)
			}
		}
		ddl, err := sqlgen.CreateTable(sqlgen.Postgres, t)
		if err != nil {
			return storage.Wrap("ddl", t.Name, err, classify)
		}
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return storage.Wrap("ddl", t.Name, err, classify)
		}
	}
	return nil
}

// classify maps SQLSTATE classes onto storage kinds.
//
//	23 integrity constraint violation -> constraint
//	28 invalid authorization          -> auth
//	08 connection exception           -> network
//	57014 query_canceled              -> canceled
func classify(err error) storage.ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "57014":
			return storage.KindCanceled
		case strings.HasPrefix(pgErr.Code, "23"):
			return storage.KindConstraint
		case strings.HasPrefix(pgErr.Code, "28"):
			return storage.KindAuth
		case strings.HasPrefix(pgErr.Code, "08"):
			return storage.KindNetwork
		default:
			return storage.KindQuery
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return storage.KindNetwork
	}
	if pgconn.Timeout(err) {
		return storage.KindNetwork
	}
	return ""
}
