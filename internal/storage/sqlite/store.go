package sqlite

import (
	"context"
	"database/sql"
	"errors"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"desabasto/internal/storage"
	"desabasto/internal/storage/sqldb"
	"desabasto/internal/storage/sqlgen"
)

func init() {
	storage.Register("sqlite", New)
}

// New opens a SQLite database through modernc.org/sqlite.
//
// SQLite serializes writers, so the pool is pinned to one connection. That
// also keeps a ":memory:" database alive across calls, which tests rely on.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("connect", "", err, classify)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("connect", "", err, classify)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("connect", "", err, classify)
	}
	return sqldb.New(sqldb.Wrap(db), sqlgen.SQLite, classify), nil
}

// classify maps SQLite result codes onto storage kinds. Extended codes carry
// the primary code in the low byte.
func classify(err error) storage.ErrorKind {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return ""
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return storage.KindConstraint
	case sqlite3.SQLITE_AUTH, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY:
		return storage.KindAuth
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_BUSY:
		return storage.KindNetwork
	default:
		return storage.KindQuery
	}
}
