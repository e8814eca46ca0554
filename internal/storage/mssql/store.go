package mssql

import (
	"context"
	"database/sql"
	"errors"

	mssqldb "github.com/microsoft/go-mssqldb"

	"desabasto/internal/storage"
	"desabasto/internal/storage/sqldb"
	"desabasto/internal/storage/sqlgen"
)

func init() {
	storage.Register("sqlserver", New)
}

// New constructs a SQL Server store using database/sql and the "sqlserver"
// driver registered by go-mssqldb.
//
// Statements use bracket-quoted identifiers and @pN placeholders. Inserts are
// split below the 2100 parameter limit and run in one transaction.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("connect", "", err, classify)
	}

	// Loader traffic is sequential; keep a small pool.
	raw.SetMaxOpenConns(4)
	raw.SetMaxIdleConns(4)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, storage.Wrap("connect", "", err, classify)
	}
	return sqldb.New(sqldb.Wrap(raw), sqlgen.SQLServer, classify), nil
}

// classify maps SQL Server error numbers onto storage kinds.
func classify(err error) storage.ErrorKind {
	var me mssqldb.Error
	if !errors.As(err, &me) {
		return ""
	}
	switch me.Number {
	case 2627, 2601, 547, 515:
		// unique key, unique index, FK/check, NOT NULL
		return storage.KindConstraint
	case 18456, 4060, 229, 230:
		// login failed, cannot open database, permission denied
		return storage.KindAuth
	default:
		return storage.KindQuery
	}
}
