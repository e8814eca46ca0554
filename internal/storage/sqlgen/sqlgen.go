// Package sqlgen renders the statements every SQL backend issues.
//
// Builders are pure and deterministic so placeholder numbering, pagination
// and DDL can be unit tested without a database. Identifiers are always
// quoted; values are always bound as arguments.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"desabasto/internal/storage"
	"desabasto/pkg/records"
)

// Dialect selects quoting, placeholder and pagination syntax.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
	SQLServer
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// Ident quotes a single identifier.
func (d Dialect) Ident(name string) string {
	if d == SQLServer {
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Table quotes a possibly schema-qualified table name ("dbo.clientes").
func (d Dialect) Table(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = d.Ident(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// Placeholder returns the n-th (1-based) bind placeholder.
func (d Dialect) Placeholder(n int) string {
	switch d {
	case Postgres:
		return "$" + strconv.Itoa(n)
	case SQLServer:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// MaxParams is the bind parameter ceiling used to size multi-row inserts.
// SQL Server rejects statements above 2100 parameters.
func (d Dialect) MaxParams() int {
	switch d {
	case Postgres:
		return 65535
	case SQLServer:
		return 2000
	default:
		return 32766
	}
}

// RowsPerStatement returns how many rows of width cols fit in one INSERT.
func (d Dialect) RowsPerStatement(cols int) int {
	if cols <= 0 {
		return 1
	}
	n := d.MaxParams() / cols
	if d == SQLServer && n > 1000 {
		// VALUES row constructor limit.
		n = 1000
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Stmt is a rendered statement with its bind arguments.
type Stmt struct {
	SQL  string
	Args []any
}

type builder struct {
	d    Dialect
	b    strings.Builder
	args []any
}

func (w *builder) bind(v any) string {
	w.args = append(w.args, v)
	return w.d.Placeholder(len(w.args))
}

func (w *builder) stmt() Stmt { return Stmt{SQL: w.b.String(), Args: w.args} }

func (w *builder) where(filters []storage.Filter) error {
	if len(filters) == 0 {
		return nil
	}
	w.b.WriteString(" WHERE ")
	for i, f := range filters {
		if i > 0 {
			w.b.WriteString(" AND ")
		}
		if strings.TrimSpace(f.Column) == "" {
			return fmt.Errorf("sqlgen: filter %d has empty column", i)
		}
		col := w.d.Ident(f.Column)
		switch f.Op {
		case storage.OpEq:
			w.b.WriteString(col + " = " + w.bind(f.Value))
		case storage.OpGte:
			w.b.WriteString(col + " >= " + w.bind(f.Value))
		case storage.OpLt:
			w.b.WriteString(col + " < " + w.bind(f.Value))
		case storage.OpIn:
			if len(f.Values) == 0 {
				w.b.WriteString("1 = 0")
				continue
			}
			w.b.WriteString(col + " IN (")
			for j, v := range f.Values {
				if j > 0 {
					w.b.WriteString(", ")
				}
				w.b.WriteString(w.bind(v))
			}
			w.b.WriteString(")")
		case storage.OpIsNull:
			w.b.WriteString(col + " IS NULL")
		case storage.OpNotNull:
			w.b.WriteString(col + " IS NOT NULL")
		default:
			return fmt.Errorf("sqlgen: unsupported filter op %q", f.Op)
		}
	}
	return nil
}

// Select renders q against table.
//
// Pagination:
//   - Postgres and SQLite use LIMIT/OFFSET (SQLite needs LIMIT -1 for an
//     offset without limit).
//   - SQL Server uses OFFSET ... FETCH NEXT, which requires an ORDER BY, so
//     an unordered paged query falls back to ORDER BY (SELECT NULL).
func Select(d Dialect, table string, q storage.Query) (Stmt, error) {
	w := &builder{d: d}
	w.b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		w.b.WriteString("*")
	} else {
		w.b.WriteString(identList(d, q.Columns))
	}
	w.b.WriteString(" FROM ")
	w.b.WriteString(d.Table(table))
	if err := w.where(q.Filters); err != nil {
		return Stmt{}, err
	}

	paged := q.Limit > 0 || q.Offset > 0
	if len(q.OrderBy) > 0 {
		w.b.WriteString(" ORDER BY " + identList(d, q.OrderBy))
	} else if paged && d == SQLServer {
		w.b.WriteString(" ORDER BY (SELECT NULL)")
	}

	if paged {
		switch d {
		case SQLServer:
			w.b.WriteString(" OFFSET " + strconv.Itoa(q.Offset) + " ROWS")
			if q.Limit > 0 {
				w.b.WriteString(" FETCH NEXT " + strconv.Itoa(q.Limit) + " ROWS ONLY")
			}
		default:
			limit := q.Limit
			if limit <= 0 {
				limit = -1
			}
			if d == Postgres && limit < 0 {
				w.b.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
			} else {
				w.b.WriteString(" LIMIT " + strconv.Itoa(limit))
				if q.Offset > 0 {
					w.b.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
				}
			}
		}
	}
	return w.stmt(), nil
}

// Insert renders one multi-row INSERT. Every row must have len(columns) values.
func Insert(d Dialect, table string, columns []string, rows [][]any) (Stmt, error) {
	if len(columns) == 0 {
		return Stmt{}, fmt.Errorf("sqlgen: insert into %s: no columns", table)
	}
	if len(rows) == 0 {
		return Stmt{}, fmt.Errorf("sqlgen: insert into %s: no rows", table)
	}

	w := &builder{d: d, args: make([]any, 0, len(rows)*len(columns))}
	w.b.WriteString("INSERT INTO ")
	w.b.WriteString(d.Table(table))
	w.b.WriteString(" (")
	w.b.WriteString(identList(d, columns))
	w.b.WriteString(") VALUES ")

	for i, row := range rows {
		if len(row) != len(columns) {
			return Stmt{}, fmt.Errorf("sqlgen: insert into %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			w.b.WriteString(", ")
		}
		w.b.WriteString("(")
		for j, v := range row {
			if j > 0 {
				w.b.WriteString(", ")
			}
			w.b.WriteString(w.bind(v))
		}
		w.b.WriteString(")")
	}
	return w.stmt(), nil
}

// Update renders an UPDATE of patch's columns. Without filters it returns
// storage.ErrUnfiltered.
func Update(d Dialect, table string, patch records.Record, filters []storage.Filter) (Stmt, error) {
	if len(filters) == 0 {
		return Stmt{}, storage.ErrUnfiltered
	}
	cols := patch.Columns()
	if len(cols) == 0 {
		return Stmt{}, fmt.Errorf("sqlgen: update %s: empty patch", table)
	}

	w := &builder{d: d}
	w.b.WriteString("UPDATE ")
	w.b.WriteString(d.Table(table))
	w.b.WriteString(" SET ")
	for i, c := range cols {
		if i > 0 {
			w.b.WriteString(", ")
		}
		w.b.WriteString(d.Ident(c) + " = " + w.bind(patch.Get(c).Bind()))
	}
	if err := w.where(filters); err != nil {
		return Stmt{}, err
	}
	return w.stmt(), nil
}

// Delete renders a DELETE. Without filters it returns storage.ErrUnfiltered.
func Delete(d Dialect, table string, filters []storage.Filter) (Stmt, error) {
	if len(filters) == 0 {
		return Stmt{}, storage.ErrUnfiltered
	}
	w := &builder{d: d}
	w.b.WriteString("DELETE FROM ")
	w.b.WriteString(d.Table(table))
	if err := w.where(filters); err != nil {
		return Stmt{}, err
	}
	return w.stmt(), nil
}

// Count renders a COUNT(*) over rows matching filters.
func Count(d Dialect, table string, filters []storage.Filter) (Stmt, error) {
	w := &builder{d: d}
	w.b.WriteString("SELECT COUNT(*) FROM ")
	w.b.WriteString(d.Table(table))
	if err := w.where(filters); err != nil {
		return Stmt{}, err
	}
	return w.stmt(), nil
}

func identList(d Dialect, cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, d.Ident(c))
	}
	return strings.Join(out, ", ")
}
