package sqlgen

import (
	"fmt"
	"strings"

	"desabasto/internal/storage"
)

// CreateTable renders idempotent DDL for t.
//
// Postgres and SQLite use CREATE TABLE IF NOT EXISTS; SQL Server wraps the
// CREATE in an OBJECT_ID guard. Auto-increment primary key types ("serial",
// "bigserial", "identity") are translated per dialect.
func CreateTable(d Dialect, t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("sqlgen: table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		def, err := primaryKeyDef(d, *t.PrimaryKey)
		if err != nil {
			return "", fmt.Errorf("sqlgen: table %s: %w", t.Name, err)
		}
		parts = append(parts, def)
	}

	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("sqlgen: table %s: column name is empty", t.Name)
		}
		if strings.TrimSpace(c.Type) == "" {
			return "", fmt.Errorf("sqlgen: table %s: column %s type is empty", t.Name, c.Name)
		}
		col := d.Ident(c.Name) + " " + c.Type
		if c.Nullable != nil && !*c.Nullable {
			col += " NOT NULL"
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("sqlgen: table %s: unsupported constraint kind: %s", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return "", fmt.Errorf("sqlgen: table %s: unique constraint has no columns", t.Name)
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", identList(d, con.Columns)))
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("sqlgen: table %s: no columns", t.Name)
	}

	defs := strings.Join(parts, ", ")
	if d == SQLServer {
		return fmt.Sprintf(
			"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
			strings.ReplaceAll(t.Name, "'", "''"), d.Table(t.Name), defs,
		), nil
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", d.Table(t.Name), defs), nil
}

func primaryKeyDef(d Dialect, pk storage.PrimaryKeySpec) (string, error) {
	name := strings.TrimSpace(pk.Name)
	typ := strings.ToLower(strings.TrimSpace(pk.Type))
	if name == "" || typ == "" {
		return "", fmt.Errorf("primary_key.name and primary_key.type are required")
	}

	auto := typ == "serial" || typ == "bigserial" || typ == "identity" ||
		typ == "int identity" || typ == "integer identity"
	if !auto {
		return fmt.Sprintf("%s %s PRIMARY KEY", d.Ident(name), pk.Type), nil
	}

	switch d {
	case SQLite:
		// INTEGER PRIMARY KEY aliases the rowid and auto-generates values.
		return fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", d.Ident(name)), nil
	case SQLServer:
		if typ == "bigserial" {
			return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", d.Ident(name)), nil
		}
		return fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", d.Ident(name)), nil
	default:
		if typ == "bigserial" {
			return fmt.Sprintf("%s BIGSERIAL PRIMARY KEY", d.Ident(name)), nil
		}
		return fmt.Sprintf("%s SERIAL PRIMARY KEY", d.Ident(name)), nil
	}
}
