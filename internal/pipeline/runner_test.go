package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"desabasto/internal/config"
	"desabasto/internal/mirror"
	"desabasto/internal/normalize"
	"desabasto/internal/storage"
	_ "desabasto/internal/storage/sqlite"
)

const testConfig = `{
  "storage": {"kind": "sqlite", "dsn": ":memory:"},
  "tables": {"clientes": "clientes", "desabasto": "desabasto_registros"},
  "feeds": {
    "clientes": {
      "table": "clientes",
      "skip_rows": 2,
      "key_column": "id_cliente",
      "rename": {"ID_CLIENTE": "id_cliente", "MDN": "mdn_usuario", "VENDEDOR": "vendedor"},
      "numeric_fields": ["id_cliente"]
    },
    "desabasto": {
      "table": "desabasto",
      "skip_rows": 2,
      "exclude": [{"column": "Saldo menor al promedio diario", "equals": "normal"}],
      "stamp": {"source_file_column": "fuente_archivo", "loaded_at_column": "fecha_carga"}
    }
  },
  "runtime": {"batch_size": 2, "utc_offset_hours": -6}
}`

func nullable() *bool { v := true; return &v }

func openSQLite(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	st, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(st.Close)

	err = st.EnsureTables(ctx, []storage.TableSpec{
		{
			Name:       "clientes",
			PrimaryKey: &storage.PrimaryKeySpec{Name: "row_id", Type: "serial"},
			Columns: []storage.ColumnSpec{
				{Name: "id_cliente", Type: "INTEGER", Nullable: nullable()},
				{Name: "mdn_usuario", Type: "TEXT"},
				{Name: "vendedor", Type: "TEXT"},
			},
			Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"id_cliente"}}},
		},
		{
			Name:       "desabasto_registros",
			PrimaryKey: &storage.PrimaryKeySpec{Name: "row_id", Type: "serial"},
			Columns: []storage.ColumnSpec{
				{Name: "pdv", Type: "TEXT"},
				{Name: "saldo_menor_al_promedio_diario", Type: "TEXT"},
				{Name: "fuente_archivo", Type: "TEXT"},
				{Name: "fecha_carga", Type: "TEXT"},
			},
		},
	})
	if err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	return st
}

func writeXLSX(t *testing.T, name string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func testRunner(t *testing.T, st storage.Store) *Runner {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return &Runner{
		Store:  st,
		Config: cfg,
		Logger: &fakeLogger{},
		Now:    func() time.Time { return time.Date(2025, 8, 5, 15, 30, 0, 0, time.UTC) },
	}
}

func clientesFile(t *testing.T) string {
	return writeXLSX(t, "clientes.xlsx", [][]any{
		{"Reporte de clientes"},
		{"Generado 2025-08-05"},
		{"ID Cliente", "MDN", "", "Vendedor", "Región", "vendedor"},
		{8429529, "5512345678", "x", "Juan ", "Centro", "dup"},
		{8429530, "5512345679", "x", "  ", "Norte", "dup"},
		{"abc", "5512345680", "x", "Ana", "Sur", "dup"},
	})
}

func TestRunner_LoadsAndRerunSkipsKnownKeys(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	r := testRunner(t, st)
	path := clientesFile(t)

	var asked []Summary
	r.Confirm = func(s Summary) bool { asked = append(asked, s); return true }

	rep, err := r.Run(ctx, "clientes", path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Rows != 3 || rep.New != 3 || rep.Committed != 3 || rep.Batches != 2 {
		t.Fatalf("first run report=%+v", rep)
	}
	if len(rep.Dropped) != 2 {
		t.Fatalf("dropped=%+v, want duplicate vendedor and empty header", rep.Dropped)
	}
	if rep.Dropped[0].Reason != normalize.ReasonEmpty || rep.Dropped[1].Reason != normalize.ReasonDuplicate {
		t.Fatalf("drop reasons=%+v", rep.Dropped)
	}
	if len(asked) != 1 || asked[0].New != 3 || asked[0].Batches != 2 {
		t.Fatalf("confirm summaries=%+v", asked)
	}

	rows, err := st.Select(ctx, "clientes", storage.Query{OrderBy: []string{"row_id"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%v", rows)
	}
	if rows[0]["vendedor"] != "Juan" || rows[0]["id_cliente"] != int64(8429529) {
		t.Fatalf("row 1=%v", rows[0])
	}
	if rows[1]["vendedor"] != nil {
		t.Fatalf("blank vendedor should be NULL, got %#v", rows[1]["vendedor"])
	}
	if rows[2]["id_cliente"] != nil {
		t.Fatalf("non-numeric id should be NULL, got %#v", rows[2]["id_cliente"])
	}
	if _, ok := rows[0]["region"]; ok {
		t.Fatalf("unmapped column leaked: %v", rows[0])
	}

	// Rerun: known keys are skipped. The keyless row cannot be matched and
	// is treated as new again.
	asked = nil
	rep, err = r.Run(ctx, "clientes", path)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rep.Duplicates != 2 || rep.New != 1 {
		t.Fatalf("rerun report=%+v", rep)
	}
}

func TestRunner_RerunOfKeyedFileIsNoop(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	r := testRunner(t, st)
	path := writeXLSX(t, "clientes.xlsx", [][]any{
		{"t"}, {"t"},
		{"ID_CLIENTE", "MDN"},
		{1, "a"}, {2, "b"}, {3, "c"},
	})

	if _, err := r.Run(ctx, "clientes", path); err != nil {
		t.Fatalf("Run: %v", err)
	}
	r.Confirm = func(Summary) bool {
		t.Fatalf("confirm asked with nothing to insert")
		return false
	}
	rep, err := r.Run(ctx, "clientes", path)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rep.New != 0 || rep.Committed != 0 || rep.Batches != 0 || rep.Duplicates != 3 {
		t.Fatalf("rerun report=%+v", rep)
	}
	if n, _ := st.Count(ctx, "clientes"); n != 3 {
		t.Fatalf("count=%d, want 3", n)
	}
}

func TestRunner_DeclineMakesNoMutation(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	r := testRunner(t, st)
	r.Confirm = func(Summary) bool { return false }

	rep, err := r.Run(ctx, "clientes", clientesFile(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Declined || rep.Committed != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if n, _ := st.Count(ctx, "clientes"); n != 0 {
		t.Fatalf("count=%d after decline", n)
	}
}

func TestRunner_DesabastoExcludesStampsAndMirrors(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	r := testRunner(t, st)
	outDir := filepath.Join(t.TempDir(), "normalizados")
	r.Mirror = mirror.Writer{Dir: outDir}

	path := writeXLSX(t, "desabasto_0805.xlsx", [][]any{
		{"Reporte"}, {""},
		{"PDV", "Saldo menor al promedio diario"},
		{"Tienda 1", "Bajo"},
		{"Tienda 2", "NORMAL"},
		{"Tienda 3", "Crítico"},
	})

	rep, err := r.Run(ctx, "desabasto", path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Excluded != 1 || rep.Committed != 2 || rep.Duplicates != 0 {
		t.Fatalf("report=%+v", rep)
	}

	rows, err := st.Select(ctx, "desabasto_registros", storage.Query{OrderBy: []string{"row_id"}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(rows) != 2 || rows[1]["pdv"] != "Tienda 3" {
		t.Fatalf("rows=%v", rows)
	}
	if rows[0]["fuente_archivo"] != "desabasto_0805.xlsx" || rows[0]["fecha_carga"] != "2025-08-05 09:30:00-06" {
		t.Fatalf("stamp=%v", rows[0])
	}

	if filepath.Base(rep.MirrorPath) != "desabasto_0805_normalizado_20250805_093000.csv" {
		t.Fatalf("mirror path=%q", rep.MirrorPath)
	}
	raw, err := os.ReadFile(rep.MirrorPath)
	if err != nil {
		t.Fatalf("read mirror: %v", err)
	}
	header := strings.SplitN(strings.TrimPrefix(string(raw), "\uFEFF"), "\n", 2)[0]
	if header != "pdv,saldo_menor_al_promedio_diario,fecha_carga,fuente_archivo" {
		t.Fatalf("mirror header=%q", header)
	}
}

func TestRunner_KeyIndexFailureInsertsNothing(t *testing.T) {
	st := newFakeStore()
	st.selectErrAt = 0
	r := testRunner(t, st)

	rep, err := r.Run(context.Background(), "clientes", clientesFile(t))
	if err == nil {
		t.Fatalf("expected key index error")
	}
	if storage.KindOf(err) != storage.KindNetwork {
		t.Fatalf("kind=%q", storage.KindOf(err))
	}
	if len(st.inserts) != 0 || rep.Committed != 0 {
		t.Fatalf("inserted after fetch failure: %d calls", len(st.inserts))
	}
}

func TestRunner_PartialCommitReported(t *testing.T) {
	st := newFakeStore()
	st.failInsert = 2
	r := testRunner(t, st)

	rep, err := r.Run(context.Background(), "clientes", clientesFile(t))
	if err == nil {
		t.Fatalf("expected batch error")
	}
	if rep.Committed != 2 || rep.Batches != 2 {
		t.Fatalf("report=%+v, want 2 committed in batch 1", rep)
	}
}

func TestRunner_InputErrors(t *testing.T) {
	r := testRunner(t, newFakeStore())
	ctx := context.Background()

	if _, err := r.Run(ctx, "nope", "x.xlsx"); err == nil {
		t.Fatalf("expected unknown feed error")
	}
	if _, err := r.Run(ctx, "clientes", "x.pdf"); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := r.Run(ctx, "clientes", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestRunner_CSVInput(t *testing.T) {
	st := newFakeStore()
	r := testRunner(t, st)

	path := filepath.Join(t.TempDir(), "clientes.csv")
	body := "titulo\nGenerado\n\uFEFFID_CLIENTE,MDN\n10.0,55\n11,56\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rep, err := r.Run(context.Background(), "clientes", path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Committed != 2 {
		t.Fatalf("report=%+v", rep)
	}
	if got := ids(st.inserts[0]); got[0] != 10 || got[1] != 11 {
		t.Fatalf("ids=%v", got)
	}
	if v, _ := st.inserts[0][0].Get("mdn_usuario").Str(); v != "55" {
		t.Fatalf("mdn=%v", st.inserts[0][0])
	}
}
