package mirror

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"desabasto/pkg/records"
)

func TestFileName(t *testing.T) {
	at := time.Date(2025, 8, 5, 9, 3, 7, 0, time.UTC)
	got := FileName("/tmp/in/Desabasto 05-08.xlsx", at)
	if got != "Desabasto 05-08_normalizado_20250805_090307.csv" {
		t.Fatalf("FileName=%q", got)
	}
}

func TestWrite_BOMHeaderAndAbsentCells(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "normalizados")
	w := Writer{Dir: dir}

	recs := []records.Record{
		{"id_cliente": records.Int(1), "vendedor": records.Text("Juan, Pérez")},
		{"id_cliente": records.Absent()},
	}
	path, err := w.Write("clientes.xlsx", time.Unix(0, 0).UTC(), []string{"id_cliente", "vendedor"}, recs)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path=%q not under %q", path, dir)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := string(raw)
	if !strings.HasPrefix(got, "\uFEFF") {
		t.Fatalf("missing BOM: %q", got)
	}
	want := "\uFEFFid_cliente,vendedor\n1,\"Juan, Pérez\"\n,\n"
	if got != want {
		t.Fatalf("content=%q, want %q", got, want)
	}
}
