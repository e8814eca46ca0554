package auditlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWrite_DailyFileInOffset(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l := New(dir, time.FixedZone("UTC-6", -6*3600))
	// 03:00 UTC on the 6th is still the 5th at -06:00.
	l.Now = func() time.Time { return time.Date(2025, 8, 6, 3, 0, 0, 0, time.UTC) }

	l.Record("CARGA", "%d registros insertados desde %s", 1201, "clientes.xlsx")
	l.Record("ERROR", "Borrado total: timeout")

	raw, err := os.ReadFile(filepath.Join(dir, "acciones_2025-08-05.log"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%q", lines)
	}
	if lines[0] != "[2025-08-05 21:00:00] CARGA -> 1201 registros insertados desde clientes.xlsx" {
		t.Fatalf("line=%q", lines[0])
	}
}

func TestRecord_SwallowsErrors(t *testing.T) {
	// A file where the directory should be makes MkdirAll fail.
	blocker := filepath.Join(t.TempDir(), "logs")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := New(blocker, time.UTC)
	if err := l.Write("X", "y"); err == nil {
		t.Fatalf("expected Write error")
	}
	l.Record("X", "y")

	var nilLog *Log
	nilLog.Record("X", "y")
}

func TestPlatform(t *testing.T) {
	if Platform("windows") != "PC (Windows)" || Platform("plan9") != "plan9" {
		t.Fatalf("unexpected platform names")
	}
}
