// Package auditlog appends operator actions to a daily file:
//
//	logs/acciones_2025-08-05.log
//	[2025-08-05 09:30:00] CARGA -> 1201 registros insertados desde clientes.xlsx
//
// Writing is best effort. A failure never interrupts the action being logged.
package auditlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Log writes audit lines under Dir using the clock of Loc.
type Log struct {
	Dir string
	Loc *time.Location
	Now func() time.Time

	mu sync.Mutex
}

// New returns a Log writing to dir in loc.
func New(dir string, loc *time.Location) *Log {
	return &Log{Dir: dir, Loc: loc}
}

func (l *Log) now() time.Time {
	t := time.Now()
	if l.Now != nil {
		t = l.Now()
	}
	if l.Loc != nil {
		t = t.In(l.Loc)
	}
	return t
}

// Path returns the file for the day of t.
func (l *Log) Path(t time.Time) string {
	return filepath.Join(l.Dir, "acciones_"+t.Format(time.DateOnly)+".log")
}

// Write appends "[ts] action -> detail". Errors are returned for callers
// that care; Record ignores them.
func (l *Log) Write(action, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.Path(t), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "[%s] %s -> %s\n", t.Format(time.DateTime), action, detail)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

// Record is Write without the error.
func (l *Log) Record(action, format string, args ...any) {
	if l == nil {
		return
	}
	_ = l.Write(action, fmt.Sprintf(format, args...))
}

// SessionStart records the platform the tool runs on.
func (l *Log) SessionStart() {
	l.Record("INICIO SESION", "Entorno detectado: %s", Platform(runtime.GOOS))
}

// Platform names goos the way operators know it.
func Platform(goos string) string {
	switch goos {
	case "windows":
		return "PC (Windows)"
	case "android":
		return "Android"
	case "darwin":
		return "macOS"
	case "linux":
		return "Linux"
	default:
		return goos
	}
}
