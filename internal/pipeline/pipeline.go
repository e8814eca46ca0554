// Package pipeline loads one spreadsheet export into the remote store.
//
// A run is a single sequential pass:
//
//	read sheet -> normalize headers -> filter rows -> sanitize -> stamp/hash
//	-> CSV mirror -> fetch remote key index -> dedupe -> confirm -> batch insert
//
// Nothing runs concurrently and nothing is retried. A remote failure stops the
// stage it happens in and is returned with the progress made so far.
package pipeline

import (
	"log"
	"time"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

func loggerOf(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(discardWriter{}, "", 0).Printf
	}
	return l.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
