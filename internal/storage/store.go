package storage

import (
	"context"
	"fmt"
	"sync"

	"desabasto/pkg/records"
)

// Config is the connection descriptor used to create a Store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Row is one selected row keyed by column name. Text columns are returned as
// string, never []byte.
type Row map[string]any

// Store is the remote relational store the loader talks to: generic select,
// insert, update and delete over named tables.
//
// Every error returned by a Store is a *Error so callers can branch on Kind.
// Each call is a blocking request/response; callers impose deadlines via ctx.
type Store interface {
	// Select returns rows matching q. Offset/Limit implement range pagination.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// Insert writes recs as one all-or-nothing unit and returns the number of
	// rows written. Columns are the union of record columns; absent values
	// are written as NULL.
	Insert(ctx context.Context, table string, recs []records.Record) (int64, error)

	// Update applies patch to rows matching filters. At least one filter is
	// required (ErrUnfiltered otherwise).
	Update(ctx context.Context, table string, patch records.Record, filters ...Filter) (int64, error)

	// Delete removes rows matching filters. At least one filter is required.
	Delete(ctx context.Context, table string, filters ...Filter) (int64, error)

	// Count returns the number of rows matching filters.
	Count(ctx context.Context, table string, filters ...Filter) (int64, error)

	// EnsureTables creates tables that do not exist yet.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Close releases backend resources. Call once.
	Close()
}

// Factory constructs a Store for a backend kind.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Kinds returns the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// New constructs a Store using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
