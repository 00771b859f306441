// Package storage defines the backend-agnostic repository the pipeline loads
// through, plus the factory registry backends hook into from init().
package storage

import (
	"context"
	"fmt"
	"sync"

	"dwload/internal/frame"
)

// Config is the minimal configuration needed to create a repository.
type Config struct {
	// Kind selects a registered backend ("postgres", "sqlite").
	Kind string
	// DSN is passed through to the backend factory; validation is
	// backend-specific.
	DSN string
}

// Repository is the storage surface the pipeline needs. Implementations are
// expected to be used from a single goroutine for the lifetime of one job
// run.
type Repository interface {
	// Close releases backend resources. Call once at process shutdown.
	Close()

	// TruncateTables empties the given tables and resets their identity
	// counters inside a single transaction: either every table is reset or
	// none are. Dependent rows are removed by cascade, so table order does
	// not matter.
	TruncateTables(ctx context.Context, tables []string) error

	// AppendRows bulk-appends the frame's rows to the table, preserving row
	// order, and returns the number of rows written. It never generates or
	// assumes surrogate key values; the database assigns those.
	AppendRows(ctx context.Context, table string, f *frame.Frame) (int64, error)

	// SelectKeyValue fetches every row of a dimension table as a two-column
	// frame [keyColumn, matchColumn]: the database-generated surrogate key
	// and the natural key it was assigned to. No filtering, no pagination.
	SelectKeyValue(ctx context.Context, table, keyColumn, matchColumn string) (*frame.Frame, error)
}

// StorageError wraps a failed database operation with the operation name and
// the table involved.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind. Backends call this from
// init(). Registering the same kind twice panics so ambiguous backend
// selection fails fast.
func Register(kind string, f factory) {
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

// New constructs a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
