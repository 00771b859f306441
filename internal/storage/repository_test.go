package storage

import (
	"context"
	"errors"
	"testing"

	"dwload/internal/frame"
)

type stubRepo struct{}

func (stubRepo) Close()                                                  {}
func (stubRepo) TruncateTables(ctx context.Context, tables []string) error { return nil }
func (stubRepo) AppendRows(ctx context.Context, table string, f *frame.Frame) (int64, error) {
	return 0, nil
}
func (stubRepo) SelectKeyValue(ctx context.Context, table, keyColumn, matchColumn string) (*frame.Frame, error) {
	return nil, nil
}

func TestNew_UnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "voltdb"}); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestRegister_DispatchesToFactory(t *testing.T) {
	called := 0
	Register("test-backend", func(ctx context.Context, cfg Config) (Repository, error) {
		called++
		if cfg.DSN != "dsn://x" {
			t.Fatalf("cfg.DSN = %q", cfg.DSN)
		}
		return stubRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "test-backend", DSN: "dsn://x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if repo == nil || called != 1 {
		t.Fatalf("factory not used: repo=%v called=%d", repo, called)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register("dup-backend", func(ctx context.Context, cfg Config) (Repository, error) { return stubRepo{}, nil })
	Register("dup-backend", func(ctx context.Context, cfg Config) (Repository, error) { return stubRepo{}, nil })
}

func TestStorageError_FormatAndUnwrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := &StorageError{Op: "truncate", Table: "dim_customer", Err: cause}

	if got := err.Error(); got != "storage: truncate dim_customer: broken pipe" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see the cause")
	}

	var se *StorageError
	if !errors.As(error(err), &se) {
		t.Fatal("errors.As failed")
	}
}
