// Package postgres implements storage.Repository on top of pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"dwload/internal/frame"
	"dwload/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Repo is a pgxpool-backed repository. Apart from TruncateTables, every
// statement runs auto-committed on the shared pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New connects to the database and verifies the connection.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, &storage.StorageError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &storage.StorageError{Op: "connect", Err: err}
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// TruncateTables truncates all tables in one transaction, restarting their
// identity sequences and cascading to dependent rows. On any failure the
// transaction rolls back, so no partial truncation is observable.
func (r *Repo) TruncateTables(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return &storage.StorageError{Op: "truncate", Err: err}
	}
	defer tx.Rollback(ctx)

	for _, t := range tables {
		if _, err := tx.Exec(ctx, buildTruncateSQL(t)); err != nil {
			return &storage.StorageError{Op: "truncate", Table: t, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &storage.StorageError{Op: "truncate", Err: err}
	}
	return nil
}

// AppendRows bulk-inserts the frame in input order. Inserts are chunked so a
// single statement stays well under the Postgres parameter limit; each chunk
// is one multi-row INSERT.
func (r *Repo) AppendRows(ctx context.Context, table string, f *frame.Frame) (int64, error) {
	if f == nil || f.Len() == 0 {
		return 0, nil
	}
	if len(f.Columns) == 0 {
		return 0, &storage.StorageError{Op: "insert", Table: table, Err: fmt.Errorf("frame has no columns")}
	}

	chunk := rowsPerChunk(len(f.Columns))
	var total int64

	for start := 0; start < len(f.Rows); start += chunk {
		end := start + chunk
		if end > len(f.Rows) {
			end = len(f.Rows)
		}

		sql, args := buildInsertSQL(table, f.Columns, f.Rows[start:end])
		cmd, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, &storage.StorageError{Op: "insert", Table: table, Err: err}
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// SelectKeyValue reads the full surrogate-key mapping of a dimension table.
// The result frame has the surrogate key first and the natural key second.
func (r *Repo) SelectKeyValue(ctx context.Context, table, keyColumn, matchColumn string) (*frame.Frame, error) {
	if table == "" || keyColumn == "" || matchColumn == "" {
		return nil, &storage.StorageError{
			Op: "select", Table: table,
			Err: fmt.Errorf("table, keyColumn and matchColumn are required"),
		}
	}

	q := fmt.Sprintf("SELECT %s, %s FROM %s", pgIdent(keyColumn), pgIdent(matchColumn), pgIdent(table))

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
	}
	defer rows.Close()

	out := frame.New(keyColumn, matchColumn)
	for rows.Next() {
		var key int64
		var match any
		if err := rows.Scan(&key, &match); err != nil {
			return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
		}
		if bs, ok := match.([]byte); ok {
			match = string(bs)
		}
		if err := out.Append([]any{key, match}); err != nil {
			return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
	}
	return out, nil
}

// rowsPerChunk keeps each INSERT under ~2000 bind parameters (Postgres allows
// 65535, but large statements get slow to plan long before that).
func rowsPerChunk(columns int) int {
	const maxParams = 2000
	n := maxParams / columns
	if n < 1 {
		return 1
	}
	return n
}

// buildTruncateSQL renders the reset statement for one table.
func buildTruncateSQL(table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE;", pgIdent(table))
}

// buildInsertSQL constructs a single multi-row INSERT and its args. It is
// pure and deterministic so placeholder numbering and quoting can be unit
// tested without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
}

// pgIdent quotes an identifier, handling schema-qualified names.
func pgIdent(id string) string {
	parts := strings.Split(id, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
