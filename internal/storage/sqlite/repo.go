// Package sqlite implements storage.Repository on an embedded SQLite
// database via modernc.org/sqlite. It exists for serverless runs and for
// exercising repository behavior in tests without a postgres instance.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"dwload/internal/frame"
	"dwload/internal/storage"
)

func init() {
	storage.Register("sqlite", New)
}

// Repo wraps a database/sql handle over the sqlite driver.
//
// Differences from the postgres backend worth knowing:
//   - SQLite has no TRUNCATE. Reset is DELETE plus clearing the table's
//     sqlite_sequence entry, which restarts AUTOINCREMENT rowids.
//   - Cascading requires foreign_keys=ON, which is off by default; New
//     enables it per connection via the DSN pragma when absent.
type Repo struct {
	db *sql.DB
}

// New opens the database and verifies the connection.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, &storage.StorageError{Op: "connect", Err: err}
	}
	// The reset transaction assumes one connection sees all prior writes;
	// a single connection also sidesteps per-connection pragma drift.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, &storage.StorageError{Op: "connect", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &storage.StorageError{Op: "connect", Err: err}
	}
	return &Repo{db: db}, nil
}

// Close closes the database handle.
func (r *Repo) Close() { _ = r.db.Close() }

// TruncateTables empties the tables and restarts their rowid sequences in
// one transaction.
func (r *Repo) TruncateTables(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.StorageError{Op: "truncate", Err: err}
	}
	defer tx.Rollback()

	hasSeq, err := hasSQLiteSequence(ctx, tx)
	if err != nil {
		return &storage.StorageError{Op: "truncate", Err: err}
	}

	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(t)+";"); err != nil {
			return &storage.StorageError{Op: "truncate", Table: t, Err: err}
		}
		if hasSeq {
			if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = ?;", t); err != nil {
				return &storage.StorageError{Op: "truncate", Table: t, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &storage.StorageError{Op: "truncate", Err: err}
	}
	return nil
}

// hasSQLiteSequence reports whether the sqlite_sequence catalog table exists.
// It only exists once some table with AUTOINCREMENT has been created.
func hasSQLiteSequence(ctx context.Context, tx *sql.Tx) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence';",
	).Scan(&n)
	return n > 0, err
}

// AppendRows bulk-inserts the frame in input order, chunked under the
// statement parameter limit.
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

		stmt, args := buildInsertSQL(table, f.Columns, f.Rows[start:end])
		res, err := r.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return total, &storage.StorageError{Op: "insert", Table: table, Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, &storage.StorageError{Op: "insert", Table: table, Err: err}
		}
		total += n
	}
	return total, nil
}

// SelectKeyValue reads the full surrogate-key mapping of a dimension table.
func (r *Repo) SelectKeyValue(ctx context.Context, table, keyColumn, matchColumn string) (*frame.Frame, error) {
	if table == "" || keyColumn == "" || matchColumn == "" {
		return nil, &storage.StorageError{
			Op: "select", Table: table,
			Err: fmt.Errorf("table, keyColumn and matchColumn are required"),
		}
	}

	q := fmt.Sprintf("SELECT %s, %s FROM %s", sqlIdent(keyColumn), sqlIdent(matchColumn), sqlIdent(table))

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
	}
	defer rows.Close()

	out := frame.New(keyColumn, matchColumn)
	for rows.Next() {
		var key sql.NullInt64
		var match any
		if err := rows.Scan(&key, &match); err != nil {
			return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
		}
		if !key.Valid {
			return nil, &storage.StorageError{
				Op: "select", Table: table,
				Err: fmt.Errorf("%s is NULL; surrogate key column must be INTEGER PRIMARY KEY", keyColumn),
			}
		}
		if bs, ok := match.([]byte); ok {
			match = string(bs)
		}
		if err := out.Append([]any{key.Int64, match}); err != nil {
			return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.StorageError{Op: "select", Table: table, Err: err}
	}
	return out, nil
}

func rowsPerChunk(columns int) int {
	const maxParams = 2000
	n := maxParams / columns
	if n < 1 {
		return 1
	}
	return n
}

// buildInsertSQL constructs a single multi-row INSERT with ? placeholders.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, row[j])
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
