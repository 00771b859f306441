// Package frame provides the in-memory tabular batch used between pipeline
// stages: an ordered column list plus rows of loosely typed values. It is the
// shape CSV batches arrive in and the shape the storage layer consumes.
package frame

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame is a named-column record batch. Rows are positional and every row must
// have exactly len(Columns) values. Cell values are nil, string, int64 or
// float64 in practice; nothing in this package assumes more than that.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty frame with the given column order.
func New(columns ...string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Append adds a row. The row length must match the column count.
func (f *Frame) Append(row []any) error {
	if len(row) != len(f.Columns) {
		return fmt.Errorf("frame: row has %d values, want %d", len(row), len(f.Columns))
	}
	f.Rows = append(f.Rows, row)
	return nil
}

// ColumnIndex returns the position of a column and whether it exists.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	for i, c := range f.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// HasColumn reports whether the frame contains the named column.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.ColumnIndex(name)
	return ok
}

// Missing returns the subset of want that is not present in the frame,
// preserving the order of want. An empty result means all columns exist.
func (f *Frame) Missing(want []string) []string {
	var out []string
	for _, c := range want {
		if !f.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

// Select projects the frame onto the given columns, in the given order.
// All requested columns must exist; callers that need the full missing set
// should check Missing first.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j, ok := f.ColumnIndex(c)
		if !ok {
			return nil, fmt.Errorf("frame: select: missing column %q", c)
		}
		idx[i] = j
	}

	out := &Frame{
		Columns: append([]string(nil), columns...),
		Rows:    make([][]any, 0, len(f.Rows)),
	}
	for _, r := range f.Rows {
		row := make([]any, len(idx))
		for i, j := range idx {
			row[i] = r[j]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// LeftJoin joins right onto left by equality on the shared column `on`,
// keeping every left row in order. Right-side columns (minus the join column)
// are appended to the output; left rows with no match get nil for each of
// them. When the right side carries duplicate join keys the last mapping wins,
// which is adequate for dimension key tables where the join column is unique.
//
// Join equality uses NormalizeKey, so an int64 key fetched from the database
// matches the same value parsed from a CSV cell as a string.
func LeftJoin(left, right *Frame, on string) (*Frame, error) {
	li, ok := left.ColumnIndex(on)
	if !ok {
		return nil, fmt.Errorf("frame: left join: left side missing column %q", on)
	}
	ri, ok := right.ColumnIndex(on)
	if !ok {
		return nil, fmt.Errorf("frame: left join: right side missing column %q", on)
	}

	// Right-side columns carried into the output, excluding the join column.
	var carry []int
	for i := range right.Columns {
		if i != ri {
			carry = append(carry, i)
		}
	}

	index := make(map[string][]any, len(right.Rows))
	for _, r := range right.Rows {
		k := NormalizeKey(r[ri])
		if k == "" {
			continue
		}
		index[k] = r
	}

	out := &Frame{
		Columns: append([]string(nil), left.Columns...),
		Rows:    make([][]any, 0, len(left.Rows)),
	}
	for _, i := range carry {
		out.Columns = append(out.Columns, right.Columns[i])
	}

	for _, lr := range left.Rows {
		row := make([]any, 0, len(out.Columns))
		row = append(row, lr...)

		match := index[NormalizeKey(lr[li])]
		for _, i := range carry {
			if match == nil {
				row = append(row, nil)
				continue
			}
			row = append(row, match[i])
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// NullCount returns how many rows hold nil in the named column.
func (f *Frame) NullCount(column string) (int, error) {
	i, ok := f.ColumnIndex(column)
	if !ok {
		return 0, fmt.Errorf("frame: null count: missing column %q", column)
	}
	n := 0
	for _, r := range f.Rows {
		if r[i] == nil {
			n++
		}
	}
	return n, nil
}

// NormalizeKey converts a key value to a canonical string form so values can
// be compared across types (e.g. "7" from a CSV cell vs int64(7) scanned from
// the database). nil and whitespace-only values normalize to "".
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
