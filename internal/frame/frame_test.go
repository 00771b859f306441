package frame

import (
	"testing"
)

func mustAppend(t *testing.T, f *Frame, rows ...[]any) {
	t.Helper()
	for _, r := range rows {
		if err := f.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestAppend_RejectsWrongArity(t *testing.T) {
	f := New("a", "b")
	if err := f.Append([]any{1}); err == nil {
		t.Fatal("expected error for short row")
	}
	if err := f.Append([]any{1, 2, 3}); err == nil {
		t.Fatal("expected error for long row")
	}
	if f.Len() != 0 {
		t.Fatalf("expected no rows, got %d", f.Len())
	}
}

func TestLeftJoin_MatchedAndUnmatched(t *testing.T) {
	orders := New("order_id", "customer_id")
	mustAppend(t, orders,
		[]any{int64(1), int64(7)},
		[]any{int64(2), int64(9)}, // no dimension row for 9
		[]any{int64(3), int64(7)},
	)

	mapping := New("customer_key", "customer_id")
	mustAppend(t, mapping,
		[]any{int64(101), int64(7)},
		[]any{int64(102), int64(8)},
	)

	out, err := LeftJoin(orders, mapping, "customer_id")
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}

	wantCols := []string{"order_id", "customer_id", "customer_key"}
	if len(out.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", out.Columns, wantCols)
	}
	for i, c := range wantCols {
		if out.Columns[i] != c {
			t.Fatalf("columns = %v, want %v", out.Columns, wantCols)
		}
	}

	if out.Len() != 3 {
		t.Fatalf("expected all 3 left rows kept, got %d", out.Len())
	}
	if out.Rows[0][2] != int64(101) {
		t.Fatalf("row 0 customer_key = %v, want 101", out.Rows[0][2])
	}
	if out.Rows[1][2] != nil {
		t.Fatalf("row 1 customer_key = %v, want nil (unmatched)", out.Rows[1][2])
	}
	if out.Rows[2][2] != int64(101) {
		t.Fatalf("row 2 customer_key = %v, want 101", out.Rows[2][2])
	}
}

func TestLeftJoin_MatchesAcrossTypes(t *testing.T) {
	// CSV cells come in as strings; database keys come back as int64.
	orders := New("order_id", "customer_id")
	mustAppend(t, orders, []any{"1", "7"})

	mapping := New("customer_key", "customer_id")
	mustAppend(t, mapping, []any{int64(5), int64(7)})

	out, err := LeftJoin(orders, mapping, "customer_id")
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	if out.Rows[0][2] != int64(5) {
		t.Fatalf("customer_key = %v, want 5", out.Rows[0][2])
	}
}

func TestLeftJoin_DuplicateRightKeyLastWins(t *testing.T) {
	left := New("id")
	mustAppend(t, left, []any{"x"})

	right := New("key", "id")
	mustAppend(t, right,
		[]any{int64(1), "x"},
		[]any{int64(2), "x"},
	)

	out, err := LeftJoin(left, right, "id")
	if err != nil {
		t.Fatalf("LeftJoin: %v", err)
	}
	if out.Rows[0][1] != int64(2) {
		t.Fatalf("key = %v, want 2 (last mapping wins)", out.Rows[0][1])
	}
}

func TestLeftJoin_MissingJoinColumn(t *testing.T) {
	left := New("a")
	right := New("key", "id")

	if _, err := LeftJoin(left, right, "id"); err == nil {
		t.Fatal("expected error when left side lacks join column")
	}
	if _, err := LeftJoin(right, left, "id"); err == nil {
		t.Fatal("expected error when right side lacks join column")
	}
}

func TestSelect_ProjectsInOrder(t *testing.T) {
	f := New("a", "b", "c")
	mustAppend(t, f, []any{1, 2, 3})

	out, err := f.Select("c", "a")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if out.Columns[0] != "c" || out.Columns[1] != "a" {
		t.Fatalf("columns = %v", out.Columns)
	}
	if out.Rows[0][0] != 3 || out.Rows[0][1] != 1 {
		t.Fatalf("row = %v", out.Rows[0])
	}
}

func TestMissing_ReportsAllAbsentColumns(t *testing.T) {
	f := New("order_id", "quantity")

	missing := f.Missing([]string{"order_id", "customer_key", "quantity", "payment_key"})
	if len(missing) != 2 || missing[0] != "customer_key" || missing[1] != "payment_key" {
		t.Fatalf("missing = %v", missing)
	}

	if m := f.Missing([]string{"order_id"}); m != nil {
		t.Fatalf("expected nil, got %v", m)
	}
}

func TestNullCount(t *testing.T) {
	f := New("k")
	mustAppend(t, f, []any{int64(1)}, []any{nil}, []any{nil})

	n, err := f.NullCount("k")
	if err != nil {
		t.Fatalf("NullCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if _, err := f.NullCount("nope"); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestNormalizeKey_TableDriven(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  wire ", "wire"},
		{[]byte(" 7 "), "7"},
		{int(7), "7"},
		{int64(7), "7"},
		{float64(7), "7"},
		{float64(7.5), "7.5"},
		{true, "true"},
	}
	for _, c := range cases {
		if got := NormalizeKey(c.in); got != c.want {
			t.Errorf("NormalizeKey(%#v) = %q, want %q", c.in, got, c.want)
		}
	}
}
