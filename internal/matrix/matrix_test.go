package matrix

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestColumnMajorLayout(t *testing.T) {
	t.Parallel()

	m := New(4)
	m.Set(1, 2, 7)
	if m.Data[2*4+1] != 7 {
		t.Fatalf("expected (1,2) at index 9, Data=%v", m.Data)
	}
	if got := m.At(1, 2); got != 7 {
		t.Fatalf("At(1,2): got %v", got)
	}
	col := m.Col(2)
	if len(col) != 4 || col[1] != 7 {
		t.Fatalf("Col(2): got %v", col)
	}
	col[3] = 9
	if m.At(3, 2) != 9 {
		t.Fatal("Col must be a view into Data")
	}
	if cols := m.Cols(1, 3); len(cols) != 8 || cols[4+1] != 7 {
		t.Fatalf("Cols(1,3): got %v", cols)
	}
}

func TestTransposeIsInvolutory(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 4, 8, 13, 64} {
		m := New(n)
		FillRand(&m, int64(n), 10)
		orig := m.Clone()

		m.Transpose()
		if !m.Transposed() {
			t.Fatalf("n=%d: transposed flag not set", n)
		}
		for i := range n {
			for j := range n {
				if m.At(i, j) != orig.At(j, i) {
					t.Fatalf("n=%d: (%d,%d) not transposed", n, i, j)
				}
			}
		}

		m.Transpose()
		if m.Transposed() {
			t.Fatalf("n=%d: transposed flag not cleared", n)
		}
		for k := range m.Data {
			if m.Data[k] != orig.Data[k] {
				t.Fatalf("n=%d: element %d changed after double transpose", n, k)
			}
		}
	}
}

func TestTransposeRowsSplitMatchesTranspose(t *testing.T) {
	t.Parallel()

	n := 12
	whole := New(n)
	FillMod(&whole, 17)
	split := whole.Clone()

	whole.Transpose()
	split.TransposeRows(0, 5)
	split.TransposeRows(5, 9)
	split.TransposeRows(9, n)
	split.MarkTransposed()

	if !split.Transposed() {
		t.Fatal("MarkTransposed did not set the flag")
	}
	if MaxAbsDiff(whole.Data, split.Data) != 0 {
		t.Fatal("split transpose differs from whole transpose")
	}
}

func TestTransposeRowPairsMatchesTranspose(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 4, 7, 12} {
		whole := New(n)
		FillMod(&whole, 23)
		split := whole.Clone()

		whole.Transpose()
		pairs := split.RowPairs()
		mid := pairs / 2
		split.TransposeRowPairs(0, mid)
		split.TransposeRowPairs(mid, pairs)
		split.MarkTransposed()

		if MaxAbsDiff(whole.Data, split.Data) != 0 {
			t.Fatalf("n=%d: paired transpose differs from whole transpose", n)
		}
	}
}

func TestFillRandStaysBelowUpper(t *testing.T) {
	t.Parallel()

	// With upper = 1 every draw is rng.Float32() unscaled; with a large
	// upper the product rounds to upper for draws close to one.
	for _, upper := range []float32{1, 5, 8, 1 << 20} {
		m := New(64)
		FillRand(&m, 42, upper)
		for k, v := range m.Data {
			if v < 0 || v >= upper {
				t.Fatalf("upper=%v: Data[%d] = %v outside [0, upper)", upper, k, v)
			}
		}
	}
}

func TestFillMod(t *testing.T) {
	t.Parallel()

	m := New(4)
	FillMod(&m, 8)
	for k, v := range m.Data {
		if want := float32((k * k) % 8); v != want {
			t.Fatalf("Data[%d]: got %v want %v", k, v, want)
		}
	}
}

func TestFillRandDeterminism(t *testing.T) {
	t.Parallel()

	a := New(8)
	b := New(8)
	FillRand(&a, 1234, 5)
	FillRand(&b, 1234, 5)
	for k := range a.Data {
		if a.Data[k] != b.Data[k] {
			t.Fatalf("index %d: %v vs %v", k, a.Data[k], b.Data[k])
		}
		if a.Data[k] < 0 || a.Data[k] >= 5 {
			t.Fatalf("index %d out of range: %v", k, a.Data[k])
		}
	}

	c := New(8)
	FillRand(&c, 99, 5)
	if MaxAbsDiff(a.Data, c.Data) == 0 {
		t.Fatal("different seeds produced identical matrices")
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	m := Identity(4)
	for i := range 4 {
		for j := range 4 {
			want := float32(0)
			if i == j {
				want = 1
			}
			if m.At(i, j) != want {
				t.Fatalf("(%d,%d): got %v", i, j, m.At(i, j))
			}
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		m    Matrix
		want error
	}{
		{"ok", New(8), nil},
		{"zero", New(0), ErrDimension},
		{"not multiple of four", New(6), ErrDimension},
		{"short data", Matrix{N: 4, Data: make([]float32, 15)}, ErrDataLength},
	}
	for _, tc := range cases {
		err := tc.m.Validate()
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}

	if _, err := FromData(3, make([]float32, 8)); !errors.Is(err, ErrDataLength) {
		t.Fatalf("FromData: expected ErrDataLength, got %v", err)
	}
}

func TestClonePreservesTransposedFlag(t *testing.T) {
	t.Parallel()

	m := New(4)
	m.Transpose()
	c := m.Clone()
	if !c.Transposed() {
		t.Fatal("clone lost the transposed flag")
	}
	c.Data[0] = 3
	if m.Data[0] == 3 {
		t.Fatal("clone shares storage with the original")
	}
}

func TestMaxRelDiff(t *testing.T) {
	t.Parallel()

	if d := MaxRelDiff([]float32{101, 0}, []float32{100, 0}); d < 0.0099 || d > 0.0101 {
		t.Fatalf("relative diff: got %v", d)
	}
	if d := MaxRelDiff([]float32{0.5}, []float32{0}); d != 0.5 {
		t.Fatalf("zero reference falls back to absolute diff, got %v", d)
	}
}

func TestFprintOrders(t *testing.T) {
	t.Parallel()

	// 2 rows × 3 columns, column-major: columns are {1,2}, {3,4}, {5,6}.
	data := []float32{1, 2, 3, 4, 5, 6}

	var col bytes.Buffer
	if err := Fprint(&col, data, 2, 3, ColumnMajor); err != nil {
		t.Fatal(err)
	}
	wantCol := "1.000     2.000     \n3.000     4.000     \n5.000     6.000     \n"
	if col.String() != wantCol {
		t.Fatalf("column-major:\n%q\nwant\n%q", col.String(), wantCol)
	}

	var row bytes.Buffer
	if err := Fprint(&row, data, 2, 3, RowMajor); err != nil {
		t.Fatal(err)
	}
	wantRow := "1.000     3.000     5.000     \n2.000     4.000     6.000     \n"
	if row.String() != wantRow {
		t.Fatalf("row-major:\n%q\nwant\n%q", row.String(), wantRow)
	}

	if err := Fprint(&row, data, 4, 4, RowMajor); !errors.Is(err, ErrDataLength) {
		t.Fatalf("expected ErrDataLength for short buffer, got %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.txt")
	m := Identity(4)
	if err := WriteFile(path, m.Data, 4, 4, RowMajor); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "0.000     1.000") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestParseOrder(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Order{"c": ColumnMajor, "column": ColumnMajor, "r": RowMajor, "row": RowMajor} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Fatalf("ParseOrder(%q): got %v, %v", in, got, err)
		}
	}
	if _, err := ParseOrder("x"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}
