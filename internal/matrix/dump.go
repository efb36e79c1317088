package matrix

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Order selects how Fprint walks a column-major buffer.
type Order byte

const (
	// ColumnMajor prints one column per line.
	ColumnMajor Order = 'c'
	// RowMajor prints one row per line.
	RowMajor Order = 'r'
)

// ParseOrder accepts "c"/"col"/"column" and "r"/"row".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "c", "col", "column", "column-major":
		return ColumnMajor, nil
	case "r", "row", "row-major":
		return RowMajor, nil
	default:
		return 0, fmt.Errorf("unknown print order %q (expected c or r)", s)
	}
}

func (o Order) String() string {
	switch o {
	case ColumnMajor:
		return "column-major"
	case RowMajor:
		return "row-major"
	default:
		return fmt.Sprintf("Order(%d)", byte(o))
	}
}

// Fprint writes a column-major buffer of nrows×ncols values as fixed-width
// "%-10.3f" fields. A worker block is printed by passing its column count.
func Fprint(w io.Writer, data []float32, nrows, ncols int, order Order) error {
	if len(data) < nrows*ncols {
		return fmt.Errorf("%w: have %d values, want %d", ErrDataLength, len(data), nrows*ncols)
	}
	bw := bufio.NewWriter(w)
	switch order {
	case ColumnMajor:
		for i := range ncols {
			for j := range nrows {
				fmt.Fprintf(bw, "%-10.3f", data[nrows*i+j])
			}
			bw.WriteByte('\n')
		}
	case RowMajor:
		for i := range nrows {
			for j := range ncols {
				fmt.Fprintf(bw, "%-10.3f", data[nrows*j+i])
			}
			bw.WriteByte('\n')
		}
	default:
		return fmt.Errorf("unknown print order %v", order)
	}
	return bw.Flush()
}

// Print writes m to standard output.
func Print(m *Matrix, order Order) error {
	return Fprint(os.Stdout, m.Data, m.N, m.N, order)
}

// WriteFile writes a column-major buffer to the named file, truncating it.
func WriteFile(path string, data []float32, nrows, ncols int, order Order) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Fprint(f, data, nrows, ncols, order)
}
