// Package matrix holds the square float32 matrices the kernels operate on.
package matrix

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// VectorWidth is the number of float32 lanes in one vector register. Every
// matrix dimension must be a multiple of it.
const VectorWidth = 4

var (
	ErrDimension  = errors.New("invalid matrix dimension")
	ErrDataLength = errors.New("matrix data length mismatch")
)

const errIndexOutOfRange = "matrix index out of range"

// Matrix is an N×N matrix of float32 values stored column-major: the element
// at (row, col) lives at Data[col*N+row], so every column is contiguous.
//
// The caller owns Data. Transpose rewrites it in place and flips the
// transposed flag, which lets consumers detect an operand that was already
// rearranged by an earlier call.
type Matrix struct {
	N    int
	Data []float32

	transposed bool
}

// New allocates a zeroed n×n matrix.
func New(n int) Matrix {
	if n < 0 {
		panic("negative dimension for matrix")
	}
	return Matrix{
		N:    n,
		Data: make([]float32, n*n),
	}
}

// FromData wraps an existing column-major buffer of n*n values.
func FromData(n int, data []float32) (Matrix, error) {
	if n < 0 {
		return Matrix{}, fmt.Errorf("%w: %d", ErrDimension, n)
	}
	if len(data) != n*n {
		return Matrix{}, fmt.Errorf("%w: have %d values, want %d", ErrDataLength, len(data), n*n)
	}
	return Matrix{N: n, Data: data}, nil
}

// Identity returns the n×n identity matrix.
func Identity(n int) Matrix {
	m := New(n)
	for i := range n {
		m.Data[i*n+i] = 1
	}
	return m
}

// Validate checks that n is positive, a multiple of VectorWidth, and that
// Data has exactly n*n values.
func (m *Matrix) Validate() error {
	if m.N <= 0 || m.N%VectorWidth != 0 {
		return fmt.Errorf("%w: %d is not a positive multiple of %d", ErrDimension, m.N, VectorWidth)
	}
	if len(m.Data) != m.N*m.N {
		return fmt.Errorf("%w: have %d values, want %d", ErrDataLength, len(m.Data), m.N*m.N)
	}
	return nil
}

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) float32 {
	if row < 0 || row >= m.N || col < 0 || col >= m.N {
		panic(errIndexOutOfRange)
	}
	return m.Data[col*m.N+row]
}

// Set stores v at (row, col).
func (m *Matrix) Set(row, col int, v float32) {
	if row < 0 || row >= m.N || col < 0 || col >= m.N {
		panic(errIndexOutOfRange)
	}
	m.Data[col*m.N+row] = v
}

// Col returns column j as a view into Data.
func (m *Matrix) Col(j int) []float32 {
	if j < 0 || j >= m.N {
		panic(errIndexOutOfRange)
	}
	off := j * m.N
	return m.Data[off : off+m.N]
}

// Cols returns columns [lo, hi) as one contiguous view into Data.
func (m *Matrix) Cols(lo, hi int) []float32 {
	if lo < 0 || hi > m.N || lo > hi {
		panic(errIndexOutOfRange)
	}
	return m.Data[lo*m.N : hi*m.N]
}

// Transposed reports whether Data currently holds the transpose of the
// matrix it was created with.
func (m *Matrix) Transposed() bool {
	return m.transposed
}

// Transpose transposes the matrix in place.
func (m *Matrix) Transpose() {
	m.TransposeRows(0, m.N)
	m.transposed = !m.transposed
}

// TransposeRows performs the swaps owned by rows [lo, hi): for every i in the
// range, element (i, j) trades places with (j, i) for j > i. Disjoint row
// ranges touch disjoint elements, so callers can split one transpose across
// goroutines. It does not flip the transposed flag; use MarkTransposed once
// every range is done.
func (m *Matrix) TransposeRows(lo, hi int) {
	n := m.N
	d := m.Data
	for i := lo; i < hi; i++ {
		for j := i + 1; j < n; j++ {
			d[j*n+i], d[i*n+j] = d[i*n+j], d[j*n+i]
		}
	}
}

// RowPairs is the number of row pairs TransposeRowPairs splits the matrix
// into.
func (m *Matrix) RowPairs() int {
	return (m.N + 1) / 2
}

// TransposeRowPairs performs the swaps of rows k and N-1-k for every pair k
// in [lo, hi). Row i owns N-1-i swaps, so every pair costs about N-1 and an
// even split of pairs is an even split of work. Like TransposeRows it leaves
// the transposed flag alone.
func (m *Matrix) TransposeRowPairs(lo, hi int) {
	last := m.N - 1
	for k := lo; k < hi; k++ {
		m.TransposeRows(k, k+1)
		if last-k != k {
			m.TransposeRows(last-k, last-k+1)
		}
	}
}

// MarkTransposed flips the transposed flag after a transpose carried out
// with TransposeRows.
func (m *Matrix) MarkTransposed() {
	m.transposed = !m.transposed
}

// Clone returns a deep copy, including the transposed flag.
func (m *Matrix) Clone() Matrix {
	out := Matrix{
		N:          m.N,
		Data:       make([]float32, len(m.Data)),
		transposed: m.transposed,
	}
	copy(out.Data, m.Data)
	return out
}

// Zero clears every element.
func (m *Matrix) Zero() {
	clear(m.Data)
}

// FillMod sets element k of Data to (k*k) mod mod.
func FillMod(m *Matrix, mod int) {
	if mod <= 0 {
		panic("FillMod: modulus must be positive")
	}
	for k := range m.Data {
		m.Data[k] = float32((k * k) % mod)
	}
}

// FillRand fills the matrix with reproducible values uniformly drawn from
// [0, upper). The same seed always produces the same matrix.
func FillRand(m *Matrix, seed int64, upper float32) {
	rng := rand.New(rand.NewSource(seed))
	below := math.Nextafter32(upper, 0)
	for k := range m.Data {
		// The product can round up to upper itself.
		m.Data[k] = min(rng.Float32()*upper, below)
	}
}

// MaxAbsDiff returns the largest absolute element-wise difference.
func MaxAbsDiff(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var maxAbs float64
	for i := range a {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if d > maxAbs {
			maxAbs = d
		}
	}
	return maxAbs
}

// MaxRelDiff returns the largest element-wise difference relative to the
// magnitude of want. Elements whose reference is zero are compared
// absolutely.
func MaxRelDiff(got, want []float32) float64 {
	if len(got) != len(want) {
		return math.Inf(1)
	}
	var maxRel float64
	for i := range got {
		d := math.Abs(float64(got[i]) - float64(want[i]))
		if ref := math.Abs(float64(want[i])); ref > 0 {
			d /= ref
		}
		if d > maxRel {
			maxRel = d
		}
	}
	return maxRel
}
