package gemm

import (
	"os"

	"github.com/samcharles93/pigemm/internal/matrix"
	"github.com/samcharles93/pigemm/internal/partition"
)

// CPUFeatures holds the capabilities the vector kernels dispatch on, checked
// once at init.
type CPUFeatures struct {
	HasFMA bool
}

var cpu CPUFeatures

// NoSIMDEnv names the environment variable that forces the scalar lane
// emulation even when hardware FMA is available.
const NoSIMDEnv = "PIGEMM_NO_SIMD"

func noSIMD() bool {
	switch os.Getenv(NoSIMDEnv) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

// SIMD reports whether the vector kernels run on hardware FMA lanes.
func SIMD() bool {
	return cpu.HasFMA
}

// DisableSIMD switches the vector kernels to the scalar lane emulation. It
// must be called before any kernel runs.
func DisableSIMD() {
	cpu.HasFMA = false
}

// Vectorized computes C = A·B. It first transposes A in place so that row j
// of A becomes contiguous, then produces every C entry as a 4-lane fused
// multiply-add over the contraction followed by a horizontal lane sum. C is
// overwritten, not accumulated into.
//
// A is consumed: on return it holds its own transpose and reports
// Transposed(). Passing an operand that is already transposed fails with
// ErrOperandTransposed. Use VectorizedCopy to keep A intact.
func Vectorized(c, a, b *matrix.Matrix) error {
	if err := checkOperands(c, a, b); err != nil {
		return err
	}
	if a.Transposed() {
		return ErrOperandTransposed
	}
	n := c.N
	a.Transpose()
	dotColumns(c.Data, a.Data, b.Data, n, 0, 0, n)
	return nil
}

// VectorizedCopy is Vectorized on a private copy of A.
func VectorizedCopy(c, a, b *matrix.Matrix) error {
	if err := checkOperands(c, a, b); err != nil {
		return err
	}
	at := a.Clone()
	return Vectorized(c, &at, b)
}

// Combined computes rank's block of output columns out of size workers. The
// pool first transposes A in place, split by row pairs of equal cost, then
// computes the block's columns with the vectorized inner loop, split by
// column. It returns a new buffer holding only the block; A is left
// transposed as with Vectorized.
func Combined(p *Pool, a, b *matrix.Matrix, rank, size int) (Block, error) {
	if err := checkOperands(a, b); err != nil {
		return Block{}, err
	}
	if a.Transposed() {
		return Block{}, ErrOperandTransposed
	}
	n := a.N
	r, err := partition.Of(n, rank, size)
	if err != nil {
		return Block{}, err
	}
	out := make([]float32, n*r.Len())

	if err := p.For(a.RowPairs(), a.TransposeRowPairs); err != nil {
		return Block{}, err
	}
	a.MarkTransposed()

	err = p.For(r.Len(), func(lo, hi int) {
		dotColumns(out, a.Data, b.Data, n, r.Start, r.Start+lo, r.Start+hi)
	})
	if err != nil {
		return Block{}, err
	}
	return Block{Range: r, N: n, Data: out}, nil
}

// dotColumns assigns C[j, i] = dot(At[:, j], B[:, i]) for output columns i in
// [lo, hi) and every row j. dst holds C's columns starting at column base.
func dotColumns(dst, at, bd []float32, n, base, lo, hi int) {
	for i := lo; i < hi; i++ {
		bCol := bd[i*n : i*n+n]
		dCol := dst[(i-base)*n : (i-base)*n+n]
		for j := range n {
			dCol[j] = dot4(at[j*n:j*n+n], bCol)
		}
	}
}

// dot4 returns the dot product of a and b, whose common length is a multiple
// of four.
func dot4(a, b []float32) float32 {
	if cpu.HasFMA {
		return dot4SIMD(a, b)
	}
	return dot4Scalar(a, b)
}

// dot4Scalar mirrors the vector path lane for lane: element k feeds lane
// k%4, and the lanes are summed in order at the end.
func dot4Scalar(a, b []float32) float32 {
	var l0, l1, l2, l3 float32
	b = b[:len(a)]
	for k := 0; k+4 <= len(a); k += 4 {
		l0 += a[k] * b[k]
		l1 += a[k+1] * b[k+1]
		l2 += a[k+2] * b[k+2]
		l3 += a[k+3] * b[k+3]
	}
	return l0 + l1 + l2 + l3
}
