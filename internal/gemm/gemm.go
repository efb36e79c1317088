// Package gemm implements the square float32 matrix-multiply kernels: a
// scalar baseline, a threaded variant, the two per-worker kernels of the
// distributed strategies, a 4-lane vectorized variant and the combined
// threaded+vectorized block kernel.
//
// All matrices are column-major (see package matrix). Sequential, Threaded
// and ReductionPartial accumulate into C, so C has to be zeroed first.
// Vectorized and Combined assign every output entry directly.
package gemm

import (
	"errors"
	"fmt"

	"github.com/samcharles93/pigemm/internal/matrix"
	"github.com/samcharles93/pigemm/internal/partition"
)

var (
	ErrDimension         = matrix.ErrDimension
	ErrOperandTransposed = errors.New("operand already transposed")
	ErrPoolClosed        = errors.New("gemm pool closed")
)

// Block is one worker's share of the output: the N×Cols() column-major
// columns Range.Start through Range.End-1 of C.
type Block struct {
	Range partition.Range
	N     int
	Data  []float32
}

// Cols returns the number of output columns in the block.
func (b Block) Cols() int {
	return b.Range.Len()
}

func checkOperands(ms ...*matrix.Matrix) error {
	n := ms[0].N
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return err
		}
		if m.N != n {
			return fmt.Errorf("%w: operands are %d×%d and %d×%d", ErrDimension, n, n, m.N, m.N)
		}
	}
	return nil
}

// Sequential computes C += A·B.
func Sequential(c, a, b *matrix.Matrix) error {
	if err := checkOperands(c, a, b); err != nil {
		return err
	}
	n := c.N
	accumulate(c.Data, a.Data, b.Data, n, 0, n, 0, n)
	return nil
}

// Threaded computes C += A·B with the output columns split across the pool.
// Each worker owns a disjoint set of C columns, so no two workers ever
// update the same cell.
func Threaded(p *Pool, c, a, b *matrix.Matrix) error {
	if err := checkOperands(c, a, b); err != nil {
		return err
	}
	n := c.N
	return p.For(n, func(lo, hi int) {
		accumulate(c.Data, a.Data, b.Data, n, lo, hi, 0, n)
	})
}

// ReductionPartial accumulates into C the part of A·B contributed by the
// contraction indices owned by rank out of size workers. Summing every
// rank's C gives the full product.
func ReductionPartial(c, a, b *matrix.Matrix, rank, size int) error {
	if err := checkOperands(c, a, b); err != nil {
		return err
	}
	n := c.N
	r, err := partition.Of(n, rank, size)
	if err != nil {
		return err
	}
	accumulate(c.Data, a.Data, b.Data, n, 0, n, r.Start, r.End)
	return nil
}

// BlockColumns multiplies A by a contiguous block of B's columns and returns
// the matching block of C columns in a new buffer. len(bCols) must be a
// multiple of A.N.
func BlockColumns(a *matrix.Matrix, bCols []float32) ([]float32, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	n := a.N
	if len(bCols)%n != 0 {
		return nil, fmt.Errorf("%w: column block of %d values is not a multiple of %d", ErrDimension, len(bCols), n)
	}
	ncols := len(bCols) / n
	out := make([]float32, n*ncols)
	accumulate(out, a.Data, bCols, n, 0, ncols, 0, n)
	return out, nil
}

// ColumnBlock computes rank's block of output columns out of size workers.
func ColumnBlock(a, b *matrix.Matrix, rank, size int) (Block, error) {
	if err := checkOperands(a, b); err != nil {
		return Block{}, err
	}
	r, err := partition.Of(a.N, rank, size)
	if err != nil {
		return Block{}, err
	}
	data, err := BlockColumns(a, b.Cols(r.Start, r.End))
	if err != nil {
		return Block{}, err
	}
	return Block{Range: r, N: a.N, Data: data}, nil
}

// accumulate adds A[:, jlo:jhi]·B[jlo:jhi, ilo:ihi] into C[:, ilo:ihi].
// For each output column i and contraction index j, column j of A is scaled
// by B[j, i] and added to column i of C; the innermost loop walks both
// columns contiguously.
func accumulate(cData, aData, bData []float32, n, ilo, ihi, jlo, jhi int) {
	for i := ilo; i < ihi; i++ {
		cCol := cData[i*n : i*n+n]
		bCol := bData[i*n : i*n+n]
		for j := jlo; j < jhi; j++ {
			s := bCol[j]
			aCol := aData[j*n : j*n+n]
			for k := range cCol {
				cCol[k] += aCol[k] * s
			}
		}
	}
}
