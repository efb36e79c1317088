// Package dist runs the distributed multiply strategies over a
// cluster.Communicator. Every rank of the group calls the same function with
// the same n; the product ends up on cluster.Root and the other ranks get nil.
//
// Each strategy first agrees on its partition table, so ranks that would
// move differently sized blocks fail together with
// cluster.ErrPartitionMismatch instead of corrupting C.
package dist

import (
	"context"
	"fmt"
	"strings"

	"github.com/samcharles93/pigemm/internal/cluster"
	"github.com/samcharles93/pigemm/internal/gemm"
	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/matrix"
	"github.com/samcharles93/pigemm/internal/partition"
)

// Strategy names one of the distributed multiply strategies.
type Strategy int

const (
	// StrategyReduction: every rank holds A and B, computes the partial
	// product over its slice of the contraction, partials are summed on root.
	StrategyReduction Strategy = iota + 1
	// StrategyBlock: root holds A and B, broadcasts A, scatters column blocks
	// of B and gathers the matching column blocks of C.
	StrategyBlock
	// StrategyCombined: every rank holds A and B and computes its column
	// block with the threaded vectorized kernel; root gathers.
	StrategyCombined
)

func (s Strategy) String() string {
	switch s {
	case StrategyReduction:
		return "reduction"
	case StrategyBlock:
		return "block"
	case StrategyCombined:
		return "combined"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the names printed by Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "reduction", "reduce":
		return StrategyReduction, nil
	case "block":
		return StrategyBlock, nil
	case "combined":
		return StrategyCombined, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (want reduction, block or combined)", s)
	}
}

// RootOnly reports whether only root needs to hold A and B.
func (s Strategy) RootOnly() bool {
	return s == StrategyBlock
}

// Run dispatches to the named strategy. a and b may be nil on non-root ranks
// for StrategyBlock; p is only used by StrategyCombined.
func Run(ctx context.Context, s Strategy, comm cluster.Communicator, p *gemm.Pool, n int, a, b *matrix.Matrix) (*matrix.Matrix, error) {
	switch s {
	case StrategyReduction:
		return Reduction(ctx, comm, a, b)
	case StrategyBlock:
		return Block(ctx, comm, n, a, b)
	case StrategyCombined:
		return Combined(ctx, comm, p, a, b)
	default:
		return nil, fmt.Errorf("unknown strategy %v", s)
	}
}

// Reduction computes A·B with the contraction split across ranks. Every rank
// passes the full A and B.
func Reduction(ctx context.Context, comm cluster.Communicator, a, b *matrix.Matrix) (*matrix.Matrix, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: reduction needs A and B on rank %d", gemm.ErrDimension, comm.Rank())
	}
	n := a.N
	if _, err := agree(ctx, comm, n, 1); err != nil {
		return nil, err
	}

	partial := matrix.New(n)
	if err := gemm.ReductionPartial(&partial, a, b, comm.Rank(), comm.Size()); err != nil {
		return nil, err
	}

	var c *matrix.Matrix
	var recv []float32
	if comm.Rank() == cluster.Root {
		m := matrix.New(n)
		c, recv = &m, m.Data
	}
	if err := comm.ReduceSum(ctx, partial.Data, recv, cluster.Root); err != nil {
		return nil, fmt.Errorf("reduce partial products: %w", err)
	}
	return c, nil
}

// Block computes A·B from operands that only root holds. a and b are read on
// root and ignored elsewhere.
func Block(ctx context.Context, comm cluster.Communicator, n int, a, b *matrix.Matrix) (*matrix.Matrix, error) {
	rank := comm.Rank()
	var local matrix.Matrix
	if rank == cluster.Root {
		if a == nil || b == nil {
			return nil, fmt.Errorf("%w: block strategy needs A and B on root", gemm.ErrDimension)
		}
		if a.N != n || b.N != n {
			return nil, fmt.Errorf("%w: operands are %d×%d and %d×%d, want %d×%d", gemm.ErrDimension, a.N, a.N, b.N, b.N, n, n)
		}
		if a.Transposed() {
			return nil, gemm.ErrOperandTransposed
		}
		local = *a
	} else {
		local = matrix.New(n)
	}
	if err := local.Validate(); err != nil {
		return nil, err
	}

	table, err := agree(ctx, comm, n, n)
	if err != nil {
		return nil, err
	}

	if err := comm.Bcast(ctx, local.Data, cluster.Root); err != nil {
		return nil, fmt.Errorf("broadcast A: %w", err)
	}

	var send []float32
	if rank == cluster.Root {
		send = b.Data
	}
	cols := make([]float32, table.Counts[rank])
	if err := comm.Scatterv(ctx, send, table.Counts, table.Displs, cols, cluster.Root); err != nil {
		return nil, fmt.Errorf("scatter B: %w", err)
	}

	block, err := gemm.BlockColumns(&local, cols)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("column block computed", "rank", rank, "cols", len(cols)/n)

	return gather(ctx, comm, n, block, table)
}

// Combined computes A·B with every rank computing its own column block via
// gemm.Combined. Like gemm.Vectorized, it consumes a: on return a holds its
// transpose on every rank.
func Combined(ctx context.Context, comm cluster.Communicator, p *gemm.Pool, a, b *matrix.Matrix) (*matrix.Matrix, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: combined strategy needs A and B on rank %d", gemm.ErrDimension, comm.Rank())
	}
	n := a.N
	table, err := agree(ctx, comm, n, n)
	if err != nil {
		return nil, err
	}

	block, err := gemm.Combined(p, a, b, comm.Rank(), comm.Size())
	if err != nil {
		return nil, err
	}
	return gather(ctx, comm, n, block.Data, table)
}

// agree builds the partition table of n items over the group and checks
// that every rank built the same one.
func agree(ctx context.Context, comm cluster.Communicator, n, scale int) (partition.Table, error) {
	table, err := partition.NewTable(n, comm.Size(), scale)
	if err != nil {
		return partition.Table{}, err
	}
	if err := comm.Agree(ctx, table.Digest()); err != nil {
		return partition.Table{}, fmt.Errorf("agree on partition: %w", err)
	}
	return table, nil
}

func gather(ctx context.Context, comm cluster.Communicator, n int, block []float32, table partition.Table) (*matrix.Matrix, error) {
	var c *matrix.Matrix
	var recv []float32
	if comm.Rank() == cluster.Root {
		m := matrix.New(n)
		c, recv = &m, m.Data
	}
	if err := comm.Gatherv(ctx, block, recv, table.Counts, table.Displs, cluster.Root); err != nil {
		return nil, fmt.Errorf("gather C: %w", err)
	}
	return c, nil
}
