package main

import (
	"context"
	"time"

	"github.com/samcharles93/pigemm/internal/cluster"
	"github.com/samcharles93/pigemm/internal/dist"
	"github.com/samcharles93/pigemm/internal/gemm"
	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/matrix"
)

// runRank is one rank's share of a distributed multiply. Root returns C;
// every other rank returns nil.
func runRank(ctx context.Context, s dist.Strategy, comm cluster.Communicator, n int) (*matrix.Matrix, error) {
	log := logger.ForRank(logger.FromContext(ctx), comm.Rank(), comm.Size())
	ctx = logger.WithContext(ctx, log)

	var a, b *matrix.Matrix
	if !s.RootOnly() || comm.Rank() == cluster.Root {
		am, bm, err := loadOperands(n)
		if err != nil {
			return nil, err
		}
		a, b = &am, &bm
		n = am.N
	}

	pool := gemm.NewPool(int(threads))
	defer pool.Close()

	start := time.Now()
	c, err := dist.Run(ctx, s, comm, pool, n, a, b)
	if err != nil {
		return nil, err
	}
	log.Info("execution time", "strategy", s.String(), "n", n, "threads", pool.Size(), "elapsed", time.Since(start))
	return c, nil
}
