package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/gemm"
	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/matrix"
)

type kernel string

const (
	kernelSequential kernel = "sequential"
	kernelThreaded   kernel = "threaded"
	kernelVectorized kernel = "vectorized"
	kernelCombined   kernel = "combined"
)

func parseKernel(s string) (kernel, error) {
	switch k := kernel(s); k {
	case kernelSequential, kernelThreaded, kernelVectorized, kernelCombined:
		return k, nil
	default:
		return "", cli.Exit(fmt.Sprintf("unknown kernel %q (want sequential, threaded, vectorized or combined)", s), 1)
	}
}

// multiply runs k on a and b and returns C. vectorized and combined leave a
// transposed.
func multiply(k kernel, p *gemm.Pool, a, b *matrix.Matrix) (*matrix.Matrix, error) {
	c := matrix.New(a.N)
	var err error
	switch k {
	case kernelSequential:
		err = gemm.Sequential(&c, a, b)
	case kernelThreaded:
		err = gemm.Threaded(p, &c, a, b)
	case kernelVectorized:
		err = gemm.Vectorized(&c, a, b)
	case kernelCombined:
		var blk gemm.Block
		if blk, err = gemm.Combined(p, a, b, 0, 1); err == nil {
			c.Data = blk.Data
		}
	default:
		err = fmt.Errorf("unknown kernel %q", k)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// verifyTolerance bounds the relative error against the sequential kernel.
const verifyTolerance = 1e-5

func runCmd() *cli.Command {
	var (
		kernelName string
		verify     bool
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Multiply two matrices in this process with one kernel",
		Flags: append(append(append(problemFlags(), poolFlags()...), outputFlags()...),
			&cli.StringFlag{
				Name:        "kernel",
				Aliases:     []string{"k"},
				Usage:       "kernel (sequential, threaded, vectorized, combined)",
				Value:       string(kernelCombined),
				Destination: &kernelName,
			},
			&cli.BoolFlag{
				Name:        "verify",
				Usage:       "check C against the sequential kernel",
				Destination: &verify,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProblemConfig(cmd, fileConfig)

			k, err := parseKernel(kernelName)
			if err != nil {
				return err
			}
			a, b, err := loadOperands(int(size))
			if err != nil {
				return err
			}
			pool := gemm.NewPool(int(threads))
			defer pool.Close()

			var want *matrix.Matrix
			if verify {
				if want, err = multiply(kernelSequential, pool, &a, &b); err != nil {
					return err
				}
			}

			start := time.Now()
			c, err := multiply(k, pool, &a, &b)
			if err != nil {
				return err
			}
			log.Info("execution time",
				"kernel", string(k),
				"n", a.N,
				"threads", pool.Size(),
				"simd", gemm.SIMD(),
				"elapsed", time.Since(start),
			)

			if want != nil {
				d := matrix.MaxRelDiff(c.Data, want.Data)
				if d > verifyTolerance {
					return cli.Exit(fmt.Sprintf("verification failed: max relative error %g", d), 1)
				}
				log.Info("verified against sequential", "max_rel_error", d)
			}
			return writeOutput(c)
		},
	}
}
