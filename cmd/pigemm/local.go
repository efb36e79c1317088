package main

import (
	"context"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/cluster"
	"github.com/samcharles93/pigemm/internal/dist"
	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/matrix"
)

func localCmd() *cli.Command {
	var (
		strategyName string
		procs        int64
	)

	return &cli.Command{
		Name:  "local",
		Usage: "Run a distributed strategy on an in-process group of ranks",
		Flags: append(append(append(problemFlags(), poolFlags()...), outputFlags()...),
			strategyFlag(&strategyName),
			&cli.Int64Flag{
				Name:        "procs",
				Aliases:     []string{"np"},
				Usage:       "number of ranks",
				Value:       4,
				Destination: &procs,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProblemConfig(cmd, fileConfig)
			applyClusterConfig(cmd, fileConfig, &strategyName, &procs, nil, nil)

			s, err := dist.ParseStrategy(strategyName)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			var (
				mu sync.Mutex
				c  *matrix.Matrix
			)
			err = cluster.RunLocal(ctx, int(procs), log, func(ctx context.Context, comm cluster.Communicator) error {
				out, err := runRank(ctx, s, comm, int(size))
				if err != nil {
					return err
				}
				if out != nil {
					mu.Lock()
					c = out
					mu.Unlock()
				}
				return nil
			})
			if err != nil {
				return err
			}
			return writeOutput(c)
		},
	}
}
