package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/cluster"
	"github.com/samcharles93/pigemm/internal/dist"
	"github.com/samcharles93/pigemm/internal/logger"
)

func joinCmd() *cli.Command {
	var (
		coordinator  string
		rank         int64
		retry        time.Duration
		strategyName string
	)

	return &cli.Command{
		Name:  "join",
		Usage: "Join a coordinator's group as a worker rank",
		Flags: append(append(problemFlags(), poolFlags()...),
			strategyFlag(&strategyName),
			&cli.StringFlag{
				Name:        "coordinator",
				Usage:       "coordinator base URL",
				Value:       "http://127.0.0.1:7070",
				Destination: &coordinator,
			},
			&cli.Int64Flag{
				Name:        "rank",
				Aliases:     []string{"r"},
				Usage:       "this worker's rank (1 .. procs-1)",
				Required:    true,
				Destination: &rank,
			},
			&cli.DurationFlag{
				Name:        "retry",
				Usage:       "interval between join attempts while the coordinator is down",
				Value:       500 * time.Millisecond,
				Destination: &retry,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProblemConfig(cmd, fileConfig)
			applyClusterConfig(cmd, fileConfig, &strategyName, nil, nil, &coordinator)

			s, err := dist.ParseStrategy(strategyName)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			comm, err := cluster.Dial(ctx, coordinator, int(rank), cluster.DialOptions{
				RetryInterval: retry,
				Log:           log,
			})
			if err != nil {
				return err
			}
			defer comm.Close()

			_, err = runRank(ctx, s, comm, int(size))
			return err
		},
	}
}
