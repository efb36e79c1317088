package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/pigemm/internal/cluster"
	"github.com/samcharles93/pigemm/internal/dist"
	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/matrix"
)

func serveCmd() *cli.Command {
	var (
		addr         string
		readTimeout  time.Duration
		strategyName string
		procs        int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Coordinate a group as rank 0, serving the collective hub over HTTP",
		Flags: append(append(append(problemFlags(), poolFlags()...), outputFlags()...),
			strategyFlag(&strategyName),
			&cli.Int64Flag{
				Name:        "procs",
				Aliases:     []string{"np"},
				Usage:       "group size, including this rank",
				Value:       4,
				Destination: &procs,
			},
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "0.0.0.0:7070",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProblemConfig(cmd, fileConfig)
			applyClusterConfig(cmd, fileConfig, &strategyName, &procs, &addr, nil)

			s, err := dist.ParseStrategy(strategyName)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			hub, err := cluster.NewHub(int(procs), log)
			if err != nil {
				return err
			}
			comm, err := hub.Member(cluster.Root)
			if err != nil {
				return err
			}
			defer comm.Close()

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			cluster.NewServer(hub, log).Register(e)

			// The server outlives the computation only until C is gathered.
			srvCtx, stopServer := context.WithCancel(ctx)
			defer stopServer()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("coordinator listening", "address", addr, "session", hub.Session(), "size", hub.Size(), "strategy", s.String())
				sc := echo.StartConfig{
					Address: addr,
					BeforeServeFunc: func(srv *http.Server) error {
						srv.ReadHeaderTimeout = readTimeout
						return nil
					},
				}
				if err := sc.Start(srvCtx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			var c *matrix.Matrix
			g.Go(func() error {
				defer stopServer()
				out, err := runRank(gctx, s, comm, int(size))
				if err != nil {
					return err
				}
				c = out
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}
			return writeOutput(c)
		},
	}
}
