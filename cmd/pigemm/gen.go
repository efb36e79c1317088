package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/logger"
	"github.com/samcharles93/pigemm/internal/matfile"
)

func genCmd() *cli.Command {
	return &cli.Command{
		Name:      "gen",
		Usage:     "Write operand matrices A and B as binary matrix files",
		ArgsUsage: "<a-file> <b-file>",
		Flags:     problemFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProblemConfig(cmd, fileConfig)
			if cmd.NArg() != 2 {
				return cli.Exit("gen needs two output paths: <a-file> <b-file>", 1)
			}
			aOut, bOut := cmd.Args().Get(0), cmd.Args().Get(1)

			// gen always synthesises; --a/--b would make it a copy.
			aPath, bPath = "", ""
			a, b, err := loadOperands(int(size))
			if err != nil {
				return err
			}
			if err := matfile.Write(aOut, &a); err != nil {
				return fmt.Errorf("write A: %w", err)
			}
			if err := matfile.Write(bOut, &b); err != nil {
				return fmt.Errorf("write B: %w", err)
			}
			log.Info("operands written", "a", aOut, "b", bOut, "n", a.N, "init", initMode, "seed", seed)
			return nil
		},
	}
}
