package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/gemm"
	"github.com/samcharles93/pigemm/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:   "pigemm",
		Usage:  "Square float32 matrix multiply over threads, SIMD lanes and cluster ranks",
		Flags:  loggingFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			localCmd(),
			serveCmd(),
			joinCmd(),
			genCmd(),
			partitionCmd(),
			featuresCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file, then builds the logger every command pulls
// from its context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, err
	}
	if debug {
		level = slog.LevelDebug
	}
	log, err := newLogger(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, err
	}
	if noSIMD {
		gemm.DisableSIMD()
	}
	return logger.WithContext(ctx, log), nil
}

func newLogger(format string, w *os.File, level slog.Level) (logger.Logger, error) {
	if format == logger.FormatPretty && !isTTY(w) {
		return logger.New(logger.NewPrettyHandler(w, &logger.PrettyOptions{
			HandlerOptions: slog.HandlerOptions{Level: level},
			NoColor:        true,
		})), nil
	}
	return logger.Open(format, w, level)
}

func isTTY(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
