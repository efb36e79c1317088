package main

import "github.com/urfave/cli/v3"

var (
	logLevel   string
	logFormat  string
	debug      bool
	configFile string
	noSIMD     bool

	size     int64
	seed     int64
	initMode string
	aPath    string
	bPath    string

	threads int64

	dump     bool
	dumpPath string
	outPath  string
	order    string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (default ~/.config/pigemm/config.yaml)",
			Destination: &configFile,
		},
		&cli.BoolFlag{
			Name:        "no-simd",
			Usage:       "use the scalar lane emulation even if FMA is available",
			Sources:     cli.EnvVars("PIGEMM_NO_SIMD"),
			Destination: &noSIMD,
		},
	}
}

func problemFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "size",
			Aliases:     []string{"n"},
			Usage:       "matrix dimension N (multiple of 4)",
			Value:       1024,
			Destination: &size,
		},
		&cli.StringFlag{
			Name:        "init",
			Usage:       "operand initialisation when no files are given (rand, mod)",
			Value:       "rand",
			Destination: &initMode,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for --init=rand; B uses seed+1",
			Value:       1,
			Destination: &seed,
		},
		&cli.StringFlag{
			Name:        "a",
			Usage:       "read A from a matrix file instead of generating it",
			Destination: &aPath,
		},
		&cli.StringFlag{
			Name:        "b",
			Usage:       "read B from a matrix file instead of generating it",
			Destination: &bPath,
		},
	}
}

func poolFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "threads",
			Aliases:     []string{"t"},
			Usage:       "worker goroutines per rank (0 = GOMAXPROCS)",
			Destination: &threads,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "dump",
			Usage:       "print C to stdout",
			Destination: &dump,
		},
		&cli.StringFlag{
			Name:        "dump-file",
			Usage:       "write C as text to this file",
			Destination: &dumpPath,
		},
		&cli.StringFlag{
			Name:        "order",
			Usage:       "text dump order: c (one line per column) or r (one line per row)",
			Value:       "c",
			Destination: &order,
		},
		&cli.StringFlag{
			Name:        "out",
			Usage:       "write C as a binary matrix file",
			Destination: &outPath,
		},
	}
}

func strategyFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "strategy",
		Aliases:     []string{"s"},
		Usage:       "distributed strategy (reduction, block, combined)",
		Value:       "block",
		Destination: dst,
	}
}
