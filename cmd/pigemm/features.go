package main

import (
	"context"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/hwinfo"
)

func featuresCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "features",
		Usage: "Report CPU features and which vector kernel is active",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the report as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r := hwinfo.Detect()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			return hwinfo.Fprint(os.Stdout, r)
		},
	}
}
