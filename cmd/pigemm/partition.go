package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/partition"
)

func partitionCmd() *cli.Command {
	var (
		length  int64
		workers int64
		scale   int64
	)

	return &cli.Command{
		Name:  "partition",
		Usage: "Print the block table that splits L items over W workers",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "length",
				Aliases:     []string{"l"},
				Usage:       "number of items (L)",
				Value:       1024,
				Destination: &length,
			},
			&cli.Int64Flag{
				Name:        "workers",
				Aliases:     []string{"w"},
				Usage:       "number of workers (W)",
				Value:       4,
				Destination: &workers,
			},
			&cli.Int64Flag{
				Name:        "scale",
				Usage:       "elements per item for counts/displacements, e.g. N for column blocks",
				Value:       1,
				Destination: &scale,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			t, err := partition.NewTable(int(length), int(workers), int(scale))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return printTable(os.Stdout, t)
		},
	}
}

func printTable(w io.Writer, t partition.Table) error {
	blocks, err := partition.Blocks(t.L, t.W)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "id\tstart\tend\tlen\tcount\tdispl\t")
	for id, b := range blocks {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t\n", id, b.Start, b.End, b.Len(), t.Counts[id], t.Displs[id])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "digest %016x\n", t.Digest())
	return err
}
