package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pigemm/internal/matfile"
	"github.com/samcharles93/pigemm/internal/matrix"
)

// Upper bounds for --init=rand and moduli for --init=mod, for A and B.
const (
	aScale = 8
	bScale = 5
)

// loadOperands returns A and B from --a/--b, or generated from --init. Files
// take precedence over --size.
func loadOperands(n int) (matrix.Matrix, matrix.Matrix, error) {
	a, err := loadOperand(aPath, n, seed, aScale)
	if err != nil {
		return matrix.Matrix{}, matrix.Matrix{}, fmt.Errorf("operand A: %w", err)
	}
	b, err := loadOperand(bPath, n, seed+1, bScale)
	if err != nil {
		return matrix.Matrix{}, matrix.Matrix{}, fmt.Errorf("operand B: %w", err)
	}
	if a.N != b.N {
		return matrix.Matrix{}, matrix.Matrix{}, fmt.Errorf("%w: A is %d×%d, B is %d×%d", matrix.ErrDimension, a.N, a.N, b.N, b.N)
	}
	return a, b, nil
}

func loadOperand(path string, n int, seed int64, scale int) (matrix.Matrix, error) {
	if path != "" {
		return matfile.Open(path)
	}
	if n <= 0 {
		return matrix.Matrix{}, fmt.Errorf("%w: --size %d", matrix.ErrDimension, n)
	}
	m := matrix.New(n)
	if err := m.Validate(); err != nil {
		return matrix.Matrix{}, err
	}
	switch initMode {
	case "rand":
		matrix.FillRand(&m, seed, float32(scale))
	case "mod":
		matrix.FillMod(&m, scale)
	default:
		return matrix.Matrix{}, cli.Exit(fmt.Sprintf("unknown --init %q (want rand or mod)", initMode), 1)
	}
	return m, nil
}

// writeOutput emits C according to --dump, --dump-file and --out.
func writeOutput(c *matrix.Matrix) error {
	ord, err := matrix.ParseOrder(order)
	if err != nil {
		return err
	}
	if dump {
		if err := matrix.Print(c, ord); err != nil {
			return err
		}
	}
	if dumpPath != "" {
		if err := matrix.WriteFile(dumpPath, c.Data, c.N, c.N, ord); err != nil {
			return err
		}
	}
	if outPath != "" {
		if err := matfile.Write(outPath, c); err != nil {
			return err
		}
	}
	return nil
}
