// Package partition splits one matrix dimension into contiguous blocks, one
// per worker.
//
// Block boundaries come from floor division only: worker id owns
// [id*L/W, (id+1)*L/W). The L mod W leftover lands on whichever workers the
// division favours, never on an explicitly chosen one. Scatter, gather and
// reduce tables are derived from these exact sizes, so every participant has
// to compute them from the same (L, W).
package partition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
)

var ErrInvalidPartition = errors.New("invalid partition")

// Range is a half-open index range [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Start returns the first index owned by worker id.
func Start(l, id, w int) int {
	return (id * l) / w
}

// End returns one past the last index owned by worker id.
func End(l, id, w int) int {
	return ((id + 1) * l) / w
}

// Of returns the block of worker id out of w workers over a dimension of
// length l.
func Of(l, id, w int) (Range, error) {
	if err := validate(l, w); err != nil {
		return Range{}, err
	}
	if id < 0 || id >= w {
		return Range{}, fmt.Errorf("%w: worker %d outside [0, %d)", ErrInvalidPartition, id, w)
	}
	return Range{Start: Start(l, id, w), End: End(l, id, w)}, nil
}

// Blocks returns every worker's block, ordered by worker id.
func Blocks(l, w int) ([]Range, error) {
	if err := validate(l, w); err != nil {
		return nil, err
	}
	out := make([]Range, w)
	for id := range w {
		out[id] = Range{Start: Start(l, id, w), End: End(l, id, w)}
	}
	return out, nil
}

func validate(l, w int) error {
	if l < 0 {
		return fmt.Errorf("%w: negative length %d", ErrInvalidPartition, l)
	}
	if w < 1 {
		return fmt.Errorf("%w: need at least one worker, got %d", ErrInvalidPartition, w)
	}
	return nil
}

// Table holds per-worker element counts and displacements for collectives
// that move whole blocks. Scale is the number of elements per partitioned
// index, e.g. N for column blocks of an N×N column-major matrix.
type Table struct {
	L      int
	W      int
	Scale  int
	Counts []int
	Displs []int
}

// NewTable builds the count/displacement table for l indices over w workers.
func NewTable(l, w, scale int) (Table, error) {
	if scale < 1 {
		return Table{}, fmt.Errorf("%w: scale must be positive, got %d", ErrInvalidPartition, scale)
	}
	blocks, err := Blocks(l, w)
	if err != nil {
		return Table{}, err
	}
	t := Table{
		L:      l,
		W:      w,
		Scale:  scale,
		Counts: make([]int, w),
		Displs: make([]int, w),
	}
	off := 0
	for id, b := range blocks {
		t.Counts[id] = b.Len() * scale
		t.Displs[id] = off
		off += t.Counts[id]
	}
	return t, nil
}

// Total returns the number of elements covered by the table.
func (t Table) Total() int {
	return t.L * t.Scale
}

// Digest fingerprints the table. Two workers with equal digests computed
// identical block layouts.
func (t Table) Digest() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = h.Write(buf[:])
	}
	put(t.L)
	put(t.W)
	put(t.Scale)
	for i := range t.Counts {
		put(t.Counts[i])
		put(t.Displs[i])
	}
	return h.Sum64()
}
