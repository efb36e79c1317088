package cluster

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/pigemm/internal/logger"
)

// Hub is the rendezvous point of one group. Contributions are grouped into
// rounds by sequence number; a round completes once all Size() ranks have
// contributed, at which point the hub computes every rank's result.
type Hub struct {
	size    int
	session string
	log     logger.Logger

	mu      sync.Mutex
	rounds  map[uint64]*round
	claimed []bool
}

type round struct {
	op      Op
	parts   []*Contribution
	arrived int
	pending int
	done    chan struct{}
	results [][]float32
	err     error
}

// NewHub creates a hub for a group of size ranks with a fresh session id.
func NewHub(size int, log logger.Logger) (*Hub, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: group size %d", ErrRankOutOfRange, size)
	}
	if log == nil {
		log = logger.Default()
	}
	session := uuid.NewString()
	return &Hub{
		size:    size,
		session: session,
		log:     log.With("session", session, "size", size),
		rounds:  make(map[uint64]*round),
		claimed: make([]bool, size),
	}, nil
}

// Size returns the number of ranks in the group.
func (h *Hub) Size() int {
	return h.size
}

// Session identifies this hub instance. Remote ranks echo it on every
// exchange so requests aimed at a previous coordinator are rejected.
func (h *Hub) Session() string {
	return h.session
}

// Claim reserves rank for one participant.
func (h *Hub) Claim(rank int) error {
	if rank < 0 || rank >= h.size {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrRankOutOfRange, rank, h.size)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed[rank] {
		return fmt.Errorf("%w: %d", ErrRankTaken, rank)
	}
	h.claimed[rank] = true
	return nil
}

// Joined returns how many ranks have claimed their slot.
func (h *Hub) Joined() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ok := range h.claimed {
		if ok {
			n++
		}
	}
	return n
}

// Member claims rank and returns a communicator that exchanges with the hub
// directly, for ranks living in the hub's process.
func (h *Hub) Member(rank int) (Communicator, error) {
	if err := h.Claim(rank); err != nil {
		return nil, err
	}
	return newMember(rank, h.size, localExchanger{hub: h}, nil), nil
}

// Exchange submits c and blocks until its round completes or ctx is done.
// The returned slice is owned by the caller's rank and never aliases another
// rank's input.
func (h *Hub) Exchange(ctx context.Context, c Contribution) ([]float32, error) {
	if c.Rank < 0 || c.Rank >= h.size {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRankOutOfRange, c.Rank, h.size)
	}

	h.mu.Lock()
	r, ok := h.rounds[c.Seq]
	if !ok {
		r = &round{
			op:      c.Op,
			parts:   make([]*Contribution, h.size),
			pending: h.size,
			done:    make(chan struct{}),
		}
		h.rounds[c.Seq] = r
	}
	if r.parts[c.Rank] != nil {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: rank %d contributed twice to round %d", ErrCollectiveMismatch, c.Rank, c.Seq)
	}
	r.parts[c.Rank] = &c
	r.arrived++
	if r.arrived == h.size {
		r.results, r.err = combine(h.size, r.parts)
		if r.err != nil {
			h.log.Warn("collective failed", "seq", c.Seq, "op", r.op, "error", r.err)
		} else {
			h.log.Debug("collective complete", "seq", c.Seq, "op", r.op)
		}
		// Inputs may alias caller memory; drop them now that results are
		// materialised.
		clear(r.parts)
		close(r.done)
	}
	h.mu.Unlock()

	var ctxErr error
	select {
	case <-r.done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}

	// Every contributor releases the round on the way out, including those
	// that gave up; pending only reaches zero after the round completed.
	h.mu.Lock()
	r.pending--
	if r.pending == 0 {
		delete(h.rounds, c.Seq)
	}
	h.mu.Unlock()

	if ctxErr != nil {
		return nil, ctxErr
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.results[c.Rank], nil
}

// combine validates a complete round and builds each rank's result.
func combine(size int, parts []*Contribution) ([][]float32, error) {
	first := parts[0]
	for _, p := range parts[1:] {
		if p.Op != first.Op {
			return nil, fmt.Errorf("%w: rank %d called %v, rank %d called %v", ErrCollectiveMismatch, first.Rank, first.Op, p.Rank, p.Op)
		}
		if p.Root != first.Root {
			return nil, fmt.Errorf("%w: %v with roots %d and %d", ErrCollectiveMismatch, p.Op, first.Root, p.Root)
		}
	}
	root := first.Root
	if first.Op != OpAgree && (root < 0 || root >= size) {
		return nil, fmt.Errorf("%w: root %d not in [0, %d)", ErrRankOutOfRange, root, size)
	}

	results := make([][]float32, size)
	switch first.Op {
	case OpAgree:
		for _, p := range parts[1:] {
			if p.Digest != first.Digest {
				return nil, fmt.Errorf("%w: rank %d has %#x, rank %d has %#x", ErrPartitionMismatch, first.Rank, first.Digest, p.Rank, p.Digest)
			}
		}

	case OpBcast:
		src := parts[root].Data
		for _, p := range parts {
			if len(p.Counts) != 1 || p.Counts[0] != len(src) {
				return nil, fmt.Errorf("%w: rank %d expects %v values, root sent %d", ErrCollectiveMismatch, p.Rank, p.Counts, len(src))
			}
		}
		shared := slices.Clone(src)
		for r := range results {
			if r != root {
				results[r] = shared
			}
		}

	case OpScatter:
		counts, displs, err := sharedTable(parts, root)
		if err != nil {
			return nil, err
		}
		src := slices.Clone(parts[root].Data)
		for r := range results {
			end := displs[r] + counts[r]
			if displs[r] < 0 || counts[r] < 0 || end > len(src) {
				return nil, fmt.Errorf("%w: block %d [%d, %d) outside %d values", ErrCollectiveMismatch, r, displs[r], end, len(src))
			}
			results[r] = src[displs[r]:end:end]
		}

	case OpGather:
		counts, displs, err := sharedTable(parts, root)
		if err != nil {
			return nil, err
		}
		total := 0
		for r, p := range parts {
			if len(p.Data) != counts[r] || displs[r] < 0 {
				return nil, fmt.Errorf("%w: rank %d sent %d values, table says %d", ErrCollectiveMismatch, r, len(p.Data), counts[r])
			}
			total = max(total, displs[r]+counts[r])
		}
		dst := make([]float32, total)
		for r, p := range parts {
			copy(dst[displs[r]:], p.Data)
		}
		results[root] = dst

	case OpReduce:
		n := len(parts[0].Data)
		for _, p := range parts[1:] {
			if len(p.Data) != n {
				return nil, fmt.Errorf("%w: rank %d sent %d values, rank %d sent %d", ErrCollectiveMismatch, p.Rank, len(p.Data), first.Rank, n)
			}
		}
		sum := make([]float32, n)
		for _, p := range parts {
			for i, v := range p.Data {
				sum[i] += v
			}
		}
		results[root] = sum

	default:
		return nil, fmt.Errorf("%w: unknown op %v", ErrCollectiveMismatch, first.Op)
	}
	return results, nil
}

// sharedTable returns root's counts/displs after checking that every rank
// computed the same table.
func sharedTable(parts []*Contribution, root int) ([]int, []int, error) {
	counts := parts[root].Counts
	displs := parts[root].Displs
	if len(counts) != len(parts) || len(displs) != len(parts) {
		return nil, nil, fmt.Errorf("%w: table has %d counts and %d displacements for %d ranks", ErrPartitionMismatch, len(counts), len(displs), len(parts))
	}
	for _, p := range parts {
		if !slices.Equal(p.Counts, counts) || !slices.Equal(p.Displs, displs) {
			return nil, nil, fmt.Errorf("%w: rank %d table differs from root", ErrPartitionMismatch, p.Rank)
		}
	}
	return counts, displs, nil
}
