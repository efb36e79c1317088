package cluster

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/pigemm/internal/logger"
)

// exchanger delivers one contribution to the hub and returns this rank's
// share of the combined result.
type exchanger interface {
	Exchange(ctx context.Context, c Contribution) ([]float32, error)
}

type localExchanger struct {
	hub *Hub
}

func (l localExchanger) Exchange(ctx context.Context, c Contribution) ([]float32, error) {
	return l.hub.Exchange(ctx, c)
}

// member implements Communicator on top of an exchanger. Each collective
// takes the next sequence number, which is how the hub lines up calls from
// different ranks.
type member struct {
	rank, size int
	ex         exchanger
	seq        atomic.Uint64
	closeOnce  sync.Once
	closed     atomic.Bool
	onClose    func() error
}

func newMember(rank, size int, ex exchanger, onClose func() error) *member {
	return &member{rank: rank, size: size, ex: ex, onClose: onClose}
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.size }

func (m *member) exchange(ctx context.Context, c Contribution) ([]float32, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	c.Seq = m.seq.Add(1)
	c.Rank = m.rank
	return m.ex.Exchange(ctx, c)
}

func (m *member) Bcast(ctx context.Context, buf []float32, root int) error {
	c := Contribution{Op: OpBcast, Root: root, Counts: []int{len(buf)}}
	if m.rank == root {
		c.Data = buf
	}
	out, err := m.exchange(ctx, c)
	if err != nil {
		return err
	}
	if m.rank != root {
		copy(buf, out)
	}
	return nil
}

func (m *member) Scatterv(ctx context.Context, send []float32, counts, displs []int, recv []float32, root int) error {
	if m.rank < len(counts) && len(recv) != counts[m.rank] {
		return fmt.Errorf("%w: rank %d receive buffer holds %d, expects %d", ErrCollectiveMismatch, m.rank, len(recv), counts[m.rank])
	}
	c := Contribution{Op: OpScatter, Root: root, Counts: counts, Displs: displs}
	if m.rank == root {
		c.Data = send
	}
	out, err := m.exchange(ctx, c)
	if err != nil {
		return err
	}
	copy(recv, out)
	return nil
}

func (m *member) Gatherv(ctx context.Context, send, recv []float32, counts, displs []int, root int) error {
	out, err := m.exchange(ctx, Contribution{Op: OpGather, Root: root, Counts: counts, Displs: displs, Data: send})
	if err != nil {
		return err
	}
	if m.rank == root {
		if len(out) > len(recv) {
			return fmt.Errorf("%w: gather needs %d values, root buffer holds %d", ErrCollectiveMismatch, len(out), len(recv))
		}
		copy(recv, out)
	}
	return nil
}

func (m *member) ReduceSum(ctx context.Context, send, recv []float32, root int) error {
	out, err := m.exchange(ctx, Contribution{Op: OpReduce, Root: root, Data: send})
	if err != nil {
		return err
	}
	if m.rank == root {
		if len(recv) != len(out) {
			return fmt.Errorf("%w: reduce produced %d values, root buffer holds %d", ErrCollectiveMismatch, len(out), len(recv))
		}
		copy(recv, out)
	}
	return nil
}

func (m *member) Agree(ctx context.Context, digest uint64) error {
	_, err := m.exchange(ctx, Contribution{Op: OpAgree, Digest: digest})
	return err
}

func (m *member) Barrier(ctx context.Context) error {
	return m.Agree(ctx, 0)
}

func (m *member) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.onClose != nil {
			err = m.onClose()
		}
	})
	return err
}

// NewLocalGroup returns size communicators sharing one in-process hub,
// indexed by rank.
func NewLocalGroup(size int, log logger.Logger) ([]Communicator, error) {
	hub, err := NewHub(size, log)
	if err != nil {
		return nil, err
	}
	comms := make([]Communicator, size)
	for r := range comms {
		if comms[r], err = hub.Member(r); err != nil {
			return nil, err
		}
	}
	return comms, nil
}

// RunLocal runs fn once per rank of a fresh in-process group, each on its
// own goroutine. The first failing rank cancels the others' context, so a
// rank blocked in a collective returns instead of waiting forever.
func RunLocal(ctx context.Context, size int, log logger.Logger, fn func(ctx context.Context, comm Communicator) error) error {
	comms, err := NewLocalGroup(size, log)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, comm := range comms {
		g.Go(func() error {
			defer comm.Close()
			if err := fn(gctx, comm); err != nil {
				return fmt.Errorf("rank %d: %w", comm.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
