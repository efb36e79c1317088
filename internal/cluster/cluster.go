// Package cluster is the message-passing layer used by the distributed
// strategies. A fixed group of Size() ranks exchanges float32 buffers
// through blocking collectives; every rank has to call the same collectives
// in the same order, and a collective returns only once every rank of the
// group has reached it.
//
// All collectives are routed through a Hub. Ranks in the hub's process talk
// to it directly; remote ranks reach it over HTTP (see Server and Dial).
package cluster

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPartitionMismatch means ranks disagree on a partition table.
	ErrPartitionMismatch = errors.New("partition tables differ across ranks")
	// ErrCollectiveMismatch means ranks called different collectives, used
	// different roots or passed buffers of inconsistent size.
	ErrCollectiveMismatch = errors.New("collective mismatch across ranks")
	ErrRankOutOfRange     = errors.New("rank out of range")
	ErrRankTaken          = errors.New("rank already joined")
	ErrSessionMismatch    = errors.New("session mismatch")
	ErrClosed             = errors.New("communicator closed")
)

// Root is the rank that owns the full matrices and collects results.
const Root = 0

// Communicator is one rank's handle on its group.
type Communicator interface {
	Rank() int
	Size() int

	// Bcast copies root's buf into buf on every other rank. All ranks pass
	// buffers of the same length.
	Bcast(ctx context.Context, buf []float32, root int) error
	// Scatterv sends send[displs[r]:displs[r]+counts[r]] from root to rank r.
	// send is only read on root; recv must hold exactly counts[Rank()].
	Scatterv(ctx context.Context, send []float32, counts, displs []int, recv []float32, root int) error
	// Gatherv places every rank's send at recv[displs[r]:] on root. recv is
	// only written on root.
	Gatherv(ctx context.Context, send, recv []float32, counts, displs []int, root int) error
	// ReduceSum writes the element-wise sum of every rank's send into recv on
	// root.
	ReduceSum(ctx context.Context, send, recv []float32, root int) error
	// Agree fails with ErrPartitionMismatch on every rank unless all ranks
	// passed the same digest.
	Agree(ctx context.Context, digest uint64) error
	// Barrier returns once every rank has called it.
	Barrier(ctx context.Context) error

	Close() error
}

// Op identifies a collective.
type Op uint8

const (
	OpBcast Op = iota + 1
	OpScatter
	OpGather
	OpReduce
	OpAgree
)

func (o Op) String() string {
	switch o {
	case OpBcast:
		return "bcast"
	case OpScatter:
		return "scatterv"
	case OpGather:
		return "gatherv"
	case OpReduce:
		return "reduce"
	case OpAgree:
		return "agree"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Contribution is one rank's input to the Seq-th collective of its group.
// Data travels outside the JSON header.
type Contribution struct {
	Op     Op        `json:"op"`
	Seq    uint64    `json:"seq"`
	Rank   int       `json:"rank"`
	Root   int       `json:"root"`
	Counts []int     `json:"counts,omitempty"`
	Displs []int     `json:"displs,omitempty"`
	Digest uint64    `json:"digest,omitempty"`
	Data   []float32 `json:"-"`
}

// errorCode maps the package sentinels onto stable strings for the wire.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrPartitionMismatch):
		return "partition_mismatch"
	case errors.Is(err, ErrCollectiveMismatch):
		return "collective_mismatch"
	case errors.Is(err, ErrRankOutOfRange):
		return "rank_out_of_range"
	case errors.Is(err, ErrRankTaken):
		return "rank_taken"
	case errors.Is(err, ErrSessionMismatch):
		return "session_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// errorFromCode rebuilds an error received over the wire so errors.Is works
// on the client side.
func errorFromCode(code, msg string) error {
	var base error
	switch code {
	case "partition_mismatch":
		base = ErrPartitionMismatch
	case "collective_mismatch":
		base = ErrCollectiveMismatch
	case "rank_out_of_range":
		base = ErrRankOutOfRange
	case "rank_taken":
		base = ErrRankTaken
	case "session_mismatch":
		base = ErrSessionMismatch
	case "cancelled":
		base = context.Canceled
	default:
		return errors.New(msg)
	}
	if msg == "" || msg == base.Error() {
		return base
	}
	return remoteError{base: base, msg: msg}
}

type remoteError struct {
	base error
	msg  string
}

func (e remoteError) Error() string { return e.msg }
func (e remoteError) Unwrap() error { return e.base }
