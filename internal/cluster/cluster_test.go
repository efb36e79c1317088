package cluster

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/samcharles93/pigemm/internal/logger"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func seq(n int, base float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = base + float32(i)
	}
	return out
}

func TestLocalBcast(t *testing.T) {
	t.Parallel()

	src := seq(16, 1)
	err := RunLocal(testContext(t), 4, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		buf := make([]float32, len(src))
		if comm.Rank() == Root {
			copy(buf, src)
		}
		if err := comm.Bcast(ctx, buf, Root); err != nil {
			return err
		}
		if !slices.Equal(buf, src) {
			t.Errorf("rank %d: got %v", comm.Rank(), buf)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLocalScatterGather(t *testing.T) {
	t.Parallel()

	counts := []int{2, 3, 2}
	displs := []int{0, 2, 5}
	src := seq(7, 10)
	gathered := make([]float32, 7)

	err := RunLocal(testContext(t), 3, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		r := comm.Rank()
		recv := make([]float32, counts[r])
		var send []float32
		if r == Root {
			send = src
		}
		if err := comm.Scatterv(ctx, send, counts, displs, recv, Root); err != nil {
			return err
		}
		if want := src[displs[r] : displs[r]+counts[r]]; !slices.Equal(recv, want) {
			t.Errorf("rank %d: scattered %v, want %v", r, recv, want)
		}
		for i := range recv {
			recv[i] *= 2
		}
		var dst []float32
		if r == Root {
			dst = gathered
		}
		return comm.Gatherv(ctx, recv, dst, counts, displs, Root)
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range gathered {
		if v != 2*src[i] {
			t.Fatalf("gathered[%d] = %v, want %v", i, v, 2*src[i])
		}
	}
}

func TestLocalReduceSum(t *testing.T) {
	t.Parallel()

	sum := make([]float32, 5)
	err := RunLocal(testContext(t), 4, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		send := seq(5, float32(comm.Rank()*100))
		var recv []float32
		if comm.Rank() == Root {
			recv = sum
		}
		return comm.ReduceSum(ctx, send, recv, Root)
	})
	if err != nil {
		t.Fatal(err)
	}
	// ranks contribute base 0, 100, 200, 300 plus the index
	for i, v := range sum {
		if want := float32(600 + 4*i); v != want {
			t.Fatalf("sum[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestRootBufferNotAliased(t *testing.T) {
	t.Parallel()

	comms, err := NewLocalGroup(2, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ctx := testContext(t)
	src := seq(4, 1)
	recv := make([]float32, 4)
	done := make(chan error, 1)
	go func() { done <- comms[0].Bcast(ctx, src, Root) }()
	if err := comms[1].Bcast(ctx, recv, Root); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	src[0] = -1
	if recv[0] != 1 {
		t.Fatalf("receiver observed root's later write: %v", recv)
	}
}

func TestAgreeDetectsPartitionMismatch(t *testing.T) {
	t.Parallel()

	err := RunLocal(testContext(t), 3, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		digest := uint64(42)
		if comm.Rank() == 2 {
			digest = 43
		}
		return comm.Agree(ctx, digest)
	})
	if !errors.Is(err, ErrPartitionMismatch) {
		t.Fatalf("expected ErrPartitionMismatch, got %v", err)
	}
}

func TestScatterTableMismatch(t *testing.T) {
	t.Parallel()

	err := RunLocal(testContext(t), 2, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		counts, displs := []int{2, 2}, []int{0, 2}
		if comm.Rank() == 1 {
			counts, displs = []int{1, 3}, []int{0, 1}
		}
		recv := make([]float32, counts[comm.Rank()])
		return comm.Scatterv(ctx, seq(4, 0), counts, displs, recv, Root)
	})
	if !errors.Is(err, ErrPartitionMismatch) {
		t.Fatalf("expected ErrPartitionMismatch, got %v", err)
	}
}

func TestCollectiveOrderMismatch(t *testing.T) {
	t.Parallel()

	err := RunLocal(testContext(t), 2, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		if comm.Rank() == 0 {
			return comm.Barrier(ctx)
		}
		buf := make([]float32, 2)
		return comm.Bcast(ctx, buf, Root)
	})
	if !errors.Is(err, ErrCollectiveMismatch) {
		t.Fatalf("expected ErrCollectiveMismatch, got %v", err)
	}
}

func TestFailingRankUnblocksOthers(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := RunLocal(testContext(t), 3, logger.Discard(), func(ctx context.Context, comm Communicator) error {
		if comm.Rank() == 1 {
			return boom
		}
		return comm.Barrier(ctx)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rank failure, got %v", err)
	}
}

func TestHubClaim(t *testing.T) {
	t.Parallel()

	hub, err := NewHub(2, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := hub.Claim(1); err != nil {
		t.Fatal(err)
	}
	if err := hub.Claim(1); !errors.Is(err, ErrRankTaken) {
		t.Fatalf("expected ErrRankTaken, got %v", err)
	}
	if err := hub.Claim(2); !errors.Is(err, ErrRankOutOfRange) {
		t.Fatalf("expected ErrRankOutOfRange, got %v", err)
	}
	if _, err := NewHub(0, nil); !errors.Is(err, ErrRankOutOfRange) {
		t.Fatalf("expected ErrRankOutOfRange for empty group, got %v", err)
	}
}

func heldRounds(h *Hub) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rounds)
}

func TestAbandonedRoundIsReleased(t *testing.T) {
	t.Parallel()

	hub, err := NewHub(2, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = hub.Exchange(ctx, Contribution{Op: OpAgree, Seq: 1, Rank: 0, Digest: 7})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if got := heldRounds(hub); got != 1 {
		t.Fatalf("incomplete round dropped early: %d rounds held", got)
	}

	if _, err := hub.Exchange(testContext(t), Contribution{Op: OpAgree, Seq: 1, Rank: 1, Digest: 7}); err != nil {
		t.Fatal(err)
	}
	if got := heldRounds(hub); got != 0 {
		t.Fatalf("completed round still held: %d rounds", got)
	}
}

func TestClosedCommunicator(t *testing.T) {
	t.Parallel()

	comms, err := NewLocalGroup(1, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := comms[0].Barrier(testContext(t)); err != nil {
		t.Fatal(err)
	}
	comms[0].Close()
	if err := comms[0].Barrier(testContext(t)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := &Contribution{Op: OpScatter, Seq: 7, Rank: 2, Counts: []int{1, 2}, Displs: []int{0, 1}}
	payload := []float32{1.5, -2, 0, 3.25}
	if err := writeFrame(&buf, frameHeader{Session: "s", Contribution: c}, payload); err != nil {
		t.Fatal(err)
	}
	h, data, err := readFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.Session != "s" || h.Values != 4 || h.Contribution == nil || h.Contribution.Seq != 7 || h.Contribution.Op != OpScatter {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !slices.Equal(data, payload) {
		t.Fatalf("payload %v, want %v", data, payload)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := writeFrame(&buf, frameHeader{}, []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	short := buf.Bytes()[:buf.Len()-2]
	if _, _, err := readFrame(bytes.NewReader(short)); !errors.Is(err, errBadFrame) {
		t.Fatalf("expected errBadFrame, got %v", err)
	}
	if _, _, err := readFrame(bytes.NewReader([]byte{0, 0, 0, 0})); !errors.Is(err, errBadFrame) {
		t.Fatalf("expected errBadFrame for empty header, got %v", err)
	}
}

func rawFrame(header string, payload []byte) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(header)))
	out = append(out, header...)
	return append(out, payload...)
}

func TestReadFrameOversizedValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
	}{
		{name: "huge", header: `{"values":4611686018427387904}`},
		{name: "above bound", header: fmt.Sprintf(`{"values":%d}`, maxPayloadValues+1)},
		{name: "negative", header: `{"values":-1}`},
		{name: "short body", header: fmt.Sprintf(`{"values":%d}`, maxPayloadValues)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := rawFrame(tt.header, make([]byte, 4*3))
			if _, _, err := readFrame(bytes.NewReader(frame)); !errors.Is(err, errBadFrame) {
				t.Fatalf("expected errBadFrame, got %v", err)
			}
		})
	}
}

func TestReadFrameMultiChunkPayload(t *testing.T) {
	t.Parallel()

	payload := make([]float32, 2*payloadChunk+3)
	for i := range payload {
		payload[i] = float32(i) - 0.5
	}
	var buf bytes.Buffer
	if err := writeFrame(&buf, frameHeader{}, payload); err != nil {
		t.Fatal(err)
	}
	_, data, err := readFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(data, payload) {
		t.Fatalf("payload mismatch over %d values", len(payload))
	}
}

func TestErrorCodeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, base := range []error{ErrPartitionMismatch, ErrCollectiveMismatch, ErrRankOutOfRange, ErrRankTaken, ErrSessionMismatch} {
		err := errorFromCode(errorCode(base), "remote: "+base.Error())
		if !errors.Is(err, base) {
			t.Fatalf("%v did not survive the wire: %v", base, err)
		}
	}
}
