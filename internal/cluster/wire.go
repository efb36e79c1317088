package cluster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"
)

// FrameContentType labels exchange request and response bodies.
const FrameContentType = "application/x-pigemm-frame"

// maxHeaderLen bounds the JSON header so a corrupt length prefix cannot
// trigger a huge allocation.
const maxHeaderLen = 1 << 20

// maxPayloadValues bounds the payload of one frame: a full 16384×16384
// operand. Larger counts are rejected before anything is allocated.
const maxPayloadValues = 1 << 28

// payloadChunk is how many values readFrame reads per step, so a short body
// fails before memory for the advertised count is committed.
const payloadChunk = 1 << 14

var errBadFrame = errors.New("malformed frame")

// frameHeader precedes the float32 payload of every frame. Values is the
// number of payload elements that follow.
type frameHeader struct {
	Session      string        `json:"session,omitempty"`
	Contribution *Contribution `json:"contribution,omitempty"`
	Values       int           `json:"values"`
	Error        string        `json:"error,omitempty"`
	Code         string        `json:"code,omitempty"`
}

// writeFrame encodes: u32 LE header length, JSON header, Values float32 LE.
func writeFrame(w io.Writer, h frameHeader, data []float32) error {
	h.Values = len(data)
	hdr, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode frame header: %w", err)
	}
	bw := bufio.NewWriter(w)
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(hdr)))
	if _, err := bw.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := bw.Write(hdr); err != nil {
		return err
	}
	var word [4]byte
	for _, v := range data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		if _, err := bw.Write(word[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// readFrame decodes one frame written by writeFrame.
func readFrame(r io.Reader) (frameHeader, []float32, error) {
	var h frameHeader
	br := bufio.NewReader(r)
	var prefix [4]byte
	if _, err := io.ReadFull(br, prefix[:]); err != nil {
		return h, nil, fmt.Errorf("%w: header length: %v", errBadFrame, err)
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n == 0 || n > maxHeaderLen {
		return h, nil, fmt.Errorf("%w: header length %d", errBadFrame, n)
	}
	hdr := make([]byte, n)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return h, nil, fmt.Errorf("%w: header: %v", errBadFrame, err)
	}
	if err := json.Unmarshal(hdr, &h); err != nil {
		return h, nil, fmt.Errorf("%w: header: %v", errBadFrame, err)
	}
	if h.Values < 0 || h.Values > maxPayloadValues {
		return h, nil, fmt.Errorf("%w: %d values", errBadFrame, h.Values)
	}
	if h.Values == 0 {
		return h, nil, nil
	}
	data := make([]float32, 0, min(h.Values, payloadChunk))
	buf := make([]byte, 4*min(h.Values, payloadChunk))
	for len(data) < h.Values {
		k := min(h.Values-len(data), payloadChunk)
		if _, err := io.ReadFull(br, buf[:4*k]); err != nil {
			return h, nil, fmt.Errorf("%w: payload after %d of %d values: %v", errBadFrame, len(data), h.Values, err)
		}
		for i := range k {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
		}
	}
	return h, data, nil
}
