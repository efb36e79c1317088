// Package matfile reads and writes square operand matrices in a small
// binary format:
//
//	offset  size  field
//	0       4     magic "PGMX"
//	4       2     version (1), little endian
//	6       2     reserved, zero
//	8       4     N, little endian
//	12      4·N²  float32 elements, little endian, column-major
package matfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/samcharles93/pigemm/internal/matrix"
)

const (
	Magic      = "PGMX"
	Version    = 1
	headerSize = 12
)

var (
	ErrInvalidMagic       = errors.New("invalid matrix file magic")
	ErrUnsupportedVersion = errors.New("unsupported matrix file version")
	ErrCorruptFile        = errors.New("corrupt matrix file")
)

type header struct {
	version uint16
	n       int
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, fmt.Errorf("%w: %d byte header", ErrCorruptFile, len(b))
	}
	if string(b[:4]) != Magic {
		return header{}, ErrInvalidMagic
	}
	h := header{
		version: binary.LittleEndian.Uint16(b[4:6]),
		n:       int(binary.LittleEndian.Uint32(b[8:12])),
	}
	if h.version != Version {
		return header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.version)
	}
	return h, nil
}

// Open reads the matrix stored at path. The file is mapped read-only while
// it is decoded; if mmap is unavailable it is read with ReadAt instead.
// The returned matrix owns its memory.
func Open(path string) (matrix.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return matrix.Matrix{}, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return matrix.Matrix{}, err
	}
	size64 := stat.Size()
	if size64 < headerSize || size64 > int64(math.MaxInt) {
		return matrix.Matrix{}, fmt.Errorf("%w: %s is %d bytes", ErrCorruptFile, path, size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		m, decodeErr := decode(data)
		if unmapErr := unix.Munmap(data); decodeErr == nil && unmapErr != nil {
			return matrix.Matrix{}, fmt.Errorf("unmap %s: %w", path, unmapErr)
		}
		return m, decodeErr
	}

	return ReadFrom(f, size64)
}

// ReadFrom decodes a matrix from a random-access reader holding size bytes.
func ReadFrom(r io.ReaderAt, size int64) (matrix.Matrix, error) {
	if size < headerSize || size > int64(math.MaxInt) {
		return matrix.Matrix{}, fmt.Errorf("%w: %d bytes", ErrCorruptFile, size)
	}
	buf := make([]byte, size)
	n, err := r.ReadAt(buf, 0)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return matrix.Matrix{}, fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return decode(buf)
}

func decode(data []byte) (matrix.Matrix, error) {
	h, err := decodeHeader(data)
	if err != nil {
		return matrix.Matrix{}, err
	}
	payload := data[headerSize:]
	if h.n == 0 || len(payload)/4/h.n != h.n || len(payload) != 4*h.n*h.n {
		return matrix.Matrix{}, fmt.Errorf("%w: N=%d with %d payload bytes", ErrCorruptFile, h.n, len(payload))
	}
	m := matrix.New(h.n)
	for i := range m.Data {
		m.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	if err := m.Validate(); err != nil {
		return matrix.Matrix{}, err
	}
	return m, nil
}

// Encode writes m in the matfile format.
func Encode(w io.Writer, m *matrix.Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	var hdr [headerSize]byte
	copy(hdr[:4], Magic)
	binary.LittleEndian.PutUint16(hdr[4:6], Version)
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(m.N))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	var word [4]byte
	for _, v := range m.Data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		if _, err := bw.Write(word[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write stores m at path. The data goes to a temporary file in the same
// directory first, so readers never see a partially written matrix.
func Write(path string, m *matrix.Matrix) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = Encode(tmp, m); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
