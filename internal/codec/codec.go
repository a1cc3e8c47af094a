// Package codec compresses token matrices into self-describing blobs for
// storage. Encoding is lossless and deterministic: a fixed-level deflate
// stream behind a plain header carrying shape and dtype, so
// Decode(Encode(m)) reproduces m bit for bit.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"

	enginerrors "github.com/doclens/engine/internal/errors"
	"github.com/doclens/engine/internal/models"
)

// Blob layout: header (uncompressed) followed by a zlib stream of the
// row-major float32 payload in little-endian bit order. The zlib checksum
// catches payload corruption; the header length check catches shape
// corruption.
//
//	magic   [4]byte "dlm1"
//	version uint8
//	dtype   uint8 (1 = float32)
//	rows    uint32 LE
//	cols    uint32 LE
const (
	headerLen = 14

	formatVersion = 1
	dtypeFloat32  = 1
)

var magic = [4]byte{'d', 'l', 'm', '1'}

// Fixed compression level so identical matrices always produce identical
// blobs across processes.
const compressionLevel = zlib.DefaultCompression

// Stats reports blob sizing for capacity planning. Callers must not assume
// any fixed ratio; it is data-dependent.
type Stats struct {
	BytesIn  int // raw payload size (rows*cols*4)
	BytesOut int // blob size including header
}

// Ratio returns BytesIn / BytesOut, or 0 for an empty blob.
func (s Stats) Ratio() float64 {
	if s.BytesOut == 0 {
		return 0
	}

	return float64(s.BytesIn) / float64(s.BytesOut)
}

// Option configures a Codec.
type Option func(*Codec)

// WithNonFiniteAllowed permits NaN/Inf values in encoded matrices.
// Disallowed by default: a non-finite token value upstream is almost always
// a model bug, and rejecting it at encode time localizes the fault.
func WithNonFiniteAllowed() Option {
	return func(c *Codec) {
		c.allowNonFinite = true
	}
}

// Codec is a pure encode/decode pair; it holds policy, no state, and is
// safe for concurrent use.
type Codec struct {
	allowNonFinite bool
}

// New creates a Codec with the given options.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Encode serializes and compresses m. Fails with EncodeError only for a
// malformed shape or, under the default policy, non-finite values.
func (c *Codec) Encode(m *models.TokenMatrix) ([]byte, Stats, error) {
	if err := m.Validate(); err != nil {
		return nil, Stats{}, enginerrors.NewEncodeError(err.Error())
	}

	if !c.allowNonFinite {
		for i, v := range m.Data {
			f := float64(v)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, Stats{}, enginerrors.NewEncodeError(
					fmt.Sprintf("non-finite value %v at index %d", v, i))
			}
		}
	}

	payload := make([]byte, len(m.Data)*4)
	for i, v := range m.Data {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	var buf bytes.Buffer

	buf.Grow(headerLen + len(payload)/2)
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.WriteByte(dtypeFloat32)

	var shape [8]byte

	binary.LittleEndian.PutUint32(shape[0:], uint32(m.Rows))
	binary.LittleEndian.PutUint32(shape[4:], uint32(m.Cols))
	buf.Write(shape[:])

	fw, err := zlib.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, Stats{}, enginerrors.NewEncodeError(fmt.Sprintf("create zlib writer: %v", err))
	}

	if _, err := fw.Write(payload); err != nil {
		return nil, Stats{}, enginerrors.NewEncodeError(fmt.Sprintf("compress payload: %v", err))
	}

	if err := fw.Close(); err != nil {
		return nil, Stats{}, enginerrors.NewEncodeError(fmt.Sprintf("flush zlib stream: %v", err))
	}

	blob := buf.Bytes()

	return blob, Stats{BytesIn: len(payload), BytesOut: len(blob)}, nil
}

// Decode is the inverse of Encode. Fails with DecodeError when the header
// is malformed or the declared shape disagrees with the decompressed
// payload length (corruption detection); it never returns a wrong-shaped
// matrix.
func (c *Codec) Decode(blob []byte) (*models.TokenMatrix, error) {
	if len(blob) < headerLen {
		return nil, enginerrors.NewDecodeError(fmt.Sprintf("blob too short: %d bytes", len(blob)))
	}

	if !bytes.Equal(blob[:4], magic[:]) {
		return nil, enginerrors.NewDecodeError("bad magic")
	}

	if blob[4] != formatVersion {
		return nil, enginerrors.NewDecodeError(fmt.Sprintf("unsupported version %d", blob[4]))
	}

	if blob[5] != dtypeFloat32 {
		return nil, enginerrors.NewDecodeError(fmt.Sprintf("unsupported dtype %d", blob[5]))
	}

	rows := binary.LittleEndian.Uint32(blob[6:10])
	cols := binary.LittleEndian.Uint32(blob[10:14])

	// Cap before allocating: a corrupted shape field must not drive a huge
	// allocation. 1<<28 floats is 1 GiB of payload, far beyond any real
	// token matrix.
	const maxElements = 1 << 28
	if uint64(rows)*uint64(cols) > maxElements {
		return nil, enginerrors.NewDecodeError(fmt.Sprintf("implausible shape %dx%d", rows, cols))
	}

	fr, err := zlib.NewReader(bytes.NewReader(blob[headerLen:]))
	if err != nil {
		return nil, enginerrors.NewDecodeError(fmt.Sprintf("open zlib stream: %v", err))
	}
	defer fr.Close()

	payload, err := io.ReadAll(fr)
	if err != nil {
		return nil, enginerrors.NewDecodeError(fmt.Sprintf("decompress payload: %v", err))
	}

	want := int(rows) * int(cols) * 4
	if len(payload) != want {
		return nil, enginerrors.NewDecodeError(
			fmt.Sprintf("shape %dx%d declares %d payload bytes, got %d", rows, cols, want, len(payload)))
	}

	m := models.NewTokenMatrix(int(rows), int(cols))
	for i := range m.Data {
		m.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}

	return m, nil
}
