package ebml

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
)

// minUintBytes returns the minimal big-endian byte width (0..8) needed to
// hold v. A value of 0 encodes as zero bytes, matching Matroska's
// convention for unsigned-integer elements.
func minUintBytes(v uint64) int {
	n := 0
	for t := v; t != 0; t >>= 8 {
		n++
	}
	return n
}

// WriteUint writes an element header (id + size) followed by v encoded as a
// big-endian unsigned integer body of its minimal width.
func WriteUint(w io.Writer, id ID, v uint64) error {
	width := minUintBytes(v)
	body := make([]byte, width)
	t := v
	for i := width - 1; i >= 0; i-- {
		body[i] = byte(t)
		t >>= 8
	}
	return writeElement(w, id, body)
}

// WriteFloat64 writes an element header followed by v as an 8-byte IEEE754
// double, big-endian (Matroska float elements may be 4 or 8 bytes; this
// engine always emits the 8-byte form for consistency with TimecodeScale
// and Duration, the only floats it writes).
func WriteFloat64(w io.Writer, id ID, v float64) error {
	var body [8]byte
	binary.BigEndian.PutUint64(body[:], math.Float64bits(v))
	return writeElement(w, id, body[:])
}

// WriteString writes an element header followed by the UTF-8 bytes of s
// verbatim (no length prefix inside the body — the element size carries
// the length, unlike AMF0 strings).
func WriteString(w io.Writer, id ID, s string) error {
	return writeElement(w, id, []byte(s))
}

// WriteBinary writes an element header followed by the raw bytes of b.
func WriteBinary(w io.Writer, id ID, b []byte) error {
	return writeElement(w, id, b)
}

// writeElement writes id, the VINT-encoded size of body, then body.
func writeElement(w io.Writer, id ID, body []byte) error {
	if err := WriteID(w, id); err != nil {
		return mkverrors.NewWriterIOError("ebml.write.id", err)
	}
	size, err := EncodeVINT(uint64(len(body)), 0)
	if err != nil {
		return mkverrors.NewWriterIOError("ebml.write.size", err)
	}
	if _, err := w.Write(size); err != nil {
		return mkverrors.NewWriterIOError("ebml.write.size", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return mkverrors.NewWriterIOError("ebml.write.body", err)
	}
	return nil
}

// ReadUint reads an already-identified element's size-prefixed body as a
// big-endian unsigned integer (id has already been consumed by the caller).
func ReadUint(r io.Reader, size uint64) (uint64, error) {
	if size > 8 {
		return 0, fmt.Errorf("ebml: uint element too wide: %d bytes", size)
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, mkverrors.NewWriterIOError("ebml.read.uint", err)
		}
	}
	var v uint64
	for _, b := range buf {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// ReadFloat reads a 4- or 8-byte IEEE754 float element body.
func ReadFloat(r io.Reader, size uint64) (float64, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, mkverrors.NewWriterIOError("ebml.read.float", err)
	}
	switch size {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("ebml: unsupported float width %d", size)
	}
}

// ReadBytes reads a raw element body of the given size.
func ReadBytes(r io.Reader, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, mkverrors.NewWriterIOError("ebml.read.bytes", err)
		}
	}
	return buf, nil
}

// MasterHeaderSize returns the encoded byte length of an element header
// (id + size VINT) for a master element whose body is bodySize bytes,
// without writing anything. Used by layout code to size-budget reserved
// Void placeholders.
func MasterHeaderSize(id ID, bodySize uint64) int {
	return len(id) + vintWidth(bodySizeOrMax(bodySize))
}

func bodySizeOrMax(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return v
}
