package ebml

import "encoding/binary"

// The helpers in this file let a Builder accumulate the hand-rolled binary
// layout of a Block/SimpleBlock payload (track number VINT, signed 16-bit
// relative timecode, flags byte, optional lace sizes, frame bytes) without
// going through the id+size element wrapping WriteUint/WriteBinary use —
// a Block's body is not a sequence of child elements, it is positional
// binary content defined by the Matroska block structure itself.

// RawTrackNumber appends n encoded as an EBML VINT (same marker-bit layout
// as an element ID's size field), which is how Matroska blocks prefix
// their owning TrackNumber.
func (b *Builder) RawTrackNumber(n uint64) *Builder {
	enc, err := EncodeVINT(n, 0)
	if err != nil {
		// n is always a small track number in practice; a width-1 VINT
		// comfortably holds values up to 126.
		enc, _ = EncodeVINT(n, 2)
	}
	b.buf.Write(enc)
	return b
}

// RawInt16 appends v as a big-endian signed 16-bit integer (the Block's
// relative timecode field).
func (b *Builder) RawInt16(v int16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	b.buf.Write(tmp[:])
	return b
}

// RawByte appends a single raw byte (the Block flags byte).
func (b *Builder) RawByte(v byte) *Builder {
	b.buf.WriteByte(v)
	return b
}

// RawVIntSize appends v encoded as a minimal-width EBML VINT (used for
// fixed-size lacing's per-frame size fields, which reuse the VINT layout
// for simplicity rather than Matroska's signed lace-size delta encoding).
func (b *Builder) RawVIntSize(v uint64) *Builder {
	enc, err := EncodeVINT(v, 0)
	if err != nil {
		enc, _ = EncodeVINT(v, 8)
	}
	b.buf.Write(enc)
	return b
}

// RawBytes appends p verbatim (a lace's frame payload).
func (b *Builder) RawBytes(p []byte) *Builder {
	b.buf.Write(p)
	return b
}
