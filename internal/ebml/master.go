package ebml

import (
	"bytes"
	"io"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
)

// Builder accumulates child elements in memory so a master element's exact
// size is known before its header is written. Most Matroska master
// elements (SegmentInfo, Tracks, TrackEntry, Cues, ...) are built this way;
// only Segment and Cluster are opened with unknown size and closed later by
// rewriting their size field in place (see internal/segment).
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Write(p []byte) (int, error) { return b.buf.Write(p) }

// Uint appends a child unsigned-integer element.
func (b *Builder) Uint(id ID, v uint64) *Builder { _ = WriteUint(&b.buf, id, v); return b }

// Float appends a child float element.
func (b *Builder) Float(id ID, v float64) *Builder { _ = WriteFloat64(&b.buf, id, v); return b }

// Str appends a child string element.
func (b *Builder) Str(id ID, s string) *Builder { _ = WriteString(&b.buf, id, s); return b }

// Bin appends a child binary element.
func (b *Builder) Bin(id ID, v []byte) *Builder { _ = WriteBinary(&b.buf, id, v); return b }

// Master appends a nested master element built by fn.
func (b *Builder) Master(id ID, fn func(*Builder)) *Builder {
	child := NewBuilder()
	fn(child)
	_ = writeElement(&b.buf, id, child.Bytes())
	return b
}

// Bytes returns the accumulated body (without the enclosing element's own
// id/size header).
func (b *Builder) Bytes() []byte { return b.buf.Bytes() }

// Len returns the accumulated body length.
func (b *Builder) Len() int { return b.buf.Len() }

// WriteTo writes id, the VINT size of the accumulated body, and the body to
// w, then resets the builder.
func (b *Builder) WriteTo(w io.Writer, id ID) (int64, error) {
	before := b.buf.Len()
	if err := writeElement(w, id, b.buf.Bytes()); err != nil {
		return 0, err
	}
	n := int64(MasterHeaderSize(id, uint64(before)) + before)
	b.buf.Reset()
	return n, nil
}

// WriteMasterUnknownSize writes id followed by the 8-byte "unknown size"
// VINT marker and returns nothing further; the caller streams children
// directly to w. internal/segment.Layout.Open opens the Segment this way,
// and Layout.Close later overwrites those 8 size bytes in place with the
// Segment's final length.
func WriteMasterUnknownSize(w io.Writer, id ID) error {
	if err := WriteID(w, id); err != nil {
		return mkverrors.NewWriterIOError("ebml.write.id", err)
	}
	sz, err := EncodeVINT(UnknownSize, 8)
	if err != nil {
		return mkverrors.NewWriterIOError("ebml.write.size", err)
	}
	if _, err := w.Write(sz); err != nil {
		return mkverrors.NewWriterIOError("ebml.write.size", err)
	}
	return nil
}
