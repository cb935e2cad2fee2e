// Package segment implements the output writer (a single seekable byte
// sink with reserve/overwrite semantics for Void placeholders) and the
// segment layout manager that sequences the Matroska file opening and
// closing steps around it.
package segment

import (
	"io"
	"log/slog"
	"sync"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/ebml"
)

// Sink is the minimal capability the Writer needs from its underlying file:
// sequential writes plus absolute seeking, matching os.File.
type Sink interface {
	io.Writer
	io.Seeker
}

// Placeholder is a handle to a reserved Void element. Writing through it
// validates the new content fits the reserved span and pads any remaining
// bytes with a nested Void filler so the file stays byte-exact.
type Placeholder struct {
	offset       int64
	reservedSize int
	w            *Writer
}

// Offset returns the placeholder's absolute byte offset.
func (p Placeholder) Offset() int64 { return p.offset }

// ReservedSize returns the placeholder's total reserved span in bytes.
func (p Placeholder) ReservedSize() int { return p.reservedSize }

// Writer owns the single seekable output sink. It is not safe for
// concurrent use: the mux engine is single-threaded cooperative (the
// cluster assembler, segment layout manager and splitter all call into it
// sequentially from the same goroutine). The mutex guards against
// accidental concurrent use in future extensions.
type Writer struct {
	mu     sync.Mutex
	sink   Sink
	pos    int64
	log    *slog.Logger
	broken bool // set once a write/seek failure occurs; further ops no-op with WriterIOError
}

// NewWriter wraps sink, assumed positioned at offset 0.
func NewWriter(sink Sink, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{sink: sink, log: log}
}

// Position returns the current write offset.
func (w *Writer) Position() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

// Write appends p at the current position, advancing it.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken {
		return 0, mkverrors.NewWriterIOError("writer.write", io.ErrClosedPipe)
	}
	n, err := w.sink.Write(p)
	w.pos += int64(n)
	if err != nil {
		w.broken = true
		w.log.Error("writer write failed", "err", err, "pos", w.pos)
		return n, mkverrors.NewWriterIOError("writer.write", err)
	}
	return n, nil
}

// WriteElement writes a fully-built element (id+size+body), e.g. the output
// of an ebml.Builder.WriteTo, through Write so position tracking stays
// consistent.
func (w *Writer) WriteElement(b []byte) error {
	_, err := w.Write(b)
	return err
}

// Reserve writes a Void element occupying exactly size bytes at the
// current position and returns a Placeholder for later overwrite.
func (w *Writer) Reserve(size int) (Placeholder, error) {
	w.mu.Lock()
	offset := w.pos
	w.mu.Unlock()
	buf := &sizeCountingBuffer{}
	if err := ebml.ReserveVoid(buf, size); err != nil {
		return Placeholder{}, mkverrors.NewWriterIOError("writer.reserve", err)
	}
	if _, err := w.Write(buf.bytes); err != nil {
		return Placeholder{}, err
	}
	return Placeholder{offset: offset, reservedSize: size, w: w}, nil
}

// Overwrite seeks to the placeholder's offset and writes body, padding any
// unused reserved bytes with a nested Void filler, then restores the
// writer's previous position (save/restore bracketing, so a streaming
// reader that has already passed this region continues to see consistent
// data once the rewrite completes). Returns a *errors.SpaceReservationOverrunWarning
// (non-fatal) if body does not fit the reservation.
func (p Placeholder) Overwrite(body []byte) error {
	if len(body) > p.reservedSize {
		return mkverrors.NewSpaceReservationOverrunWarning("placeholder", p.reservedSize, len(body))
	}
	return p.w.withSavedPosition(func() error {
		if err := p.w.seek(p.offset); err != nil {
			return err
		}
		if _, err := p.w.Write(body); err != nil {
			return err
		}
		remaining := p.reservedSize - len(body)
		if remaining == 0 {
			return nil
		}
		if remaining < ebml.MinVoidSize {
			// Pad with raw zero bytes inside the tail of whatever follows is not
			// possible without corrupting the next element; this only happens
			// when body's size was chosen to leave < 2 bytes, which callers in
			// this package never do (reservations round up). Treat as overrun.
			return mkverrors.NewSpaceReservationOverrunWarning("placeholder.padding", p.reservedSize, len(body)+ebml.MinVoidSize)
		}
		buf := &sizeCountingBuffer{}
		if err := ebml.ReserveVoid(buf, remaining); err != nil {
			return mkverrors.NewWriterIOError("writer.overwrite.pad", err)
		}
		_, err := p.w.Write(buf.bytes)
		return err
	})
}

// withSavedPosition runs fn after saving the writer's current position and
// restores it afterward regardless of fn's outcome.
func (w *Writer) withSavedPosition(fn func() error) error {
	w.mu.Lock()
	saved := w.pos
	w.mu.Unlock()
	err := fn()
	if seekErr := w.seek(saved); seekErr != nil && err == nil {
		err = seekErr
	}
	return err
}

// seek repositions the underlying sink and the writer's tracked offset.
func (w *Writer) seek(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken {
		return mkverrors.NewWriterIOError("writer.seek", io.ErrClosedPipe)
	}
	if _, err := w.sink.Seek(offset, io.SeekStart); err != nil {
		w.broken = true
		return mkverrors.NewWriterIOError("writer.seek", err)
	}
	w.pos = offset
	return nil
}

// SeekEnd repositions the writer to the end of whatever has been written so
// far (used after overwriting placeholders, to resume appending).
func (w *Writer) SeekEnd(endOffset int64) error { return w.seek(endOffset) }

// sizeCountingBuffer is a tiny io.Writer that just accumulates bytes; used
// internally to pre-render a Void element before a single Write call.
type sizeCountingBuffer struct{ bytes []byte }

func (b *sizeCountingBuffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}
