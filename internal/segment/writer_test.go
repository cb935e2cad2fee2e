package segment

import (
	"bytes"
	"errors"
	"io"
	"testing"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
)

// memSink is an in-memory Sink: a growable byte slice with absolute
// seeking, enough to exercise Writer without touching the filesystem.
type memSink struct {
	buf       []byte
	pos       int64
	failWrite bool
	failSeek  bool
}

func (m *memSink) Write(p []byte) (int, error) {
	if m.failWrite {
		return 0, errors.New("disk full")
	}
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memSink) Seek(offset int64, whence int) (int64, error) {
	if m.failSeek {
		return 0, errors.New("seek failed")
	}
	if whence != io.SeekStart {
		return 0, errors.New("memSink only supports SeekStart")
	}
	m.pos = offset
	return m.pos, nil
}

func TestWriterTracksPosition(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if got := w.Position(); got != 5 {
		t.Fatalf("Position() = %d, want 5", got)
	}
}

func TestWriterMarksBrokenAfterFailedWrite(t *testing.T) {
	sink := &memSink{failWrite: true}
	w := NewWriter(sink, nil)
	_, err := w.Write([]byte("x"))
	if err == nil {
		t.Fatal("expected an error from a failing sink")
	}
	if !mkverrors.IsWriterIO(err) {
		t.Fatalf("expected a WriterIOError, got %v", err)
	}
	if _, err := w.Write([]byte("y")); !mkverrors.IsWriterIO(err) {
		t.Fatal("expected the writer to stay broken and reject further writes")
	}
}

func TestReserveThenOverwriteRoundTrips(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	if _, err := w.Write([]byte("HEAD")); err != nil {
		t.Fatal(err)
	}
	ph, err := w.Reserve(16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("TAIL")); err != nil {
		t.Fatal(err)
	}
	posAfterTail := w.Position()

	if err := ph.Overwrite([]byte{0xEC, 0x84, 0x01, 0x02, 0x03}); err != nil {
		t.Fatal(err)
	}
	if got := w.Position(); got != posAfterTail {
		t.Fatalf("Position() after Overwrite = %d, want %d (save/restore bracketing)", got, posAfterTail)
	}
	if !bytes.HasPrefix(sink.buf[ph.Offset():], []byte{0xEC, 0x84, 0x01, 0x02, 0x03}) {
		t.Fatal("overwritten body not found at the placeholder's offset")
	}
}

func TestOverwriteOverrunIsAdvisoryNotFatal(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	ph, err := w.Reserve(4)
	if err != nil {
		t.Fatal(err)
	}
	body := make([]byte, 64)
	err = ph.Overwrite(body)
	if err == nil {
		t.Fatal("expected a space-reservation-overrun warning")
	}
	if !mkverrors.IsSpaceReservationOverrun(err) {
		t.Fatalf("expected IsSpaceReservationOverrun, got %v", err)
	}
	if mkverrors.IsFatal(err) {
		t.Fatal("a space-reservation overrun must not be classified fatal")
	}
}

func TestSeekEndResumesAppending(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	if _, err := w.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	if err := w.SeekEnd(10); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("ABC")); err != nil {
		t.Fatal(err)
	}
	if got, want := string(sink.buf), "0123456789ABC"; got != want {
		t.Fatalf("buf = %q, want %q", got, want)
	}
}
