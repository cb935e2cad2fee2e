package ebml

import (
	"fmt"
	"io"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
)

// MinVoidSize is the smallest number of bytes ReserveVoid can emit: one ID
// byte plus a one-byte size VINT, with no filler.
const MinVoidSize = 2

// ReserveVoid writes a Void element occupying exactly totalSize bytes on
// disk (ID + size VINT + zero-filled body), used to reserve space in the
// file opening sequence for elements rewritten on close (meta-seek head,
// post-track-header tweaks, filtered chapters). Returns an error if
// totalSize is too small to hold even an empty Void element.
func ReserveVoid(w io.Writer, totalSize int) error {
	if totalSize < MinVoidSize {
		return fmt.Errorf("ebml: void reservation of %d bytes is below minimum %d", totalSize, MinVoidSize)
	}
	idLen := len(Void)
	for width := 1; width <= 8; width++ {
		filler := totalSize - idLen - width
		if filler < 0 {
			continue
		}
		max := int(uint64(1)<<(7*uint(width))) - 2 // leave room so it never collides with unknown-size
		if filler > max {
			continue
		}
		if err := WriteID(w, Void); err != nil {
			return mkverrors.NewWriterIOError("ebml.void.id", err)
		}
		sz, err := EncodeVINT(uint64(filler), width)
		if err != nil {
			return mkverrors.NewWriterIOError("ebml.void.size", err)
		}
		if _, err := w.Write(sz); err != nil {
			return mkverrors.NewWriterIOError("ebml.void.size", err)
		}
		if filler > 0 {
			zeros := make([]byte, filler)
			if _, err := w.Write(zeros); err != nil {
				return mkverrors.NewWriterIOError("ebml.void.fill", err)
			}
		}
		return nil
	}
	return fmt.Errorf("ebml: void reservation of %d bytes has no valid vint width", totalSize)
}
