// Package errors defines the typed error kinds the mux engine reports,
// mirroring the six error classes described for the muxing pipeline:
// source errors, unresolved references, space-reservation overruns,
// writer I/O failures, invalid configuration and backwards timecodes.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// fatalMarker is implemented by every fatal mux-layer error type so callers
// can classify "must run closure path and abort" vs advisory conditions.
type fatalMarker interface {
	error
	isFatal()
}

// SourceError indicates a PacketSource failed to produce a packet. Fatal for
// that source; the scheduler continues with the remaining sources.
type SourceError struct {
	SourceID string
	Op       string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source error: %s: %s", e.SourceID, e.Op)
	}
	return fmt.Sprintf("source error: %s: %s: %v", e.SourceID, e.Op, e.Err)
}
func (e *SourceError) Unwrap() error { return e.Err }
func (e *SourceError) isFatal()      {}

// ReferenceUnresolvedError indicates a packet's bref/fref names a packet
// that cannot be located by the reference resolver.
type ReferenceUnresolvedError struct {
	SourceID    string
	RefTimecode int64
	Op          string
	Err         error
}

func (e *ReferenceUnresolvedError) Error() string {
	base := fmt.Sprintf("reference unresolved: source=%s ref_tc=%d op=%s", e.SourceID, e.RefTimecode, e.Op)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *ReferenceUnresolvedError) Unwrap() error { return e.Err }
func (e *ReferenceUnresolvedError) isFatal()      {}

// WriterIOError indicates an underlying write or seek on the output sink
// failed.
type WriterIOError struct {
	Op  string
	Err error
}

func (e *WriterIOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("writer io error: %s", e.Op)
	}
	return fmt.Sprintf("writer io error: %s: %v", e.Op, e.Err)
}
func (e *WriterIOError) Unwrap() error { return e.Err }
func (e *WriterIOError) isFatal()      {}

// InvalidConfigError indicates contradictory or out-of-range CLI options.
// Fatal before the mux loop starts.
type InvalidConfigError struct {
	Field string
	Err   error
}

func (e *InvalidConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid config: %s", e.Field)
	}
	return fmt.Sprintf("invalid config: %s: %v", e.Field, e.Err)
}
func (e *InvalidConfigError) Unwrap() error { return e.Err }
func (e *InvalidConfigError) isFatal()      {}

// TimecodeBackwardsError indicates a source violated per-source monotonicity
// of assigned_timecode.
type TimecodeBackwardsError struct {
	SourceID string
	Prev     int64
	Got      int64
}

func (e *TimecodeBackwardsError) Error() string {
	return fmt.Sprintf("timecode backwards: source=%s prev=%d got=%d", e.SourceID, e.Prev, e.Got)
}
func (e *TimecodeBackwardsError) isFatal() {}

// SpaceReservationOverrunWarning indicates a rewritten meta element did not
// fit its reserved Void placeholder. Recovered: the caller logs a warning,
// skips the element, and the file remains valid but less seek-friendly. It
// does NOT implement fatalMarker.
type SpaceReservationOverrunWarning struct {
	Element  string
	Reserved int
	Needed   int
}

func (e *SpaceReservationOverrunWarning) Error() string {
	return fmt.Sprintf("space reservation overrun: %s needs %d bytes, %d reserved", e.Element, e.Needed, e.Reserved)
}

// Constructors.
func NewSourceError(sourceID, op string, cause error) error {
	return &SourceError{SourceID: sourceID, Op: op, Err: cause}
}
func NewReferenceUnresolvedError(sourceID string, refTimecode int64, op string, cause error) error {
	return &ReferenceUnresolvedError{SourceID: sourceID, RefTimecode: refTimecode, Op: op, Err: cause}
}
func NewWriterIOError(op string, cause error) error { return &WriterIOError{Op: op, Err: cause} }
func NewInvalidConfigError(field string, cause error) error {
	return &InvalidConfigError{Field: field, Err: cause}
}
func NewTimecodeBackwardsError(sourceID string, prev, got int64) error {
	return &TimecodeBackwardsError{SourceID: sourceID, Prev: prev, Got: got}
}
func NewSpaceReservationOverrunWarning(element string, reserved, needed int) error {
	return &SpaceReservationOverrunWarning{Element: element, Reserved: reserved, Needed: needed}
}

// IsFatal returns true if err is (or wraps) one of the fatal mux error
// kinds: source, reference-unresolved, writer-io, invalid-config or
// timecode-backwards. Space-reservation overruns are never fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fm fatalMarker
	return stdErrors.As(err, &fm)
}

// IsSourceError reports whether err is a SourceError.
func IsSourceError(err error) bool {
	var e *SourceError
	return stdErrors.As(err, &e)
}

// IsReferenceUnresolved reports whether err is a ReferenceUnresolvedError.
func IsReferenceUnresolved(err error) bool {
	var e *ReferenceUnresolvedError
	return stdErrors.As(err, &e)
}

// IsWriterIO reports whether err is a WriterIOError.
func IsWriterIO(err error) bool {
	var e *WriterIOError
	return stdErrors.As(err, &e)
}

// IsInvalidConfig reports whether err is an InvalidConfigError.
func IsInvalidConfig(err error) bool {
	var e *InvalidConfigError
	return stdErrors.As(err, &e)
}

// IsTimecodeBackwards reports whether err is a TimecodeBackwardsError.
func IsTimecodeBackwards(err error) bool {
	var e *TimecodeBackwardsError
	return stdErrors.As(err, &e)
}

// IsSpaceReservationOverrun reports whether err is an advisory
// SpaceReservationOverrunWarning.
func IsSpaceReservationOverrun(err error) bool {
	var e *SpaceReservationOverrunWarning
	return stdErrors.As(err, &e)
}
