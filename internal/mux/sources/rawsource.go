// Package sources provides reference PacketSource implementations: a raw
// elementary-stream source fed by an external producer, and a reader that
// demuxes an existing Matroska file back into packets. Real container-
// specific demuxers (AVI, MP4, Ogg, ...) are out of scope for this engine
// (spec §1) and are expected to satisfy the same mux.PacketSource contract.
package sources

import (
	stdErrors "errors"
	"sync"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/mux"
)

// Frame is one already-framed access unit handed to a RawSource by its
// producer (e.g. a codec-specific packetizer running in another
// goroutine). BRef and FRef must be set to -1 when absent: 0 is a legal
// reference target (the first frame of a source), so the producer must
// say "no reference" explicitly rather than relying on the zero value.
type Frame struct {
	Payload     []byte
	Timecode    int64
	Duration    int64
	BRef, FRef  int64
	RefPriority int
}

// RawSource is a PacketSource fed by pushing Frames from outside; it owns
// no decoding logic itself. Push is safe to call from a producer goroutine
// while Read/Pop are called from the mux scheduler's single loop goroutine:
// the queue's mutex is the only synchronization point.
type RawSource struct {
	id      string
	typ     mux.TrackType
	codecID string
	private []byte

	mu     sync.Mutex
	queue  []*mux.Packet
	closed bool
}

// NewRawSource creates a source identified by id, producing typ/codecID
// packets. codecPrivate may be nil.
func NewRawSource(id string, typ mux.TrackType, codecID string, codecPrivate []byte) *RawSource {
	return &RawSource{id: id, typ: typ, codecID: codecID, private: codecPrivate}
}

// Push enqueues a frame as a mux.Packet. Safe to call from a producer
// goroutine concurrently with the scheduler's Read/Pop calls.
func (r *RawSource) Push(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.queue = append(r.queue, &mux.Packet{
		Payload:  f.Payload,
		SourceID: r.id,
		Timecode: f.Timecode,
		// A pushed Frame carries no separate container timescale to
		// rebase from, so its timecode is already expressed in the
		// segment's shared nanosecond scale.
		AssignedTimecode: f.Timecode,
		Duration:         f.Duration,
		BRef:             f.BRef,
		FRef:             f.FRef,
		RefPriority:      f.RefPriority,
	})
}

// Close marks the source exhausted; subsequent Read calls report
// mux.NoMoreData once the queue drains.
func (r *RawSource) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Read implements mux.PacketSource. RawSource never blocks: packets
// arrive via Push from elsewhere, so Read just reports the queue's
// current state.
func (r *RawSource) Read() (mux.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case len(r.queue) > 0:
		return mux.MoreData, nil
	case r.closed:
		return mux.NoMoreData, nil
	default:
		return mux.TemporarilyHolding, nil
	}
}

func (r *RawSource) PacketAvailable() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint(len(r.queue))
}

func (r *RawSource) Peek() (*mux.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	return r.queue[0], true
}

func (r *RawSource) Pop() (*mux.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return nil, false
	}
	p := r.queue[0]
	r.queue = r.queue[1:]
	return p, true
}

// SetHeaders is a no-op for RawSource: codec identity is fixed at
// construction. Real demuxers override this to fill in codec-private
// data discovered while parsing container headers.
func (r *RawSource) SetHeaders() error { return nil }

func (r *RawSource) Identify() string { return r.id }

// TrackType / CodecID / CodecPrivate expose the static identity the
// engine's track registration step needs.
func (r *RawSource) TrackType() mux.TrackType { return r.typ }
func (r *RawSource) CodecID() string          { return r.codecID }
func (r *RawSource) CodecPrivate() []byte     { return r.private }

var _ mux.PacketSource = (*RawSource)(nil)

// errNotImplemented is returned by demuxer stubs not provided by this
// engine (container parsing is out of scope, spec §1).
var errNotImplemented = mkverrors.NewInvalidConfigError("source", stdErrors.New("demuxer not implemented"))

// ErrNotImplemented is exported for sources that want to report an
// unimplemented container format via a uniform error.
func ErrNotImplemented() error { return errNotImplemented }
