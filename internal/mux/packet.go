// Package mux implements the core muxing engine: packet sources, the track
// registry, the cluster assembler, reference resolution, the mux scheduler
// and the segment splitter.
package mux

// Status is returned by PacketSource.Read to tell the scheduler what the
// source did and what it should do next.
type Status int

const (
	// MoreData indicates Read produced at least one packet and the source
	// may have more ready without blocking.
	MoreData Status = iota
	// NoMoreData indicates the source is exhausted; the scheduler should
	// stop polling it.
	NoMoreData
	// TemporarilyHolding indicates the source has nothing ready right now
	// but is not exhausted; the scheduler should back off and retry later
	// rather than treat this as end of stream.
	TemporarilyHolding
	// SourceErrored indicates Read failed; the accompanying error is a
	// *mkverrors.SourceError and the scheduler decides whether it is fatal.
	SourceErrored
)

func (s Status) String() string {
	switch s {
	case MoreData:
		return "more_data"
	case NoMoreData:
		return "no_more_data"
	case TemporarilyHolding:
		return "temporarily_holding"
	case SourceErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Packet is one elementary-stream access unit (a video frame, an audio
// frame, a subtitle event) on its way from a PacketSource into a Cluster.
type Packet struct {
	// Payload is the already-codec-framed sample data (e.g. an Annex B NAL
	// stream reframed to length-prefixed, or a raw AAC frame). The mux
	// engine never interprets it beyond copying and lacing it.
	Payload []byte

	// SourceID identifies which PacketSource (and therefore which
	// TrackDescriptor) this packet belongs to.
	SourceID string

	// Timecode is the packet's presentation timecode in the source's
	// native timescale, as produced by the source.
	Timecode int64

	// AssignedTimecode is the nanosecond timecode every mux decision uses;
	// the PacketSource sets it (the bundled sources copy Timecode) and the
	// scheduler does not change it. This is what gets written to the block.
	AssignedTimecode int64

	// Duration is the packet's duration in the segment timescale. Zero is
	// valid only when DurationMandatory is false (the format allows
	// omitting BlockDuration and relying on the next block's timecode).
	Duration          int64
	DurationMandatory bool

	// BRef and FRef are the AssignedTimecodes of the backward and forward
	// reference frames (on the same source) this packet depends on, or -1
	// if absent. 0 is a legal reference target (the
	// first frame of a source), so it cannot double as "no reference". A
	// packet with neither is a keyframe.
	BRef int64
	FRef int64

	// RefPriority orders packets that other packets may reference; higher
	// values are kept longer by the reference resolver under pressure.
	RefPriority int

	// SequenceNumber is assigned by the scheduler when it first peeks this
	// packet off its source (not when popped) and breaks ties when two
	// packets share the lowest AssignedTimecode.
	SequenceNumber uint64

	// AssembledBlock points back at the BlockGroup this packet ended up
	// in once rendered, so the reference resolver can mark it free. Nil
	// until the cluster assembler places it.
	AssembledBlock *BlockGroup
}

// IsKeyframe reports whether this packet has no outstanding references,
// i.e. it can seed a new cluster and is a valid cue point.
func (p *Packet) IsKeyframe() bool { return p.BRef == -1 && p.FRef == -1 }

// PacketSource is the contract every media producer (live capture, a file
// reader, a test fixture) implements so the scheduler can poll it uniformly.
type PacketSource interface {
	// Read pulls the source forward by one step: it may decode/parse more
	// input and enqueue zero or more packets internally. It must not
	// block indefinitely; sources that would block return
	// TemporarilyHolding instead.
	Read() (Status, error)

	// PacketAvailable returns how many packets are currently queued and
	// ready to Pop without a further Read.
	PacketAvailable() uint

	// Peek returns the next queued packet without removing it, or
	// (nil, false) if none is queued.
	Peek() (*Packet, bool)

	// Pop removes and returns the next queued packet, or (nil, false) if
	// none is queued.
	Pop() (*Packet, bool)

	// SetHeaders is called once before the first Read to let the source
	// publish any codec-private data it owns onto its TrackDescriptor.
	SetHeaders() error

	// Identify returns a stable, log-friendly name for this source.
	Identify() string
}
