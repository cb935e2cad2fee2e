package mux

// Lace holds one frame's worth of payload and duration inside a laced
// Block. A BlockGroup with one Lace is an ordinary unlaced block.
type Lace struct {
	Payload  []byte
	Duration int64 // nanoseconds, this frame's own duration
	Seq      uint64
}

// BlockGroup is one rendered (or rendering) Matroska BlockGroup: a Block
// carrying one or more laced frames from a single track, plus its
// reference fields. It is also the unit the reference resolver tracks:
// once every packet that named it as bref/fref has itself been resolved,
// the BlockGroup's payload may be dropped.
type BlockGroup struct {
	Track    *TrackDescriptor
	SourceID string

	// RelativeTimecode is this block's timecode relative to its owning
	// cluster's Timecode element.
	RelativeTimecode int64

	// AbsoluteTimecode is the first lace's assigned_timecode, used by the
	// reference resolver's (source_id, timecode) lookup.
	AbsoluteTimecode int64

	Laces []Lace

	// BRefBlock/FRefBlock point at the BlockGroups this one depends on,
	// resolved from the originating packet's bref/fref timecodes. Nil for
	// a keyframe block.
	BRefBlock *BlockGroup
	FRefBlock *BlockGroup

	RefPriority int

	// DurationMandatory forces BlockDuration to serialise even when it
	// equals the track default (see set_duration_and_timeslices).
	DurationMandatory bool
	UseTimeslices     bool

	// cluster is the owning cluster, used by the resolver to test
	// "still referenced" membership.
	cluster *Cluster

	// refcount counts inbound unresolved references (other blocks citing
	// this one via BRefBlock/FRefBlock); the resolver decrements it as
	// dependents are themselves resolved, and frees payload at zero.
	refcount int

	superseded bool
	freed      bool
}

// IsKeyframe reports whether this block carries no outbound references.
func (bg *BlockGroup) IsKeyframe() bool { return bg.BRefBlock == nil && bg.FRefBlock == nil }

// TotalDuration sums the individual lace durations.
func (bg *BlockGroup) TotalDuration() int64 {
	var sum int64
	for _, l := range bg.Laces {
		sum += l.Duration
	}
	return sum
}

// setDurationAndTimeslices decides whether BlockDuration and per-lace
// TimeSlice elements must be serialised, per the block duration rules:
// a block never carries a duration equal to the track default unless
// explicitly marked mandatory, and per-lace slices only appear when
// lace durations are non-uniform or the caller requested them.
func (bg *BlockGroup) setDurationAndTimeslices(trackDefault int64, globalTimeslices bool) (writeDuration bool, writeSlices bool) {
	sum := bg.TotalDuration()
	writeDuration = bg.DurationMandatory || sum != trackDefault

	nonUniform := false
	if len(bg.Laces) > 1 {
		first := bg.Laces[0].Duration
		for _, l := range bg.Laces[1:] {
			if l.Duration != first {
				nonUniform = true
				break
			}
		}
	}
	writeSlices = len(bg.Laces) > 1 && (nonUniform || globalTimeslices || bg.UseTimeslices)
	return writeDuration, writeSlices
}
