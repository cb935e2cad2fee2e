package mux

import (
	"log/slog"

	"github.com/google/uuid"
)

// SplitState is the splitter's finite state machine position.
type SplitState int

const (
	StateWriting SplitState = iota
	StatePendingSplit
	StateRolling
)

func (s SplitState) String() string {
	switch s {
	case StateWriting:
		return "writing"
	case StatePendingSplit:
		return "pending_split"
	case StateRolling:
		return "rolling"
	default:
		return "unknown"
	}
}

// SplitMode selects whether SplitAfter is interpreted as nanoseconds or
// output bytes. SplitNone disables splitting entirely.
type SplitMode int

const (
	SplitNone SplitMode = iota
	SplitByTime
	SplitByBytes
)

// LinkMode controls how chapter times are placed across a split chain. In
// both modes block and cluster timecodes run on one clock across all
// files, and each rolled-over file records the previous file's UID as its
// PrevUID; the earlier file's NextUID is not written.
type LinkMode int

const (
	// LinkChained keeps chapter times on the whole chain's timeline
	// (TimecodeOffset is 0).
	LinkChained LinkMode = iota
	// LinkNone ("no_linking") makes TimecodeOffset the file's first packet
	// timecode, so chapter times are shifted to that file's own start.
	// Block and cluster timecodes are not rebased.
	LinkNone
)

// RolloverHook is invoked by the splitter when it transitions into
// StateRolling, giving the caller (the engine wiring mux to segment) the
// chance to run the file-closure path and open the next file. It returns
// the new file's UID so the splitter can continue the chain.
type RolloverHook func(oldFileLastTimecode int64) (newSegmentUID uuid.UUID, err error)

// Splitter implements the Writing -> PendingSplit -> Rolling -> Writing
// state machine described for segment rollover. It observes every
// scheduled packet (as a SplitObserver) plus the writer's byte position,
// and defers the actual rollover until the next keyframe of the reference
// track so splits land on a playable boundary.
type Splitter struct {
	log *slog.Logger

	mode        SplitMode
	splitAfter  int64 // ns or bytes depending on mode
	maxFiles    int
	link        LinkMode
	referenceID string // source_id of the reference (usually video) track

	registry *Registry

	state                   SplitState
	filesWritten            int
	firstTimecodeThisFile   int64
	haveFirstTimecodeThisFile bool
	queuedCueSize           int64

	onRollover RolloverHook

	externalPrevUID *uuid.UUID // set by CLI --link-to-previous, first file only
	externalNextUID *uuid.UUID // set by CLI --link-to-next, last file only

	currentUID  uuid.UUID
	previousUID *uuid.UUID
}

// NewSplitter builds a splitter. referenceID should be the video track's
// SourceID if one is registered, else the first registered track's.
func NewSplitter(registry *Registry, mode SplitMode, splitAfter int64, maxFiles int, link LinkMode, referenceID string, log *slog.Logger) *Splitter {
	if log == nil {
		log = slog.Default()
	}
	return &Splitter{
		log:         log,
		mode:        mode,
		splitAfter:  splitAfter,
		maxFiles:    maxFiles,
		link:        link,
		referenceID: referenceID,
		registry:    registry,
		state:       StateWriting,
		currentUID:  uuid.New(),
	}
}

func (s *Splitter) SetRolloverHook(h RolloverHook) { s.onRollover = h }
func (s *Splitter) SetExternalPrevUID(u uuid.UUID) { s.externalPrevUID = &u }
func (s *Splitter) SetExternalNextUID(u uuid.UUID) { s.externalNextUID = &u }

// CurrentUID returns the segment UID of the file currently being written.
func (s *Splitter) CurrentUID() uuid.UUID { return s.currentUID }

// PreviousUID returns the previous file's UID in the chain, or nil for
// the first file (unless an external PreviousSegmentUID was configured).
func (s *Splitter) PreviousUID() *uuid.UUID {
	if s.previousUID != nil {
		return s.previousUID
	}
	return s.externalPrevUID
}

// ExternalNextUID returns the CLI-configured --link-to-next UID, if any.
// internal/engine.Engine.Run applies it before the first Open, and only
// on a run without splitting, where the first file is also the last.
func (s *Splitter) ExternalNextUID() *uuid.UUID { return s.externalNextUID }

// Observe implements SplitObserver: called once per scheduled packet.
func (s *Splitter) Observe(p *Packet, writerPos int64) error {
	if s.mode == SplitNone || s.filesWritten+1 >= s.maxFiles && s.maxFiles > 0 {
		return nil
	}

	if !s.haveFirstTimecodeThisFile {
		s.firstTimecodeThisFile = p.AssignedTimecode
		s.haveFirstTimecodeThisFile = true
	}

	switch s.state {
	case StateWriting:
		triggered := false
		switch s.mode {
		case SplitByTime:
			triggered = p.AssignedTimecode-s.firstTimecodeThisFile >= s.splitAfter
		case SplitByBytes:
			triggered = writerPos+s.queuedCueSize >= s.splitAfter
		}
		if triggered {
			s.state = StatePendingSplit
			s.log.Info("split triggered, deferring to next keyframe", "mode", s.mode, "source", p.SourceID)
		}
	case StatePendingSplit:
		if p.SourceID == s.referenceID && p.IsKeyframe() {
			return s.roll(p)
		}
	}
	return nil
}

// roll executes the Rolling state: invokes the caller's RolloverHook
// (which runs the file-closure path and opens the next file) and chains
// segment UIDs according to the link mode.
func (s *Splitter) roll(triggeringKeyframe *Packet) error {
	s.state = StateRolling
	defer func() { s.state = StateWriting }()

	lastTC := triggeringKeyframe.AssignedTimecode
	var newUID uuid.UUID
	if s.onRollover != nil {
		u, err := s.onRollover(lastTC)
		if err != nil {
			return err
		}
		newUID = u
	} else {
		newUID = uuid.New()
	}

	oldUID := s.currentUID
	s.previousUID = &oldUID
	s.currentUID = newUID
	s.filesWritten++

	s.haveFirstTimecodeThisFile = false
	if s.link == LinkNone {
		s.firstTimecodeThisFile = 0
	}
	s.queuedCueSize = 0
	s.log.Info("segment rolled", "previous_uid", oldUID, "new_uid", newUID, "link_mode", s.link)
	return nil
}

// AddQueuedCueSize lets the assembler report its accumulated cue-table
// size so byte-mode splitting accounts for the cues that will be written
// at close (CueClusterPosition entries grow the file beyond just
// clusters).
func (s *Splitter) AddQueuedCueSize(n int64) { s.queuedCueSize = n }

// TimecodeOffset returns how much to subtract from chapter times when
// linking is disabled, so each file reports chapter times relative to its
// own first packet.
func (s *Splitter) TimecodeOffset() int64 {
	if s.link == LinkNone {
		return s.firstTimecodeThisFile
	}
	return 0
}
