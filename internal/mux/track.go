package mux

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TrackType classifies a track for lacing and cue-policy defaults.
type TrackType int

const (
	TrackVideo TrackType = iota + 1
	TrackAudio
	TrackSubtitle
)

// CuePolicy controls which blocks on a track generate a CuePoint.
type CuePolicy int

const (
	// CueNone never indexes this track.
	CueNone CuePolicy = iota
	// CueIFramesOnly indexes only keyframes (the usual policy for video).
	CueIFramesOnly
	// CueAll indexes every block; a track gets it only through an explicit
	// per-track override (--cues tid:all).
	CueAll
)

// TrackDescriptor is the static and slowly-changing state the mux engine
// keeps per elementary stream: its wire number, UID, codec identity and
// cue policy. One is created per PacketSource at registration time.
type TrackDescriptor struct {
	Number uint64 // 1-based TrackNumber, assigned at registration
	UID    uint64 // TrackUID, random per segment per spec

	Type     TrackType
	CodecID  string
	Language string
	Name     string

	// CodecPrivate holds codec-specific setup data (e.g. AVCDecoderConfig,
	// AudioSpecificConfig), published by the source via SetHeaders.
	CodecPrivate []byte

	// DefaultDuration is the nominal per-block duration in nanoseconds,
	// used when a source's packets omit an explicit duration.
	DefaultDuration int64

	Cues CuePolicy

	mu      sync.RWMutex
	enabled bool
	lastTC  int64 // last assigned timecode written for this track, for monotonicity checks
}

func (t *TrackDescriptor) SetEnabled(v bool) {
	t.mu.Lock()
	t.enabled = v
	t.mu.Unlock()
}

func (t *TrackDescriptor) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// ObserveTimecode records tc as the latest assigned timecode for this
// track and reports the previous value plus whether tc moved backwards
// relative to it (callers surface that as a TimecodeBackwardsError).
func (t *TrackDescriptor) ObserveTimecode(tc int64) (prev int64, backwards bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.lastTC
	backwards = tc < prev
	t.lastTC = tc
	return prev, backwards
}

// Registry is the thread-safe set of tracks known to the current segment,
// keyed by SourceID. Distinct from TrackDescriptor.Number (the wire-level
// identifier): SourceID is how the scheduler and cluster assembler look a
// track up; Number/UID are what get written to Tracks.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*TrackDescriptor
	order  []string // registration order, determines TrackNumber assignment
	nextNo uint64
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*TrackDescriptor), nextNo: 1}
}

// Register creates a TrackDescriptor for sourceID if one doesn't already
// exist and assigns it the next TrackNumber. Returns the descriptor and
// whether it was newly created.
func (r *Registry) Register(sourceID string, typ TrackType, codecID string) (*TrackDescriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if td, ok := r.byID[sourceID]; ok {
		return td, false
	}
	td := &TrackDescriptor{
		Number:  r.nextNo,
		UID:     randomTrackUID(),
		Type:    typ,
		CodecID: codecID,
		enabled: true,
		Cues:    defaultCuePolicy(typ),
	}
	r.nextNo++
	r.byID[sourceID] = td
	r.order = append(r.order, sourceID)
	return td, true
}

// Get returns the TrackDescriptor for sourceID, or nil if unregistered.
func (r *Registry) Get(sourceID string) *TrackDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[sourceID]
}

// Snapshot returns tracks in registration order, safe to range over
// without holding the registry lock.
func (r *Registry) Snapshot() []*TrackDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TrackDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// HasVideo reports whether any enabled video track is registered. The
// splitter and the cue indexer do not consult it; audio tracks keep their
// own cue policy whether or not a video track exists.
func (r *Registry) HasVideo() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		td := r.byID[id]
		if td.Type == TrackVideo && td.Enabled() {
			return true
		}
	}
	return false
}

func defaultCuePolicy(t TrackType) CuePolicy {
	switch t {
	case TrackVideo:
		return CueIFramesOnly
	case TrackAudio, TrackSubtitle:
		return CueNone
	default:
		return CueNone
	}
}

func randomTrackUID() uint64 {
	id := uuid.New()
	var v uint64
	for _, b := range id[:8] {
		v = v<<8 | uint64(b)
	}
	if v == 0 {
		v = 1
	}
	return v
}

// String gives a log-friendly identity for a track, e.g. "#2 V_MPEG4/ISO/AVC".
func (t *TrackDescriptor) String() string {
	return fmt.Sprintf("#%d %s", t.Number, t.CodecID)
}
