package mux

import (
	"testing"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
)

func newTestAssembler(t *testing.T, maxNs int64, lacing bool) (*Assembler, *Registry) {
	t.Helper()
	reg := NewRegistry()
	reg.Register("v", TrackVideo, "V_MPEG4/ISO/AVC")
	res := NewReferenceResolver(nil)
	return NewAssembler(reg, res, maxNs, lacing, false, nil), reg
}

func keyframe(tc int64) *Packet {
	return &Packet{SourceID: "v", Timecode: tc, AssignedTimecode: tc, BRef: -1, FRef: -1, Payload: []byte{0x01}}
}

func TestAssemblerLacesConsecutiveKeyframesWhenEnabled(t *testing.T) {
	a, _ := newTestAssembler(t, DefaultMaxNsPerCluster, true)
	for _, tc := range []int64{0, 10_000_000, 20_000_000} {
		if err := a.AddPacket(keyframe(tc)); err != nil {
			t.Fatalf("AddPacket(%d): %v", tc, err)
		}
	}
	if a.current == nil || len(a.current.Groups) != 1 {
		t.Fatalf("expected one laced BlockGroup, got cluster=%v", a.current)
	}
	if got := len(a.current.Groups[0].Laces); got != 3 {
		t.Fatalf("expected 3 laces, got %d", got)
	}
}

func TestAssemblerDoesNotLaceWhenDisabled(t *testing.T) {
	a, _ := newTestAssembler(t, DefaultMaxNsPerCluster, false)
	for _, tc := range []int64{0, 10_000_000} {
		if err := a.AddPacket(keyframe(tc)); err != nil {
			t.Fatalf("AddPacket(%d): %v", tc, err)
		}
	}
	if got := len(a.current.Groups); got != 2 {
		t.Fatalf("expected 2 separate BlockGroups with lacing disabled, got %d", got)
	}
}

func TestAssemblerClosesClusterOnTimeBudget(t *testing.T) {
	const budget = 100 * 1_000_000 // 100ms, the configurable floor
	a, _ := newTestAssembler(t, budget, false)
	if err := a.AddPacket(keyframe(0)); err != nil {
		t.Fatal(err)
	}
	if err := a.AddPacket(keyframe(budget + 1)); err != nil {
		t.Fatal(err)
	}
	if len(a.done) != 1 {
		t.Fatalf("expected the first cluster closed onto done, got %d pending", len(a.done))
	}
	if a.current == nil || a.current.MinTimecode != budget+1 {
		t.Fatalf("expected a fresh cluster starting at %d, got %+v", budget+1, a.current)
	}
}

func TestAssemblerCuePolicyIFramesOnly(t *testing.T) {
	a, reg := newTestAssembler(t, DefaultMaxNsPerCluster, false)
	td := reg.Get("v")
	if td.Cues != CueIFramesOnly {
		t.Fatalf("expected default video cue policy CueIFramesOnly, got %v", td.Cues)
	}
	if err := a.AddPacket(keyframe(5_000_000)); err != nil {
		t.Fatal(err)
	}
	// BRef must exactly name the referenced packet's assigned timecode for
	// the resolver's index lookup to hit.
	nonKey := &Packet{SourceID: "v", Timecode: 10_000_000, AssignedTimecode: 10_000_000, BRef: 5_000_000, FRef: -1, Payload: []byte{0x02}}
	if err := a.AddPacket(nonKey); err != nil {
		t.Fatal(err)
	}
	if got := len(a.cues); got != 1 {
		t.Fatalf("expected exactly 1 cue entry (the keyframe only), got %d", got)
	}
}

func TestAssemblerUnresolvedReferenceError(t *testing.T) {
	a, _ := newTestAssembler(t, DefaultMaxNsPerCluster, false)
	p := &Packet{SourceID: "v", Timecode: 10_000_000, AssignedTimecode: 10_000_000, BRef: 999_000_000, FRef: -1, Payload: []byte{0x02}}
	err := a.AddPacket(p)
	if err == nil {
		t.Fatal("expected a reference-unresolved error")
	}
	if !mkverrors.IsReferenceUnresolved(err) {
		t.Fatalf("expected IsReferenceUnresolved, got %v", err)
	}
}

func TestAssemblerUnregisteredSourceIsSourceError(t *testing.T) {
	a, _ := newTestAssembler(t, DefaultMaxNsPerCluster, false)
	p := &Packet{SourceID: "ghost", Timecode: 0, AssignedTimecode: 0, Payload: []byte{0x01}}
	err := a.AddPacket(p)
	if err == nil {
		t.Fatal("expected a source error for an unregistered source_id")
	}
	if !mkverrors.IsSourceError(err) {
		t.Fatalf("expected IsSourceError, got %v", err)
	}
}
