package mux

import (
	"context"
	"errors"
	"testing"
)

var errSetHeaders = errors.New("boom")

// fakeStep describes what one Read call on a fakeSource does: the status
// to report and, optionally, a packet to make available afterward.
type fakeStep struct {
	status Status
	packet *Packet
}

type fakeSource struct {
	id         string
	steps      []fakeStep
	idx        int
	queue      []*Packet
	headersErr error
}

func (f *fakeSource) Read() (Status, error) {
	if f.idx >= len(f.steps) {
		return NoMoreData, nil
	}
	st := f.steps[f.idx]
	f.idx++
	if st.packet != nil {
		f.queue = append(f.queue, st.packet)
	}
	return st.status, nil
}

func (f *fakeSource) PacketAvailable() uint { return uint(len(f.queue)) }

func (f *fakeSource) Peek() (*Packet, bool) {
	if len(f.queue) == 0 {
		return nil, false
	}
	return f.queue[0], true
}

func (f *fakeSource) Pop() (*Packet, bool) {
	if len(f.queue) == 0 {
		return nil, false
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, true
}

func (f *fakeSource) SetHeaders() error { return f.headersErr }
func (f *fakeSource) Identify() string  { return f.id }

func newSchedulerFixture(t *testing.T) (*Scheduler, *Assembler, *Registry) {
	t.Helper()
	reg := NewRegistry()
	reg.Register("v", TrackVideo, "V_MPEG4/ISO/AVC")
	reg.Register("a", TrackAudio, "A_AAC")
	res := NewReferenceResolver(nil)
	asm := NewAssembler(reg, res, DefaultMaxNsPerCluster, false, false, nil)
	return NewScheduler(asm, nil), asm, reg
}

func TestSchedulerOrdersByAssignedTimecode(t *testing.T) {
	s, asm, _ := newSchedulerFixture(t)

	v := &fakeSource{id: "v", steps: []fakeStep{
		{status: MoreData, packet: keyframe(0)},
		{status: MoreData, packet: keyframe(20_000_000)},
		{status: NoMoreData},
	}}
	a := &fakeSource{id: "a", steps: []fakeStep{
		{status: MoreData, packet: &Packet{SourceID: "a", Timecode: 10_000_000, AssignedTimecode: 10_000_000, BRef: -1, FRef: -1, Payload: []byte{0x0a}}},
		{status: NoMoreData},
	}}

	if err := s.AddSource(v); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSource(a); err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if asm.current == nil || len(asm.current.Groups) != 3 {
		t.Fatalf("expected 3 placed groups, got %+v", asm.current)
	}
	want := []int64{0, 10_000_000, 20_000_000}
	for i, bg := range asm.current.Groups {
		if bg.AbsoluteTimecode != want[i] {
			t.Fatalf("group %d: got timecode %d, want %d (scheduler must order by AssignedTimecode)", i, bg.AbsoluteTimecode, want[i])
		}
	}
}

func TestSchedulerKeepsPollingTemporarilyHoldingSource(t *testing.T) {
	s, asm, _ := newSchedulerFixture(t)

	slow := &fakeSource{id: "v", steps: []fakeStep{
		{status: TemporarilyHolding},
		{status: TemporarilyHolding},
		{status: MoreData, packet: keyframe(0)},
		{status: NoMoreData},
	}}

	if err := s.AddSource(slow); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if asm.current == nil || len(asm.current.Groups) != 1 {
		t.Fatalf("expected the held packet to eventually be scheduled, got %+v", asm.current)
	}
}

func TestSchedulerTieBreaksBySequenceNumber(t *testing.T) {
	s, asm, _ := newSchedulerFixture(t)

	v := &fakeSource{id: "v", steps: []fakeStep{
		{status: MoreData, packet: keyframe(1000)},
		{status: NoMoreData},
	}}
	a := &fakeSource{id: "a", steps: []fakeStep{
		{status: MoreData, packet: &Packet{SourceID: "a", Timecode: 1000, AssignedTimecode: 1000, BRef: -1, FRef: -1, Payload: []byte{0x0a}}},
		{status: NoMoreData},
	}}

	if err := s.AddSource(v); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSource(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(asm.current.Groups) != 2 {
		t.Fatalf("expected both same-timecode packets placed, got %d", len(asm.current.Groups))
	}
	if asm.current.Groups[0].SourceID != "v" {
		t.Fatalf("expected the source polled first (lower sequence number) to win the tie, got %q first", asm.current.Groups[0].SourceID)
	}
}

func TestSchedulerDetectsTimecodeBackwards(t *testing.T) {
	s, _, _ := newSchedulerFixture(t)

	v := &fakeSource{id: "v", steps: []fakeStep{
		{status: MoreData, packet: keyframe(10_000_000)},
		{status: MoreData, packet: keyframe(5_000_000)},
		{status: NoMoreData},
	}}
	if err := s.AddSource(v); err != nil {
		t.Fatal(err)
	}
	err := s.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected a timecode-backwards error")
	}
}

func TestAddSourceSurfacesSetHeadersError(t *testing.T) {
	s, _, _ := newSchedulerFixture(t)
	boom := &fakeSource{id: "v", headersErr: errSetHeaders}
	if err := s.AddSource(boom); err == nil {
		t.Fatal("expected AddSource to surface SetHeaders' error as a SourceError")
	}
}
