package segment

import (
	"bytes"
	"testing"

	"github.com/avmux/mkvmux/internal/mux"
)

// fakeAssembler satisfies the Assembler interface Layout needs, without
// pulling in the real cluster assembly machinery.
type fakeAssembler struct {
	renderBytes []byte
	cues        []mux.CueEntry
	first, max  int64
}

func (f *fakeAssembler) Render(w interface {
	Write([]byte) (int, error)
	Position() int64
}) ([]int64, error) {
	if len(f.renderBytes) == 0 {
		return nil, nil
	}
	off := w.Position()
	if _, err := w.Write(f.renderBytes); err != nil {
		return nil, err
	}
	return []int64{off}, nil
}

func (f *fakeAssembler) Cues() []mux.CueEntry { return f.cues }
func (f *fakeAssembler) FirstTimecode() int64 { return f.first }
func (f *fakeAssembler) MaxTimecode() int64   { return f.max }

func testTracks() []*mux.TrackDescriptor {
	reg := mux.NewRegistry()
	td, _ := reg.Register("v", mux.TrackVideo, "V_MPEG4/ISO/AVC")
	td.SetEnabled(true)
	return reg.Snapshot()
}

func TestLayoutOpenThenCloseProducesWellFormedSegment(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	l := NewLayout(w, Options{MuxingApp: "mkvmux", WritingApp: "mkvmux", CuesEnabled: true}, nil)

	if err := l.Open(testTracks(), mux.ChapterTree{}, false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.segmentStart == 0 {
		t.Fatal("segmentStart must be past the EBML head and Segment header")
	}

	asm := &fakeAssembler{renderBytes: []byte{0x1F, 0x43, 0xB6, 0x75, 0x80}, first: 0, max: 2_000_000}
	if err := l.Close(asm, mux.ChapterTree{}, mux.TagTree{}, nil, true); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(l.Warnings()) != 0 {
		t.Fatalf("expected no warnings for a within-budget close, got %v", l.Warnings())
	}

	finalLen := int64(len(sink.buf))
	if finalLen <= l.segmentStart {
		t.Fatalf("final file length %d must exceed segmentStart %d", finalLen, l.segmentStart)
	}
}

func TestLayoutClosePositionAdvancesPastClusters(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	l := NewLayout(w, Options{MuxingApp: "mkvmux", WritingApp: "mkvmux"}, nil)

	if err := l.Open(testTracks(), mux.ChapterTree{}, false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	beforeClose := l.Position()

	asm := &fakeAssembler{renderBytes: []byte{0xAA, 0xBB, 0xCC}, first: 0, max: 1000}
	if err := l.Close(asm, mux.ChapterTree{}, mux.TagTree{}, nil, true); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if l.Position() <= beforeClose {
		t.Fatalf("Position() after Close = %d, want > %d (cluster bytes were appended)", l.Position(), beforeClose)
	}
}

func TestLayoutSetChapterOffsetShiftsRenderedChapterTimes(t *testing.T) {
	chapters := mux.ChapterTree{Editions: []mux.EditionEntry{{UID: 1, Chapters: []mux.ChapterAtom{
		{UID: 1, TimeStart: 5_000_000, Displays: []mux.ChapterDisplay{{String: "c1"}}},
	}}}}
	asm := &fakeAssembler{renderBytes: []byte{0x01}, first: 0, max: 10_000_000}

	render := func(offset int64) []byte {
		sink := &memSink{}
		w := NewWriter(sink, nil)
		l := NewLayout(w, Options{MuxingApp: "mkvmux", WritingApp: "mkvmux"}, nil)
		if err := l.Open(testTracks(), chapters, true); err != nil {
			t.Fatalf("Open: %v", err)
		}
		l.SetChapterOffset(offset)
		if err := l.Close(asm, chapters, mux.TagTree{}, nil, true); err != nil {
			t.Fatalf("Close: %v", err)
		}
		return sink.buf
	}

	unshifted := render(0)
	shifted := render(1_000_000)
	if string(unshifted) == string(shifted) {
		t.Fatal("expected SetChapterOffset to change the rendered chapter bytes")
	}
}

func TestLayoutCueOffsetsAreSegmentRelative(t *testing.T) {
	sink := &memSink{}
	w := NewWriter(sink, nil)
	l := NewLayout(w, Options{MuxingApp: "mkvmux", WritingApp: "mkvmux", CuesEnabled: true}, nil)

	if err := l.Open(testTracks(), mux.ChapterTree{}, false); err != nil {
		t.Fatalf("Open: %v", err)
	}

	asm := &fakeAssembler{
		renderBytes: []byte{0x01, 0x02},
		cues:        []mux.CueEntry{{TrackNumber: 1, Timecode: 0, ClusterPosition: l.segmentStart + 100}},
		first:       0, max: 500,
	}
	if err := l.Close(asm, mux.ChapterTree{}, mux.TagTree{}, nil, true); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(l.Warnings()) != 0 {
		t.Fatalf("unexpected warnings: %v", l.Warnings())
	}
	// CueClusterPosition (0xF1) must hold 100, the offset from segmentStart.
	if !bytes.Contains(sink.buf, []byte{0xF1, 0x81, 100}) {
		t.Fatal("expected CueClusterPosition 100, relative to the Segment's data start")
	}
}
