package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/avmux/mkvmux/internal/mux"
	"github.com/avmux/mkvmux/internal/mux/sources"
	"github.com/avmux/mkvmux/internal/segment"
)

// memSink is a minimal in-memory segment.Sink, local to this package's
// tests since segment.memSink is unexported.
type memSink struct {
	buf []byte
	pos int64
}

func (m *memSink) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memSink) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return 0, errors.New("memSink only supports SeekStart")
	}
	m.pos = offset
	return m.pos, nil
}

func newTestEngine(t *testing.T) (*Engine, *memSink) {
	t.Helper()
	registry := mux.NewRegistry()
	td, _ := registry.Register("v", mux.TrackVideo, "V_MPEG4/ISO/AVC")
	td.SetEnabled(true)

	resolver := mux.NewReferenceResolver(nil)
	assembler := mux.NewAssembler(registry, resolver, mux.DefaultMaxNsPerCluster, true, false, nil)
	scheduler := mux.NewScheduler(assembler, nil)

	src := sources.NewRawSource("v", mux.TrackVideo, "V_MPEG4/ISO/AVC", nil)
	if err := scheduler.AddSource(src); err != nil {
		t.Fatal(err)
	}
	src.Push(sources.Frame{Payload: []byte{0x01}, Timecode: 0, BRef: -1, FRef: -1})
	src.Push(sources.Frame{Payload: []byte{0x02}, Timecode: 10_000_000, BRef: -1, FRef: -1})
	src.Push(sources.Frame{Payload: []byte{0x03}, Timecode: 20_000_000, BRef: -1, FRef: -1})
	src.Close()

	hooks := mux.NewHookManager(nil)
	sink := &memSink{}
	writer := segment.NewWriter(sink, nil)
	layout := segment.NewLayout(writer, segment.Options{
		MuxingApp: "mkvmux", WritingApp: "mkvmux", CuesEnabled: true, ClustersInMetaSeek: true,
	}, nil)

	e := New(nil, nil, registry, resolver, assembler, scheduler, nil, hooks, layout, Config{})
	return e, sink
}

func TestEngineRunProducesNonEmptyOutput(t *testing.T) {
	e, sink := newTestEngine(t)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.buf) == 0 {
		t.Fatal("expected a non-empty output file after Run")
	}
	if len(e.Warnings()) != 0 {
		t.Fatalf("expected no warnings, got %v", e.Warnings())
	}
}

func TestEngineRunAppliesExternalLinkUIDs(t *testing.T) {
	registry := mux.NewRegistry()
	td, _ := registry.Register("v", mux.TrackVideo, "V_MPEG4/ISO/AVC")
	td.SetEnabled(true)

	resolver := mux.NewReferenceResolver(nil)
	assembler := mux.NewAssembler(registry, resolver, mux.DefaultMaxNsPerCluster, true, false, nil)
	scheduler := mux.NewScheduler(assembler, nil)

	src := sources.NewRawSource("v", mux.TrackVideo, "V_MPEG4/ISO/AVC", nil)
	if err := scheduler.AddSource(src); err != nil {
		t.Fatal(err)
	}
	src.Push(sources.Frame{Payload: []byte{0x01}, Timecode: 0, BRef: -1, FRef: -1})
	src.Close()

	splitter := mux.NewSplitter(registry, mux.SplitNone, 0, 0, mux.LinkNone, "v", nil)
	prevUID := uuid.New()
	nextUID := uuid.New()
	splitter.SetExternalPrevUID(prevUID)
	splitter.SetExternalNextUID(nextUID)

	sink := &memSink{}
	writer := segment.NewWriter(sink, nil)
	layout := segment.NewLayout(writer, segment.Options{MuxingApp: "mkvmux", WritingApp: "mkvmux"}, nil)

	e := New(nil, nil, registry, resolver, assembler, scheduler, splitter, mux.NewHookManager(nil), layout, Config{})
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := layout.PrevUID(); got == nil || *got != prevUID {
		t.Fatalf("layout PrevUID = %v, want the splitter's external previous UID %v", got, prevUID)
	}
	if got := layout.NextUID(); got == nil || *got != nextUID {
		t.Fatalf("layout NextUID = %v, want the splitter's external next UID %v", got, nextUID)
	}
}

func TestEngineRunIsIdempotentAboutClosingOnCancelledContext(t *testing.T) {
	e, sink := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run with a pre-cancelled context: %v", err)
	}
	if len(sink.buf) == 0 {
		t.Fatal("expected the close path to still produce a valid (if truncated) file")
	}
}
