// Package engine wires the mux package's scheduler, assembler, reference
// resolver and splitter to the segment package's writer and layout
// manager for one end-to-end run. It is the orchestration layer cmd/mkvmux
// drives; it lives apart from internal/mux so that package can stay free
// of a dependency on internal/segment (which itself depends on mux for
// track/cue/chapter types).
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/mux"
	"github.com/avmux/mkvmux/internal/segment"
)

// Metrics is the narrow surface Engine reports into; internal/metrics.Metrics
// implements it, and tests can pass internal/metrics.Noop{}.
type Metrics interface {
	ClusterRendered(bytes int)
	PacketMuxed(sourceID string)
	WarningIssued(kind string)
	SplitRolled()
}

type noopMetrics struct{}

func (noopMetrics) ClusterRendered(int)  {}
func (noopMetrics) PacketMuxed(string)   {}
func (noopMetrics) WarningIssued(string) {}
func (noopMetrics) SplitRolled()         {}

// Config bundles the per-run data the engine needs beyond the already-wired
// Registry/Assembler/Scheduler/Splitter/Layout.
type Config struct {
	Chapters    mux.ChapterTree
	Tags        mux.TagTree
	Attachments mux.AttachmentSet
	Splitting   bool // true if a split policy is active, affects chapter reservation sizing
}

// Engine drives one mux run: open the segment, run the scheduler to
// completion (or cancellation), and always close the segment in a manner
// that survives a fatal error or SIGINT — the closure path runs regardless
// of how the main loop exited, so the output stays a valid, playable file
// up to the last fully-resolved cluster.
type Engine struct {
	log *slog.Logger
	met Metrics

	registry  *mux.Registry
	resolver  *mux.ReferenceResolver
	assembler *mux.Assembler
	scheduler *mux.Scheduler
	splitter  *mux.Splitter
	hooks     *mux.HookManager
	layout    *segment.Layout

	cfg       Config
	fileIndex int
}

// New assembles an Engine from its already-constructed parts. Callers are
// responsible for registering PacketSources with scheduler and tracks with
// registry before calling Run.
func New(log *slog.Logger, met Metrics, registry *mux.Registry, resolver *mux.ReferenceResolver, assembler *mux.Assembler, scheduler *mux.Scheduler, splitter *mux.Splitter, hooks *mux.HookManager, layout *segment.Layout, cfg Config) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if met == nil {
		met = noopMetrics{}
	}
	e := &Engine{
		log:       log,
		met:       met,
		registry:  registry,
		resolver:  resolver,
		assembler: assembler,
		scheduler: scheduler,
		splitter:  splitter,
		hooks:     hooks,
		layout:    layout,
		cfg:       cfg,
	}
	if splitter != nil {
		splitter.SetRolloverHook(e.rollover)
		scheduler.SetSplitObserver(splitter)
	}
	return e
}

// Warnings returns every advisory condition accumulated across the whole
// run (all files in a split chain), used by the caller to pick exit code 1
// over 0.
func (e *Engine) Warnings() []error { return e.layout.Warnings() }

// Run opens the first output file, drives the scheduler until every source
// is exhausted or ctx is cancelled, and always closes the current output
// file before returning.
func (e *Engine) Run(ctx context.Context) error {
	if e.splitter != nil {
		// PreviousUID falls back to the CLI's --link-to-previous value when
		// this is the first file of a fresh chain.
		e.layout.SetPrevUID(e.splitter.PreviousUID())
		if !e.cfg.Splitting {
			// NextUID is written into SegmentInfo at Open, not Close, so
			// --link-to-next can only be honoured up front, and only when
			// this run can never roll over: a split chain doesn't know
			// its last file's identity until the chain ends.
			e.layout.SetNextUID(e.splitter.ExternalNextUID())
		}
	}
	tracks := e.registry.Snapshot()
	if err := e.layout.Open(tracks, e.cfg.Chapters, e.cfg.Splitting); err != nil {
		return err
	}
	e.hooks.Trigger(mux.Event{Type: mux.EventSegmentOpened, Data: map[string]any{"segment_uid": e.layout.SegmentUID().String()}})

	runErr := e.scheduler.Run(ctx, e.layout)

	e.assembler.Flush()
	closeErr := e.closeSegment(true)
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// closeSegment renders any pending clusters, closes the layout, and raises
// warning/close hooks. isLastFile controls whether the segment_closed hook
// reports this as the chain's end.
func (e *Engine) closeSegment(isLastFile bool) error {
	if e.splitter != nil {
		e.layout.SetChapterOffset(e.splitter.TimecodeOffset())
	}
	if err := e.layout.RenderClusters(e.assembler); err != nil {
		return err
	}
	if err := e.layout.Close(e.assembler, e.cfg.Chapters, e.cfg.Tags, e.cfg.Attachments.ForFile(e.fileIndex), isLastFile); err != nil {
		return err
	}
	for _, w := range e.layout.Warnings() {
		e.met.WarningIssued(warningKind(w))
		e.hooks.Trigger(mux.Event{Type: mux.EventWarningIssued, Data: map[string]any{"error": w.Error()}})
		e.log.Warn("advisory condition during segment close", "err", w)
	}
	e.hooks.Trigger(mux.Event{Type: mux.EventSegmentClosed, Data: map[string]any{"file_index": e.fileIndex, "last": isLastFile}})
	e.resolver.FreeClusters()
	return nil
}

// rollover implements mux.RolloverHook: close the current output file (not
// as the chain's last), open the next one chaining segment UIDs, and
// return the new UID so the splitter continues the chain.
func (e *Engine) rollover(oldFileLastTimecode int64) (uuid.UUID, error) {
	if err := e.closeSegment(false); err != nil {
		return uuid.UUID{}, err
	}
	e.fileIndex++
	e.met.SplitRolled()

	prevUID := e.layout.SegmentUID()
	nextUID := uuid.New()
	e.layout.SetSegmentUID(nextUID)
	e.layout.SetPrevUID(&prevUID)

	tracks := e.registry.Snapshot()
	if err := e.layout.Open(tracks, e.cfg.Chapters, true); err != nil {
		return uuid.UUID{}, err
	}
	e.hooks.Trigger(mux.Event{Type: mux.EventSplitRolled, Data: map[string]any{
		"previous_uid": prevUID.String(),
		"new_uid":      nextUID.String(),
		"at_timecode":  oldFileLastTimecode,
	}})
	return nextUID, nil
}

func warningKind(err error) string {
	switch {
	case mkverrors.IsSpaceReservationOverrun(err):
		return "space_reservation_overrun"
	default:
		return fmt.Sprintf("%T", err)
	}
}
