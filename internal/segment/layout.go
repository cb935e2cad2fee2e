package segment

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/ebml"
	"github.com/avmux/mkvmux/internal/mux"
)

const (
	// MetaSeekReserve is the Void budget reserved up front for the
	// top-level meta-seek head (SeekHead).
	MetaSeekReserve = 4096
	// PostTrackReserve is the Void budget reserved right after Tracks for
	// post-track-header tweaks (packetizers rewriting codec-private data
	// after seeing more input).
	PostTrackReserve = 1024
	// TimecodeScale is fixed at 1ms resolution per the wire format.
	TimecodeScale int64 = 1_000_000
)

// Options bundles the static, per-run configuration the layout manager
// needs across every file in a split chain.
type Options struct {
	MuxingApp, WritingApp string
	Title                 string
	CuesEnabled           bool
	ClustersInMetaSeek    bool
	DateUTC               time.Time
}

// Layout renders and fixes up one output file's Matroska structure: the
// EBML head, Segment, SegmentInfo, Tracks, chapters, clusters, Cues,
// Tags, SeekHead and final size fields, following the open/close sequence
// described for the segment layout manager.
type Layout struct {
	w    *Writer
	opts Options
	log  *slog.Logger

	segmentStart int64
	segmentUID   uuid.UUID
	prevUID      *uuid.UUID
	nextUID      *uuid.UUID

	durationPlaceholder Placeholder
	metaSeekPlaceholder Placeholder
	trackReserve        Placeholder
	chapterReserve      *Placeholder

	firstTimecode int64
	maxTimecode   int64

	warnings []error

	chapterOffset int64 // subtracted from chapter times when linking is off
}

// NewLayout creates a Layout writing through w.
func NewLayout(w *Writer, opts Options, log *slog.Logger) *Layout {
	if log == nil {
		log = slog.Default()
	}
	return &Layout{w: w, opts: opts, log: log, segmentUID: uuid.New()}
}

// SegmentUID / SetSegmentUID let the splitter assign a pre-generated UID
// (e.g. so the previous file can reference this file's UID as its
// NextUID before this file has even opened).
func (l *Layout) SegmentUID() uuid.UUID          { return l.segmentUID }
func (l *Layout) SetSegmentUID(u uuid.UUID)      { l.segmentUID = u }
func (l *Layout) SetPrevUID(u *uuid.UUID)        { l.prevUID = u }
func (l *Layout) SetNextUID(u *uuid.UUID)        { l.nextUID = u }
func (l *Layout) PrevUID() *uuid.UUID            { return l.prevUID }
func (l *Layout) NextUID() *uuid.UUID            { return l.nextUID }

// SetChapterOffset sets the amount subtracted from chapter times at Close,
// for the no_linking case, where chapters authored against the whole
// chain's timeline are reported relative to this file's first packet.
func (l *Layout) SetChapterOffset(offset int64) { l.chapterOffset = offset }

// Warnings returns every advisory (non-fatal) condition accumulated
// during Open/Close, such as a meta-seek overrun. A non-empty result
// means the process should exit with code 1 rather than 0.
func (l *Layout) Warnings() []error { return l.warnings }

// Position returns the writer's current byte offset, satisfying
// mux.WriterPositioner so the scheduler and splitter can observe file
// growth without importing this package.
func (l *Layout) Position() int64 { return l.w.Position() }

// Open runs the file opening sequence (§4.6 steps 1-8) up to but not
// including cluster emission, which the caller drives via the scheduler.
func (l *Layout) Open(tracks []*mux.TrackDescriptor, chapters mux.ChapterTree, splitting bool) error {
	if err := l.writeEBMLHead(); err != nil {
		return err
	}

	l.segmentStart = l.w.Position()
	if err := ebml.WriteMasterUnknownSize(l.w, ebml.Segment); err != nil {
		return err
	}
	// segmentStart should point at the first byte AFTER the Segment
	// header so the final size computation in Close subtracts only the
	// header itself, not the whole preceding file.
	l.segmentStart = l.w.Position()

	ms, err := l.w.Reserve(MetaSeekReserve)
	if err != nil {
		return err
	}
	l.metaSeekPlaceholder = ms

	if err := l.writeSegmentInfo(); err != nil {
		return err
	}

	if err := l.writeTracks(tracks); err != nil {
		return err
	}

	tr, err := l.w.Reserve(PostTrackReserve)
	if err != nil {
		return err
	}
	l.trackReserve = tr

	if !chapters.Empty() {
		if splitting {
			reserve := len(chapters.Render()) + 512
			ph, err := l.w.Reserve(reserve)
			if err != nil {
				return err
			}
			l.chapterReserve = &ph
		} else {
			if _, err := l.w.Write(chapters.Render()); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l *Layout) writeEBMLHead() error {
	b := ebml.NewBuilder()
	b.Uint(ebml.EBMLVersion, 1)
	b.Uint(ebml.EBMLReadVersion, 1)
	b.Uint(ebml.EBMLMaxIDLength, 4)
	b.Uint(ebml.EBMLMaxSizeLength, 8)
	b.Str(ebml.DocType, "matroska")
	b.Uint(ebml.DocTypeVersion, 4)
	b.Uint(ebml.DocTypeReadVersion, 2)
	_, err := b.WriteTo(headWriter{l.w}, ebml.EBMLHead)
	return err
}

type headWriter struct{ w *Writer }

func (h headWriter) Write(p []byte) (int, error) { return h.w.Write(p) }

func (l *Layout) writeSegmentInfo() error {
	b := ebml.NewBuilder()
	b.Uint(ebml.TimecodeScale, uint64(TimecodeScale))

	if l.opts.Title != "" {
		b.Str(ebml.Title, l.opts.Title)
	}
	b.Str(ebml.MuxingApp, l.opts.MuxingApp)
	b.Str(ebml.WritingApp, l.opts.WritingApp)
	if !l.opts.DateUTC.IsZero() {
		b.Uint(ebml.DateUTC, uint64(l.opts.DateUTC.Unix()))
	}
	b.Bin(ebml.SegmentUID, l.segmentUID[:])
	if l.prevUID != nil {
		b.Bin(ebml.PrevUID, (*l.prevUID)[:])
	}
	if l.nextUID != nil {
		b.Bin(ebml.NextUID, (*l.nextUID)[:])
	}
	// Duration is written last and as a fixed-size placeholder (0.0) so
	// its absolute offset can be computed from the builder's total size
	// without re-parsing the rendered bytes.
	b.Float(ebml.Duration, 0.0)

	infoStart := l.w.Position()
	n, err := b.WriteTo(headWriter{l.w}, ebml.Info)
	if err != nil {
		return err
	}
	// Duration is the last 8(+id+size header) bytes written; compute its
	// absolute offset directly rather than re-parsing.
	durationElemSize := len(ebml.Duration) + 1 + 8
	durOffset := infoStart + n - int64(durationElemSize)
	l.durationPlaceholder = Placeholder{offset: durOffset, reservedSize: durationElemSize, w: l.w}
	return nil
}

func (l *Layout) writeTracks(tracks []*mux.TrackDescriptor) error {
	b := ebml.NewBuilder()
	for _, td := range tracks {
		b.Master(ebml.TrackEntry, func(te *ebml.Builder) {
			te.Uint(ebml.TrackNumber, td.Number)
			te.Uint(ebml.TrackUID, td.UID)
			te.Uint(ebml.TrackType, uint64(td.Type))
			te.Str(ebml.CodecID, td.CodecID)
			if len(td.CodecPrivate) > 0 {
				te.Bin(ebml.CodecPrivate, td.CodecPrivate)
			}
			if td.DefaultDuration > 0 {
				te.Uint(ebml.DefaultDuration, uint64(td.DefaultDuration))
			}
			te.Uint(ebml.FlagEnabled, boolUint(td.Enabled()))
			te.Uint(ebml.FlagLacing, 1)
			if td.Language != "" {
				te.Str(ebml.TrackLanguage, td.Language)
			}
			if td.Name != "" {
				te.Str(ebml.TrackName, td.Name)
			}
		})
	}
	_, err := b.WriteTo(headWriter{l.w}, ebml.Tracks)
	return err
}

func boolUint(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// RenderClusters serialises every pending cluster from the assembler.
func (l *Layout) RenderClusters(asm Assembler) error { _, err := asm.Render(l.w); return err }

// Assembler is the minimal surface Layout needs from mux.Assembler, kept
// as a narrow interface so this package does not need every mux export.
type Assembler interface {
	Render(w interface {
		Write([]byte) (int, error)
		Position() int64
	}) ([]int64, error)
	Cues() []mux.CueEntry
	FirstTimecode() int64
	MaxTimecode() int64
}

// Close runs the file closing sequence (§4.6 steps 1-9).
func (l *Layout) Close(asm Assembler, chapters mux.ChapterTree, tags mux.TagTree, attachments []mux.Attachment, isLastFile bool) error {
	if _, err := asm.Render(l.w); err != nil {
		return err
	}

	l.firstTimecode = asm.FirstTimecode()
	l.maxTimecode = asm.MaxTimecode()

	var cuesOffset int64 = -1
	if l.opts.CuesEnabled && len(asm.Cues()) > 0 {
		off := l.w.Position()
		if err := l.renderCues(asm.Cues()); err != nil {
			return err
		}
		cuesOffset = off
	}

	durationNs := l.maxTimecode - l.firstTimecode
	durBuf := &appendSinkSeg{}
	_ = ebml.WriteFloat64(durBuf, ebml.Duration, float64(durationNs)/float64(TimecodeScale))
	if err := l.durationPlaceholder.Overwrite(durBuf.buf); err != nil {
		l.recordWarning(err)
	}

	var chaptersOffset int64 = -1
	if l.chapterReserve != nil && !chapters.Empty() {
		from, to := l.firstTimecode, l.maxTimecode+1
		filtered := chapters.FilterRange(from, to, l.chapterOffset)
		if !filtered.Empty() {
			rendered := filtered.Render()
			if err := l.chapterReserve.Overwrite(rendered); err != nil {
				l.recordWarning(err)
			} else {
				chaptersOffset = l.chapterReserve.Offset()
			}
		}
	}

	var tagsOffset int64 = -1
	if !tags.Empty() {
		off := l.w.Position()
		if _, err := l.w.Write(tags.Render()); err != nil {
			return err
		}
		tagsOffset = off
	}

	var attachOffset int64 = -1
	if len(attachments) > 0 {
		off := l.w.Position()
		if _, err := l.w.Write(mux.RenderAttachments(attachments)); err != nil {
			return err
		}
		attachOffset = off
	}

	seek := l.buildSeekHead(cuesOffset, chaptersOffset, tagsOffset, attachOffset)
	if err := l.metaSeekPlaceholder.Overwrite(seek); err != nil {
		l.recordWarning(err)
		l.log.Warn("meta-seek did not fit reserved space, skipping seek head", "err", err)
	}

	segmentEnd := l.w.Position()
	segmentLen := segmentEnd - l.segmentStart
	return l.rewriteSegmentLength(segmentLen)
}

func (l *Layout) renderCues(cues []mux.CueEntry) error {
	b := ebml.NewBuilder()
	for _, c := range cues {
		b.Master(ebml.CuePoint, func(cb *ebml.Builder) {
			cb.Uint(ebml.CueTime, uint64(c.Timecode/TimecodeScale))
			cb.Master(ebml.CueTrackPositions, func(tb *ebml.Builder) {
				tb.Uint(ebml.CueTrack, c.TrackNumber)
				tb.Uint(ebml.CueClusterPosition, uint64(c.ClusterPosition-l.segmentStart))
				if c.BlockNumber > 1 {
					tb.Uint(ebml.CueBlockNumber, c.BlockNumber)
				}
			})
		})
	}
	_, err := b.WriteTo(headWriter{l.w}, ebml.Cues)
	return err
}

func (l *Layout) buildSeekHead(cuesOff, chaptersOff, tagsOff, attachOff int64) []byte {
	b := ebml.NewBuilder()
	addSeek := func(id ebml.ID, pos int64) {
		if pos < 0 {
			return
		}
		b.Master(ebml.Seek, func(sb *ebml.Builder) {
			sb.Bin(ebml.SeekID, id)
			sb.Uint(ebml.SeekPosition, uint64(pos-l.segmentStart))
		})
	}
	addSeek(ebml.Cues, cuesOff)
	addSeek(ebml.Chapters, chaptersOff)
	addSeek(ebml.Tags, tagsOff)
	addSeek(ebml.Attachments, attachOff)
	sink := &appendSinkSeg{}
	_, _ = b.WriteTo(sink, ebml.SeekHead)
	return sink.buf
}

func (l *Layout) rewriteSegmentLength(length int64) error {
	return l.w.withSavedPosition(func() error {
		if err := l.w.seek(l.segmentStart - 8); err != nil {
			return err
		}
		enc, err := ebml.EncodeVINT(uint64(length), 8)
		if err != nil {
			return mkverrors.NewWriterIOError("layout.rewrite_segment_length", err)
		}
		_, err = l.w.Write(enc)
		return err
	})
}

func (l *Layout) recordWarning(err error) {
	l.warnings = append(l.warnings, err)
}

type appendSinkSeg struct{ buf []byte }

func (s *appendSinkSeg) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
