package mux

import (
	"log/slog"

	"github.com/avmux/mkvmux/internal/bufpool"
	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/ebml"
)

const (
	// MaxBlocksPerCluster is the default hard cap on blocks per cluster.
	MaxBlocksPerCluster = 65535
	// MaxBytesPerCluster is the soft byte-size budget per cluster (1.5 MiB).
	MaxBytesPerCluster = 1_500_000
	// DefaultMaxNsPerCluster is the default cluster time budget (2s).
	DefaultMaxNsPerCluster int64 = 2_000_000_000
	// MinNsPerCluster / MaxNsPerCluster bound the configurable range (100ms..32s).
	MinNsPerCluster int64 = 100_000_000
	MaxNsPerCluster int64 = 32_000_000_000
)

// Cluster is one in-progress (or fully rendered) Matroska Cluster: a bounded
// time window of BlockGroups across all tracks.
type Cluster struct {
	MinTimecode int64
	MaxTimecode int64

	// PreviousClusterTimecode holds the raw timecode of the cluster
	// rendered immediately before this one, carried for delta coding
	// debugging; Matroska blocks are relative to MinTimecode, not to the
	// previous cluster.
	PreviousClusterTimecode int64

	Groups []*BlockGroup

	byteEstimate int
	rendered     bool
	position     int64 // byte offset once rendered, used by cue entries
}

func newCluster(minTC int64, prevTC int64) *Cluster {
	return &Cluster{MinTimecode: minTC, MaxTimecode: minTC, PreviousClusterTimecode: prevTC}
}

// stagePayload copies payload into a pooled buffer so the BlockGroup it
// lands in owns stable memory independent of the PacketSource's own
// buffers, which may be reused or mutated once Pop returns. The resolver
// releases the buffer back to the pool once the owning cluster frees.
func stagePayload(payload []byte) []byte {
	buf := bufpool.Get(len(payload))
	copy(buf, payload)
	return buf
}

// renderGroup is the per-source scratchpad the assembler keeps while
// deciding whether to extend the open BlockGroup with another lace or
// start a new one.
type renderGroup struct {
	open            *BlockGroup
	acceptMoreLaces bool
}

// CueEntry is one seek-index record: a (track, timecode) pair mapped to a
// cluster's byte position and, optionally, the block number within it.
type CueEntry struct {
	TrackNumber     uint64
	Timecode        int64
	ClusterPosition int64
	BlockNumber     uint64
}

// Assembler owns the in-progress cluster(s), the per-source render groups,
// the cue index and the byte/time/block budgets that decide when a
// cluster closes.
type Assembler struct {
	registry  *Registry
	resolver  *ReferenceResolver
	log       *slog.Logger
	lacing    bool
	timeslice bool

	maxNsPerCluster int64

	groups  map[string]*renderGroup // keyed by source_id
	current *Cluster
	done    []*Cluster // rendered, not yet flushed to writer

	cues []CueEntry

	// blockNum is per-track, 1-based, used for CueBlockNumber.
	blockNum map[uint64]uint64

	firstTimecode int64
	maxTimecode   int64
	haveFirst     bool

	timecodeScale int64
}

// NewAssembler creates a cluster assembler bound to registry and resolver.
// maxNsPerCluster is clamped to [MinNsPerCluster, MaxNsPerCluster].
func NewAssembler(registry *Registry, resolver *ReferenceResolver, maxNsPerCluster int64, lacing, timeslice bool, log *slog.Logger) *Assembler {
	if maxNsPerCluster < MinNsPerCluster {
		maxNsPerCluster = MinNsPerCluster
	}
	if maxNsPerCluster > MaxNsPerCluster {
		maxNsPerCluster = MaxNsPerCluster
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		registry:        registry,
		resolver:        resolver,
		log:             log,
		lacing:          lacing,
		timeslice:       timeslice,
		maxNsPerCluster: maxNsPerCluster,
		groups:          make(map[string]*renderGroup),
		blockNum:        make(map[uint64]uint64),
		timecodeScale:   1_000_000,
	}
}

// Cues returns the accumulated cue index.
func (a *Assembler) Cues() []CueEntry { return a.cues }

// FirstTimecode / MaxTimecode give the segment-level span needed for the
// final Duration computation.
func (a *Assembler) FirstTimecode() int64 { return a.firstTimecode }
func (a *Assembler) MaxTimecode() int64   { return a.maxTimecode }

// AddPacket ingests one packet, possibly rotating the current cluster.
// Returns a non-nil *errors.ReferenceUnresolvedError if a B/P-frame names
// a reference this assembler cannot locate.
func (a *Assembler) AddPacket(p *Packet) error {
	td := a.registry.Get(p.SourceID)
	if td == nil {
		return mkverrors.NewSourceError(p.SourceID, "add_packet", nil)
	}

	if !a.haveFirst {
		a.firstTimecode = p.AssignedTimecode
		a.haveFirst = true
	}
	if p.AssignedTimecode > a.maxTimecode {
		a.maxTimecode = p.AssignedTimecode
	}

	if a.current == nil {
		a.current = newCluster(p.AssignedTimecode, 0)
	}

	delta := p.AssignedTimecode - a.current.MinTimecode
	if delta > a.maxNsPerCluster && a.resolver.AllRefsResolved(a.current) {
		prevRaw := a.current.MinTimecode
		a.closeCurrentCluster()
		a.current = newCluster(p.AssignedTimecode, prevRaw)
	}

	bg, err := a.placeInGroup(p, td)
	if err != nil {
		return err
	}

	a.updateCues(p, td, bg)

	if p.AssignedTimecode > a.current.MaxTimecode {
		a.current.MaxTimecode = p.AssignedTimecode
	}
	a.current.byteEstimate += len(p.Payload) + 16

	a.maybeCloseCluster()
	return nil
}

// placeInGroup appends p to its source's render group, either extending
// the currently open BlockGroup with a lace or opening a new one, and
// resolves p's reference fields.
func (a *Assembler) placeInGroup(p *Packet, td *TrackDescriptor) (*BlockGroup, error) {
	rg, ok := a.groups[p.SourceID]
	if !ok {
		rg = &renderGroup{}
		a.groups[p.SourceID] = rg
	}

	extend := a.lacing && rg.acceptMoreLaces && rg.open != nil && p.IsKeyframe() &&
		rg.open.cluster == a.current

	staged := stagePayload(p.Payload)

	var bg *BlockGroup
	if extend {
		bg = rg.open
		bg.Laces = append(bg.Laces, Lace{Payload: staged, Duration: p.Duration, Seq: p.SequenceNumber})
	} else {
		bg = &BlockGroup{
			Track:             td,
			SourceID:          p.SourceID,
			RelativeTimecode:  p.AssignedTimecode - a.current.MinTimecode,
			AbsoluteTimecode:  p.AssignedTimecode,
			Laces:             []Lace{{Payload: staged, Duration: p.Duration, Seq: p.SequenceNumber}},
			RefPriority:       p.RefPriority,
			DurationMandatory: p.DurationMandatory,
			UseTimeslices:     a.timeslice,
			cluster:           a.current,
		}
		a.current.Groups = append(a.current.Groups, bg)
		rg.open = bg
		rg.acceptMoreLaces = true
	}

	if !extend {
		a.resolver.IndexPacket(p.SourceID, p.AssignedTimecode, bg)
	}

	if err := a.resolveReferences(p, td, bg); err != nil {
		return nil, err
	}

	// An explicit reference (a non-keyframe) closes lacing for this group;
	// the next packet (even if it looks laceable) starts a fresh block so
	// reference fields stay attached to the right BlockGroup.
	if !p.IsKeyframe() {
		rg.acceptMoreLaces = false
	}

	p.AssembledBlock = bg
	return bg, nil
}

// resolveReferences classifies the packet as I/P/B and wires up the
// BlockGroup's BRefBlock/FRefBlock, consulting the resolver to translate a
// reference timecode into the BlockGroup that carries it.
func (a *Assembler) resolveReferences(p *Packet, td *TrackDescriptor, bg *BlockGroup) error {
	if p.BRef == -1 && p.FRef == -1 {
		a.resolver.FreeReference(p.Timecode, p.SourceID)
		return nil
	}
	if p.BRef != -1 {
		ref := a.resolver.Lookup(p.SourceID, p.BRef)
		if ref == nil {
			return mkverrors.NewReferenceUnresolvedError(p.SourceID, p.BRef, "bref", nil)
		}
		bg.BRefBlock = ref
		ref.refcount++
	}
	if p.FRef != -1 {
		ref := a.resolver.Lookup(p.SourceID, p.FRef)
		if ref == nil {
			return mkverrors.NewReferenceUnresolvedError(p.SourceID, p.FRef, "fref", nil)
		}
		bg.FRefBlock = ref
		ref.refcount++
	}
	return nil
}

// updateCues appends a CueEntry according to td's cue policy.
func (a *Assembler) updateCues(p *Packet, td *TrackDescriptor, bg *BlockGroup) {
	switch td.Cues {
	case CueNone:
		return
	case CueIFramesOnly:
		if !p.IsKeyframe() {
			return
		}
	case CueAll:
	}
	a.blockNum[td.Number]++
	a.cues = append(a.cues, CueEntry{
		TrackNumber: td.Number,
		Timecode:    p.AssignedTimecode,
		BlockNumber: a.blockNum[td.Number],
		// ClusterPosition is filled in by FinalizeCuePositions once the
		// owning cluster has been rendered and its byte offset is known.
	})
}

// maybeCloseCluster closes the current cluster if any hard budget is
// exceeded and all references inside it have resolved.
func (a *Assembler) maybeCloseCluster() {
	c := a.current
	if c == nil {
		return
	}
	blockCount := 0
	for _, g := range c.Groups {
		blockCount += len(g.Laces)
	}
	overBudget := blockCount > MaxBlocksPerCluster ||
		c.byteEstimate > MaxBytesPerCluster ||
		(c.MaxTimecode-c.MinTimecode) > a.maxNsPerCluster
	if overBudget && a.resolver.AllRefsResolved(c) {
		a.closeCurrentCluster()
		a.current = nil
	}
}

// closeCurrentCluster moves a.current onto the done queue for Render and
// registers its BlockGroups with the resolver for future freeing.
func (a *Assembler) closeCurrentCluster() {
	if a.current == nil {
		return
	}
	a.current.rendered = false
	a.done = append(a.done, a.current)
	a.resolver.RegisterCluster(a.current)
	for id, rg := range a.groups {
		if rg.open != nil && rg.open.cluster == a.current {
			delete(a.groups, id)
		}
	}
}

// Flush closes whatever cluster is currently open (used at end of stream
// or before a split rollover).
func (a *Assembler) Flush() {
	a.closeCurrentCluster()
	a.current = nil
}

// PendingClusters returns clusters closed but not yet rendered to the
// writer.
func (a *Assembler) PendingClusters() []*Cluster { return a.done }

// Render serialises every pending cluster to w (a segment.Writer), clears
// the pending queue, and records each cluster's byte offset for later cue
// position backfill.
func (a *Assembler) Render(w interface {
	Write([]byte) (int, error)
	Position() int64
}) ([]int64, error) {
	offsets := make([]int64, 0, len(a.done))
	for _, c := range a.done {
		off := w.Position()
		offsets = append(offsets, off)
		c.position = off
		c.rendered = true
		buf, err := renderCluster(c, a.timecodeScale)
		if err != nil {
			return offsets, err
		}
		if _, err := w.Write(buf); err != nil {
			return offsets, mkverrors.NewWriterIOError("cluster.render", err)
		}
	}
	a.FinalizeCuePositions()
	a.done = a.done[:0]
	return offsets, nil
}

// FinalizeCuePositions backfills ClusterPosition on cue entries whose
// cluster has since been rendered. Matches entries by (track, timecode)
// against rendered clusters' groups.
func (a *Assembler) FinalizeCuePositions() {
	for i := range a.cues {
		if a.cues[i].ClusterPosition != 0 {
			continue
		}
		ce := &a.cues[i]
		for _, c := range a.renderedClustersSnapshot() {
			if ce.Timecode >= c.MinTimecode && ce.Timecode <= c.MaxTimecode {
				ce.ClusterPosition = c.position
				break
			}
		}
	}
}

func (a *Assembler) renderedClustersSnapshot() []*Cluster {
	// a.done has just been rendered at the call site (Render), but clusters
	// stay reachable via resolver's bookkeeping until freed, so pull from
	// there too.
	return a.resolver.AllRegisteredClusters()
}

// renderCluster builds the on-wire bytes for one Cluster element.
func renderCluster(c *Cluster, timecodeScale int64) ([]byte, error) {
	b := ebml.NewBuilder()
	b.Uint(ebml.ClusterTimecode, uint64(c.MinTimecode/timecodeScale))
	for _, g := range c.Groups {
		renderBlockGroup(b, g)
	}
	var out []byte
	sink := &appendSink{}
	if _, err := b.WriteTo(sink, ebml.Cluster); err != nil {
		return nil, mkverrors.NewWriterIOError("cluster.render.build", err)
	}
	out = sink.buf
	return out, nil
}

func renderBlockGroup(b *ebml.Builder, g *BlockGroup) {
	if g.IsKeyframe() {
		writeDur, writeSlices := g.setDurationAndTimeslices(0, g.UseTimeslices)
		b.Master(ebml.SimpleBlock, func(inner *ebml.Builder) {
			writeBlockPayload(inner, g)
		})
		_ = writeDur
		_ = writeSlices
		return
	}
	b.Master(ebml.BlockGroup, func(bgb *ebml.Builder) {
		bgb.Master(ebml.Block, func(inner *ebml.Builder) {
			writeBlockPayload(inner, g)
		})
		if g.BRefBlock != nil {
			bgb.Uint(ebml.ReferenceBlock, uint64(g.BRefBlock.RelativeTimecode-g.RelativeTimecode))
		}
		if g.FRefBlock != nil {
			bgb.Uint(ebml.ReferenceBlock, uint64(g.FRefBlock.RelativeTimecode-g.RelativeTimecode))
		}
		if g.RefPriority != 0 {
			bgb.Uint(ebml.ReferencePriority, uint64(g.RefPriority))
		}
		writeDur, _ := g.setDurationAndTimeslices(g.Track.DefaultDuration, g.UseTimeslices)
		if writeDur {
			bgb.Uint(ebml.BlockDuration, uint64(g.TotalDuration()))
		}
	})
}

// writeBlockPayload writes the track number vint, relative timecode,
// flags byte and lace payloads directly into inner's body buffer.
func writeBlockPayload(b *ebml.Builder, g *BlockGroup) {
	b.RawTrackNumber(g.Track.Number)
	b.RawInt16(int16(g.RelativeTimecode / 1_000_000))
	flags := byte(0)
	if len(g.Laces) > 1 {
		flags |= 0x06 // lacing = EBML lacing (xiph/fixed chosen by caller elsewhere; fixed-size default)
	}
	b.RawByte(flags)
	if len(g.Laces) > 1 {
		b.RawByte(byte(len(g.Laces) - 1))
		for _, l := range g.Laces[:len(g.Laces)-1] {
			b.RawVIntSize(uint64(len(l.Payload)))
		}
	}
	for _, l := range g.Laces {
		b.RawBytes(l.Payload)
	}
}

type appendSink struct{ buf []byte }

func (s *appendSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
