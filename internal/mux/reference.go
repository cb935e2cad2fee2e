package mux

import (
	"log/slog"

	"github.com/avmux/mkvmux/internal/bufpool"
)

// ReferenceResolver tracks, per source, the highest timecode that has been
// declared free, and sweeps registered clusters to decide when their
// BlockGroups' payloads may be released and when a cluster itself can be
// dropped from the resolver's bookkeeping.
//
// It stores a (source_id, timecode) -> *BlockGroup index so bref/fref
// lookups resolve in O(1); a ±1 timecode-unit fuzzy fallback absorbs
// demuxer rounding, mirroring the upstream behaviour called out as
// possibly-masking real backwards-timecode bugs (carried as specified,
// not "fixed").
type ReferenceResolver struct {
	log *slog.Logger

	freedMark map[string]int64 // source_id -> highest freed timecode
	index     map[indexKey]*BlockGroup

	clusters []*Cluster
}

type indexKey struct {
	sourceID string
	tc       int64
}

func NewReferenceResolver(log *slog.Logger) *ReferenceResolver {
	if log == nil {
		log = slog.Default()
	}
	return &ReferenceResolver{
		log:       log,
		freedMark: make(map[string]int64),
		index:     make(map[indexKey]*BlockGroup),
	}
}

// RegisterCluster records c for future FreeClusters sweeps. Each of its
// BlockGroups was already indexed by IndexPacket at ingest time (so that
// same-cluster backward references resolve before the cluster closes).
func (r *ReferenceResolver) RegisterCluster(c *Cluster) {
	r.clusters = append(r.clusters, c)
}

// Lookup resolves a bref/fref timecode to the BlockGroup that carries it,
// trying an exact match first and falling back to ±1 timecode unit.
func (r *ReferenceResolver) Lookup(sourceID string, tc int64) *BlockGroup {
	key := indexKey{sourceID: sourceID, tc: tc}
	if bg, ok := r.index[key]; ok {
		return bg
	}
	for _, delta := range [2]int64{-1, 1} {
		if bg, ok := r.index[indexKey{sourceID: sourceID, tc: tc + delta}]; ok {
			r.log.Debug("reference resolved via fuzzy match", "source_id", sourceID, "timecode", tc, "delta", delta)
			return bg
		}
	}
	return nil
}

// IndexPacket records bg under (sourceID, tc) as soon as the assembler
// places a packet, so a later packet in the same still-open cluster can
// resolve a backward reference to it before the cluster closes.
func (r *ReferenceResolver) IndexPacket(sourceID string, tc int64, bg *BlockGroup) {
	r.index[indexKey{sourceID: sourceID, tc: tc}] = bg
}

// FreeReference records that sourceID has no outstanding need for any
// packet at or before tc (called when a keyframe arrives on that source).
func (r *ReferenceResolver) FreeReference(tc int64, sourceID string) {
	if cur, ok := r.freedMark[sourceID]; !ok || tc > cur {
		r.freedMark[sourceID] = tc
	}
}

// AllRefsResolved reports whether every BlockGroup currently in c has had
// its bref/fref satisfied — the precondition the assembler checks before
// closing or rotating a cluster.
func (r *ReferenceResolver) AllRefsResolved(c *Cluster) bool {
	if c == nil {
		return true
	}
	for _, g := range c.Groups {
		if g.BRefBlock == nil && g.FRefBlock == nil {
			continue
		}
		if g.BRefBlock != nil && !r.located(g.BRefBlock) {
			return false
		}
		if g.FRefBlock != nil && !r.located(g.FRefBlock) {
			return false
		}
	}
	return true
}

func (r *ReferenceResolver) located(bg *BlockGroup) bool { return bg != nil }

// FreeClusters performs the two-pass sweep described by the resolver's
// contract: mark superseded BlockGroups using each source's freed-mark,
// then walk remaining BlockGroups to keep any cluster that still has a
// live inbound reference, and finally drop (and return for GC) every
// cluster that is fully rendered with no still-referenced BlockGroups.
func (r *ReferenceResolver) FreeClusters() []*Cluster {
	for _, c := range r.clusters {
		for _, g := range c.Groups {
			mark, ok := r.freedMark[g.SourceID]
			if ok && mark > g.AbsoluteTimecode && g.refcount == 0 {
				g.superseded = true
			}
		}
	}

	stillReferenced := make(map[*Cluster]bool)
	for _, c := range r.clusters {
		for _, g := range c.Groups {
			if g.superseded {
				continue
			}
			if g.BRefBlock != nil {
				stillReferenced[g.BRefBlock.cluster] = true
			}
			if g.FRefBlock != nil {
				stillReferenced[g.FRefBlock.cluster] = true
			}
		}
	}

	var freed []*Cluster
	var kept []*Cluster
	for _, c := range r.clusters {
		if c.rendered && !stillReferenced[c] {
			freed = append(freed, c)
			for _, g := range c.Groups {
				g.freed = true
				for i := range g.Laces {
					bufpool.Put(g.Laces[i].Payload)
					g.Laces[i].Payload = nil
				}
			}
			continue
		}
		kept = append(kept, c)
	}
	r.clusters = kept
	return freed
}

// AllRegisteredClusters returns every cluster the resolver currently
// tracks (rendered or not), used by the assembler to backfill cue
// positions after a Render call.
func (r *ReferenceResolver) AllRegisteredClusters() []*Cluster { return r.clusters }
