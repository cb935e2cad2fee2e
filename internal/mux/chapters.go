package mux

import "github.com/avmux/mkvmux/internal/ebml"

// ChapterDisplay is one language/country-tagged title string for a
// ChapterAtom.
type ChapterDisplay struct {
	String   string
	Language string
	Country  string
}

// ChapterAtom is one chapter entry. TimeEnd of 0 means "open-ended, runs
// to the next chapter or end of file."
type ChapterAtom struct {
	UID       uint64
	TimeStart int64 // ns
	TimeEnd   int64 // ns, 0 = unset
	Displays  []ChapterDisplay
	TrackUIDs []uint64 // empty = applies to all tracks
}

// EditionEntry groups a list of ChapterAtoms, mirroring the Matroska
// element of the same name.
type EditionEntry struct {
	UID      uint64
	Ordered  bool
	Chapters []ChapterAtom
}

// ChapterTree is the already-parsed chapter XML handed in by the CLI
// layer (chapter/tag XML parsing itself is out of scope for this engine;
// see spec §6).
type ChapterTree struct {
	Editions []EditionEntry
}

// FilterRange returns a copy of t containing only chapters whose
// TimeStart falls in [from, to), with TimeStart/TimeEnd shifted by
// -offset. Used on split boundaries (§4.5/§4.6) so each output file gets
// only the chapters that fall within it, time-adjusted when linking is
// disabled.
func (t ChapterTree) FilterRange(from, to, offset int64) ChapterTree {
	out := ChapterTree{}
	for _, ed := range t.Editions {
		var kept []ChapterAtom
		for _, ch := range ed.Chapters {
			if ch.TimeStart < from || ch.TimeStart >= to {
				continue
			}
			shifted := ch
			shifted.TimeStart -= offset
			if shifted.TimeEnd > 0 {
				shifted.TimeEnd -= offset
			}
			kept = append(kept, shifted)
		}
		if len(kept) == 0 {
			continue
		}
		out.Editions = append(out.Editions, EditionEntry{UID: ed.UID, Ordered: ed.Ordered, Chapters: kept})
	}
	return out
}

// Empty reports whether the tree has no chapters at all.
func (t ChapterTree) Empty() bool {
	for _, ed := range t.Editions {
		if len(ed.Chapters) > 0 {
			return false
		}
	}
	return true
}

// Render builds the on-wire Chapters master element.
func (t ChapterTree) Render() []byte {
	b := ebml.NewBuilder()
	for _, ed := range t.Editions {
		b.Master(ebml.EditionEntry, func(edb *ebml.Builder) {
			for _, ch := range ed.Chapters {
				edb.Master(ebml.ChapterAtom, func(cb *ebml.Builder) {
					cb.Uint(ebml.ChapterUID, ch.UID)
					cb.Uint(ebml.ChapterTimeStart, uint64(ch.TimeStart))
					if ch.TimeEnd > 0 {
						cb.Uint(ebml.ChapterTimeEnd, uint64(ch.TimeEnd))
					}
					for _, d := range ch.Displays {
						cb.Master(ebml.ChapterDisplay, func(db *ebml.Builder) {
							db.Str(ebml.ChapterString, d.String)
							if d.Language != "" {
								db.Str(ebml.ChapterLanguage, d.Language)
							}
							if d.Country != "" {
								db.Str(ebml.ChapterCountry, d.Country)
							}
						})
					}
					for _, tu := range ch.TrackUIDs {
						cb.Master(ebml.ChapterTrack, func(tb *ebml.Builder) {
							tb.Uint(ebml.ChapterTrackNumber, tu)
						})
					}
				})
			}
		})
	}
	buf := &appendSink{}
	_, _ = b.WriteTo(buf, ebml.Chapters)
	return buf.buf
}
