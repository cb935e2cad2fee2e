package mux

import "github.com/avmux/mkvmux/internal/ebml"

// SimpleTag is one name/value pair inside a Tag.
type SimpleTag struct {
	Name  string
	Value string
}

// Tag targets zero or more tracks (empty TrackUIDs = segment-wide) with a
// list of SimpleTags.
type Tag struct {
	TrackUIDs []uint64
	Simple    []SimpleTag
}

// TagTree is the already-parsed tag XML handed in by the CLI layer.
type TagTree struct {
	Tags []Tag
}

func (t TagTree) Empty() bool { return len(t.Tags) == 0 }

// Render builds the on-wire Tags master element.
func (t TagTree) Render() []byte {
	b := ebml.NewBuilder()
	for _, tag := range t.Tags {
		b.Master(ebml.Tag, func(tb *ebml.Builder) {
			if len(tag.TrackUIDs) > 0 {
				tb.Master(ebml.Targets, func(gb *ebml.Builder) {
					for _, uid := range tag.TrackUIDs {
						gb.Uint(ebml.TagTrackUID, uid)
					}
				})
			}
			for _, st := range tag.Simple {
				tb.Master(ebml.SimpleTag, func(sb *ebml.Builder) {
					sb.Str(ebml.TagName, st.Name)
					sb.Str(ebml.TagString, st.Value)
				})
			}
		})
	}
	buf := &appendSink{}
	_, _ = b.WriteTo(buf, ebml.Tags)
	return buf.buf
}
