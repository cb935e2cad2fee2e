package mux

import "github.com/avmux/mkvmux/internal/ebml"

// Attachment is one file attached to the output (e.g. a font or cover
// image). AllFiles selects whether it is written to every split output
// file or only the first one.
type Attachment struct {
	UID         uint64
	Filename    string
	MimeType    string
	Description string
	Data        []byte
	AllFiles    bool
}

// AttachmentSet is the full list configured for a mux run.
type AttachmentSet struct {
	Items []Attachment
}

// ForFile returns the attachments that belong in a given output file
// index (0-based), applying the AllFiles/first-file-only policy.
func (s AttachmentSet) ForFile(fileIndex int) []Attachment {
	if fileIndex == 0 {
		return s.Items
	}
	var out []Attachment
	for _, a := range s.Items {
		if a.AllFiles {
			out = append(out, a)
		}
	}
	return out
}

func (s AttachmentSet) Empty() bool { return len(s.Items) == 0 }

// Render builds the on-wire Attachments master element for the given
// file's attachment subset.
func RenderAttachments(items []Attachment) []byte {
	b := ebml.NewBuilder()
	for _, a := range items {
		b.Master(ebml.AttachedFile, func(ab *ebml.Builder) {
			if a.Description != "" {
				ab.Str(ebml.FileDescription, a.Description)
			}
			ab.Str(ebml.FileName, a.Filename)
			ab.Str(ebml.FileMimeType, a.MimeType)
			ab.Bin(ebml.FileData, a.Data)
			ab.Uint(ebml.FileUID, a.UID)
		})
	}
	buf := &appendSink{}
	_, _ = b.WriteTo(buf, ebml.Attachments)
	return buf.buf
}
