package ebml

import (
	"fmt"
	"io"
)

// ID is a raw EBML element ID, encoded exactly as it appears on the wire
// (the marker bit of the leading byte is part of the ID, unlike size
// VINTs). Matroska IDs are 1-4 bytes.
type ID []byte

// Element IDs required for bit-exact conformance with the Matroska elements
// named in the external-interfaces section: EBML head, Segment, SegmentInfo,
// Tracks, Cluster, Cues, SeekHead, Attachments, Chapters, Tags and their
// children actually written by this engine.
var (
	EBMLHead             = ID{0x1A, 0x45, 0xDF, 0xA3}
	EBMLVersion          = ID{0x42, 0x86}
	EBMLReadVersion      = ID{0x42, 0xF7}
	EBMLMaxIDLength      = ID{0x42, 0xF2}
	EBMLMaxSizeLength    = ID{0x42, 0xF3}
	DocType              = ID{0x42, 0x82}
	DocTypeVersion       = ID{0x42, 0x87}
	DocTypeReadVersion   = ID{0x42, 0x85}
	Void                 = ID{0xEC}
	Segment              = ID{0x18, 0x53, 0x80, 0x67}
	SeekHead             = ID{0x11, 0x4D, 0x9B, 0x74}
	Seek                 = ID{0x4D, 0xBB}
	SeekID               = ID{0x53, 0xAB}
	SeekPosition         = ID{0x53, 0xAC}
	Info                 = ID{0x15, 0x49, 0xA9, 0x66}
	TimecodeScale        = ID{0x2A, 0xD7, 0xB1}
	Duration             = ID{0x44, 0x89}
	DateUTC              = ID{0x44, 0x61}
	Title                = ID{0x7B, 0xA9}
	MuxingApp            = ID{0x4D, 0x80}
	WritingApp           = ID{0x57, 0x41}
	SegmentUID           = ID{0x73, 0xA4}
	PrevUID              = ID{0x3C, 0xB9, 0x23}
	NextUID              = ID{0x3E, 0xB9, 0x23}
	SegmentFilename      = ID{0x73, 0x84}
	PrevFilename         = ID{0x3C, 0x83, 0xAB}
	NextFilename         = ID{0x3E, 0x83, 0xBB}
	Tracks               = ID{0x16, 0x54, 0xAE, 0x6B}
	TrackEntry           = ID{0xAE}
	TrackNumber          = ID{0xD7}
	TrackUID             = ID{0x73, 0xC5}
	TrackType            = ID{0x83}
	FlagEnabled          = ID{0xB9}
	FlagDefault          = ID{0x88}
	FlagForced           = ID{0x55, 0xAA}
	FlagLacing           = ID{0x9C}
	MinCache             = ID{0x6D, 0xE7}
	MaxCache             = ID{0x6D, 0xF8}
	DefaultDuration      = ID{0x23, 0xE3, 0x83}
	TrackLanguage        = ID{0x22, 0xB5, 0x9C}
	CodecID              = ID{0x86}
	CodecPrivate         = ID{0x63, 0xA2}
	TrackName            = ID{0x53, 0x6E}
	ContentEncodings     = ID{0x6D, 0x80}
	ContentEncoding      = ID{0x62, 0x40}
	ContentCompression   = ID{0x50, 0x34}
	ContentCompAlgo      = ID{0x42, 0x54}
	Video                = ID{0xE0}
	PixelWidth           = ID{0xB0}
	PixelHeight          = ID{0xBA}
	DisplayWidth         = ID{0x54, 0xB0}
	DisplayHeight        = ID{0x54, 0xBA}
	Audio                = ID{0xE1}
	SamplingFrequency    = ID{0xB5}
	Channels             = ID{0x9F}
	BitDepth             = ID{0x62, 0x64}
	Cluster              = ID{0x1F, 0x43, 0xB6, 0x75}
	ClusterTimecode      = ID{0xE7}
	ClusterPosition      = ID{0xA7}
	PrevSize             = ID{0xAB}
	BlockGroup           = ID{0xA0}
	Block                = ID{0xA1}
	SimpleBlock          = ID{0xA3}
	ReferenceBlock       = ID{0xFB}
	ReferencePriority    = ID{0xFA}
	BlockDuration        = ID{0x9B}
	Slices               = ID{0x8E}
	TimeSlice            = ID{0xE8}
	SliceLaceNumber      = ID{0xCC}
	SliceDuration        = ID{0x7B}
	Cues                 = ID{0x1C, 0x53, 0xBB, 0x6B}
	CuePoint             = ID{0xBB}
	CueTime              = ID{0xB3}
	CueTrackPositions    = ID{0xB7}
	CueTrack             = ID{0xF7}
	CueClusterPosition   = ID{0xF1}
	CueBlockNumber       = ID{0x53, 0x78}
	Attachments          = ID{0x19, 0x41, 0xA4, 0x69}
	AttachedFile         = ID{0x61, 0xA7}
	FileDescription      = ID{0x46, 0x7E}
	FileName             = ID{0x46, 0x6E}
	FileMimeType         = ID{0x46, 0x60}
	FileData             = ID{0x46, 0x5C}
	FileUID              = ID{0x46, 0xAE}
	Chapters             = ID{0x10, 0x43, 0xA7, 0x70}
	EditionEntry         = ID{0x45, 0xB9}
	ChapterAtom          = ID{0xB6}
	ChapterUID           = ID{0x73, 0xC4}
	ChapterTimeStart     = ID{0x91}
	ChapterTimeEnd       = ID{0x92}
	ChapterDisplay       = ID{0x80}
	ChapterString        = ID{0x85}
	ChapterLanguage      = ID{0x43, 0x7C}
	ChapterCountry       = ID{0x43, 0x7E}
	ChapterTrack         = ID{0x8F}
	ChapterTrackNumber   = ID{0x89}
	Tags                 = ID{0x12, 0x54, 0xC3, 0x67}
	Tag                  = ID{0x73, 0x73}
	Targets              = ID{0x63, 0xC0}
	TagTrackUID          = ID{0x63, 0xC5}
	SimpleTag            = ID{0x67, 0xC8}
	TagName              = ID{0x45, 0xA3}
	TagString            = ID{0x44, 0x87}
)

// WriteID writes the raw element ID bytes to w.
func WriteID(w io.Writer, id ID) error {
	_, err := w.Write(id)
	return err
}

// ReadID reads a single EBML element ID from r, using the marker-bit width
// rule (identical to size VINTs, but the marker bit is kept as part of the
// returned ID).
func ReadID(r io.Reader) (ID, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return nil, fmt.Errorf("ebml: read id first byte: %w", err)
	}
	width := 0
	for i := 0; i < 4; i++ {
		if first[0]&(0x80>>uint(i)) != 0 {
			width = i + 1
			break
		}
	}
	if width == 0 {
		return nil, fmt.Errorf("ebml: invalid id marker 0x%02x", first[0])
	}
	id := make(ID, width)
	id[0] = first[0]
	if width > 1 {
		if _, err := io.ReadFull(r, id[1:]); err != nil {
			return nil, fmt.Errorf("ebml: read id tail: %w", err)
		}
	}
	return id, nil
}

// Equal reports whether two IDs are the same byte sequence.
func (id ID) Equal(other ID) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}
