package sources

import (
	"encoding/binary"
	"io"
	"sync"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/ebml"
	"github.com/avmux/mkvmux/internal/mux"
)

// MatroskaSource re-demuxes an existing Matroska file back into packets —
// one of the input container types named in spec §1 ("existing Matroska
// files"). It walks top-level Segment children looking for Clusters and
// unpacks the Block/SimpleBlock layout this same engine writes (track
// number VINT, signed 16-bit relative timecode, flags byte, and — for the
// fixed-size lacing this engine emits — a lace count and VINT frame
// sizes). Real third-party Matroska demuxers handle the full element tree
// (Tags, Chapters, Attachments, arbitrary lacing modes); this reference
// implementation only needs to round-trip what this engine's own writer
// produces, for testing and for single-file remux scenarios.
type MatroskaSource struct {
	id  string
	r   io.Reader
	typ mux.TrackType

	clusterTC int64 // current cluster's base timecode, in TimecodeScale ticks
	scale     int64

	mu     sync.Mutex
	queue  []*mux.Packet
	atEOF  bool
	lastTC int64
}

// NewMatroskaSource wraps r, positioned either at the start of the file or
// at the start of a Segment's children: an EBML head is skipped like any
// other non-Cluster element, and a Segment header is stepped into.
func NewMatroskaSource(id string, r io.Reader, typ mux.TrackType, timecodeScale int64) *MatroskaSource {
	if timecodeScale == 0 {
		timecodeScale = 1_000_000
	}
	return &MatroskaSource{id: id, r: r, typ: typ, scale: timecodeScale}
}

// Read consumes one top-level element per call: a Cluster is unpacked into
// queued packets, a Segment header is stepped into, and any other element
// is skipped (reported as TemporarilyHolding). EOF reports NoMoreData.
func (m *MatroskaSource) Read() (mux.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.atEOF {
		return mux.NoMoreData, nil
	}

	id, err := ebml.ReadID(m.r)
	if err == io.EOF {
		m.atEOF = true
		return mux.NoMoreData, nil
	}
	if err != nil {
		return mux.SourceErrored, mkverrors.NewSourceError(m.id, "read_id", err)
	}
	size, _, err := ebml.DecodeVINT(m.r)
	if err != nil {
		return mux.SourceErrored, mkverrors.NewSourceError(m.id, "read_size", err)
	}
	if id.Equal(ebml.Segment) {
		// Step into the Segment: its children follow directly.
		return mux.TemporarilyHolding, nil
	}
	if !id.Equal(ebml.Cluster) {
		if _, err := io.CopyN(io.Discard, m.r, int64(size)); err != nil {
			return mux.SourceErrored, mkverrors.NewSourceError(m.id, "skip_element", err)
		}
		return mux.TemporarilyHolding, nil
	}

	body := io.LimitReader(m.r, int64(size))
	if err := m.readCluster(body); err != nil {
		return mux.SourceErrored, mkverrors.NewSourceError(m.id, "read_cluster", err)
	}
	if len(m.queue) > 0 {
		return mux.MoreData, nil
	}
	return mux.TemporarilyHolding, nil
}

func (m *MatroskaSource) readCluster(body io.Reader) error {
	for {
		id, err := ebml.ReadID(body)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		size, _, err := ebml.DecodeVINT(body)
		if err != nil {
			return err
		}
		switch {
		case id.Equal(ebml.ClusterTimecode):
			tc, err := ebml.ReadUint(body, size)
			if err != nil {
				return err
			}
			m.clusterTC = int64(tc)
		case id.Equal(ebml.SimpleBlock):
			if err := m.readBlockPayload(io.LimitReader(body, int64(size))); err != nil {
				return err
			}
		case id.Equal(ebml.BlockGroup):
			if err := m.readBlockGroup(io.LimitReader(body, int64(size))); err != nil {
				return err
			}
		default:
			if _, err := io.CopyN(io.Discard, body, int64(size)); err != nil {
				return err
			}
		}
	}
}

func (m *MatroskaSource) readBlockGroup(body io.Reader) error {
	for {
		id, err := ebml.ReadID(body)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		size, _, err := ebml.DecodeVINT(body)
		if err != nil {
			return err
		}
		if id.Equal(ebml.Block) {
			if err := m.readBlockPayload(io.LimitReader(body, int64(size))); err != nil {
				return err
			}
			continue
		}
		if _, err := io.CopyN(io.Discard, body, int64(size)); err != nil {
			return err
		}
	}
}

func (m *MatroskaSource) readBlockPayload(body io.Reader) error {
	_, _, err := ebml.DecodeVINT(body) // track number; single source ignores multiplexed tracks
	if err != nil {
		return err
	}
	var tcBuf [2]byte
	if _, err := io.ReadFull(body, tcBuf[:]); err != nil {
		return err
	}
	relTC := int16(binary.BigEndian.Uint16(tcBuf[:]))
	var flags [1]byte
	if _, err := io.ReadFull(body, flags[:]); err != nil {
		return err
	}
	laced := flags[0]&0x06 != 0
	var sizes []uint64
	if laced {
		var countBuf [1]byte
		if _, err := io.ReadFull(body, countBuf[:]); err != nil {
			return err
		}
		count := int(countBuf[0]) + 1
		for i := 0; i < count-1; i++ {
			v, _, err := ebml.DecodeVINT(body)
			if err != nil {
				return err
			}
			sizes = append(sizes, v)
		}
	}
	frames, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	tc := (m.clusterTC + int64(relTC)) * m.scale

	if len(sizes) == 0 {
		m.enqueue(frames, tc)
		return nil
	}
	off := 0
	for _, sz := range sizes {
		m.enqueue(frames[off:off+int(sz)], tc)
		off += int(sz)
	}
	m.enqueue(frames[off:], tc)
	return nil
}

func (m *MatroskaSource) enqueue(payload []byte, tc int64) {
	cp := append([]byte(nil), payload...)
	// This reference demuxer doesn't decode ReferenceBlock (see the type
	// doc comment), so every packet it produces is reported as having no
	// outstanding reference.
	m.queue = append(m.queue, &mux.Packet{Payload: cp, SourceID: m.id, Timecode: tc, AssignedTimecode: tc, BRef: -1, FRef: -1})
	m.lastTC = tc
}

func (m *MatroskaSource) PacketAvailable() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint(len(m.queue))
}

func (m *MatroskaSource) Peek() (*mux.Packet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	return m.queue[0], true
}

func (m *MatroskaSource) Pop() (*mux.Packet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	p := m.queue[0]
	m.queue = m.queue[1:]
	return p, true
}

func (m *MatroskaSource) SetHeaders() error { return nil }
func (m *MatroskaSource) Identify() string  { return m.id }

var _ mux.PacketSource = (*MatroskaSource)(nil)
