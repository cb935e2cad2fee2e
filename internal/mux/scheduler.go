package mux

import (
	"context"
	"log/slog"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
)

// sourceState is the scheduler's per-source bookkeeping: its last Read
// status and whatever packet it has peeked but not yet popped.
type sourceState struct {
	src      PacketSource
	status   Status
	peeked   *Packet
	haveMore bool
}

// Scheduler drives the single-threaded cooperative main loop: round-robin
// polling every PacketSource, picking the packet with the lowest
// AssignedTimecode (tie-broken by SequenceNumber), and handing it to the
// cluster assembler. It also owns sequence number assignment.
type Scheduler struct {
	log       *slog.Logger
	sources   []*sourceState
	assembler *Assembler
	onSplit   SplitObserver

	nextSeq uint64
}

// SplitObserver is notified once per scheduled packet so the splitter can
// decide whether this is the moment to roll the output file. Declared here
// (rather than importing the splitter package) to keep mux free of a
// dependency on segment layout concerns; internal/mux/splitter.go
// implements it.
type SplitObserver interface {
	Observe(p *Packet, writerPos int64) error
}

func NewScheduler(assembler *Assembler, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{log: log, assembler: assembler}
}

// AddSource registers src with the scheduler. Must be called before Run.
func (s *Scheduler) AddSource(src PacketSource) error {
	if err := src.SetHeaders(); err != nil {
		return mkverrors.NewSourceError(src.Identify(), "set_headers", err)
	}
	s.sources = append(s.sources, &sourceState{src: src, status: MoreData})
	return nil
}

// SetSplitObserver wires in the splitter; optional.
func (s *Scheduler) SetSplitObserver(obs SplitObserver) { s.onSplit = obs }

// WriterPositioner exposes the current byte offset, used to let the
// splitter observe file growth without Scheduler importing segment.Writer.
type WriterPositioner interface{ Position() int64 }

// Run drives the main loop until every source is exhausted or ctx is
// cancelled (checked between iterations, so SIGINT drains cleanly).
// Returns the first fatal error encountered, if any; callers must
// still run the closure path afterward regardless of the returned
// error.
func (s *Scheduler) Run(ctx context.Context, writer WriterPositioner) error {
	var firstErr error
	for {
		select {
		case <-ctx.Done():
			s.log.Info("mux loop cancelled")
			return firstErr
		default:
		}

		var winner *sourceState
		anyActive := false
		for _, ss := range s.sources {
			if ss.status == NoMoreData || ss.status == SourceErrored {
				continue
			}
			anyActive = true
			for ss.peeked == nil {
				status, err := ss.src.Read()
				ss.status = status
				if err != nil {
					s.log.Error("source read failed", "source", ss.src.Identify(), "err", err)
					if firstErr == nil {
						firstErr = err
					}
				}
				if status != MoreData {
					break
				}
				if p, ok := ss.src.Peek(); ok {
					s.assignPeekSeq(ss, p)
					break
				}
			}
			if ss.peeked == nil {
				if p, ok := ss.src.Peek(); ok {
					s.assignPeekSeq(ss, p)
				}
			}
			if ss.peeked == nil {
				continue
			}
			if winner == nil || lowerPriority(ss.peeked, winner.peeked) {
				winner = ss
			}
		}

		if !anyActive {
			s.log.Info("mux loop terminating: every source exhausted")
			return firstErr
		}
		if winner == nil {
			// every active source is temporarily holding; retry.
			continue
		}

		p, ok := winner.src.Pop()
		if !ok {
			continue
		}
		winner.peeked = nil

		if td := s.assembler.registry.Get(p.SourceID); td != nil {
			if prev, backwards := td.ObserveTimecode(p.AssignedTimecode); backwards {
				err := mkverrors.NewTimecodeBackwardsError(p.SourceID, prev, p.AssignedTimecode)
				s.log.Error("timecode moved backwards", "source", p.SourceID, "prev", prev, "timecode", p.AssignedTimecode)
				return err
			}
		}

		if err := s.assembler.AddPacket(p); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if mkverrors.IsFatal(err) {
				return err
			}
		}

		if s.onSplit != nil && writer != nil {
			if err := s.onSplit.Observe(p, writer.Position()); err != nil {
				return err
			}
		}
	}
}

// assignPeekSeq stamps a newly-peeked packet with the next sequence number
// and records it as this source's head. SequenceNumber is assigned here,
// at peek time, rather than at Pop: a packet can sit peeked-but-unpopped
// across many Run iterations while other sources' packets are peeked
// around it, and the tie-break in lowerPriority needs a number that
// reflects that real arrival order, not the order packets happen to win
// selection.
func (s *Scheduler) assignPeekSeq(ss *sourceState, p *Packet) {
	ss.peeked = p
	p.SequenceNumber = s.nextSeq
	s.nextSeq++
}

// lowerPriority reports whether candidate should win over current: lower
// AssignedTimecode, tie-broken by lower SequenceNumber (the order in which
// each packet was first peeked off its source).
func lowerPriority(candidate, current *Packet) bool {
	if candidate.AssignedTimecode != current.AssignedTimecode {
		return candidate.AssignedTimecode < current.AssignedTimecode
	}
	return candidate.SequenceNumber < current.SequenceNumber
}
