package ecs

import (
	"encoding/binary"
	"io"
)

// streamMagic identifies a serialized world snapshot.
const streamMagic uint32 = 0x54424c41 // "TBLA"

const streamVersion uint16 = 1

type streamSegment uint8

const (
	segmentHeader streamSegment = iota
	segmentComponents
	segmentTables
	segmentDone
)

// Stream walks a world's tables read-only and produces a byte stream in
// caller-driven pulls: a header, the component descriptor segment, then
// one segment per archetype (type ids, entity column, raw data columns).
// The world must not be mutated while a stream is open.
type Stream struct {
	world   *World
	segment streamSegment
	cursor  int
	pending []byte
}

// OpenStream starts a snapshot stream over the world.
func (w *World) OpenStream() *Stream {
	w.log.Debug("stream opened")
	return &Stream{world: w}
}

// Read implements io.Reader. It fills p with as many snapshot bytes as fit
// and returns io.EOF once every segment is drained.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 && s.segment != segmentDone {
		s.fill()
	}
	if len(s.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Stream) fill() {
	switch s.segment {
	case segmentHeader:
		s.pending = binary.LittleEndian.AppendUint32(s.pending, streamMagic)
		s.pending = binary.LittleEndian.AppendUint16(s.pending, streamVersion)
		id := s.world.id
		s.pending = append(s.pending, id[:]...)
		s.segment = segmentComponents
		s.cursor = 0
	case segmentComponents:
		ordered := s.world.components.ordered
		if s.cursor == 0 {
			s.pending = binary.LittleEndian.AppendUint32(s.pending, uint32(len(ordered)))
		}
		if s.cursor >= len(ordered) {
			s.segment = segmentTables
			s.cursor = 0
			return
		}
		d := ordered[s.cursor]
		s.cursor++
		s.pending = binary.LittleEndian.AppendUint64(s.pending, uint64(d.ID))
		s.pending = binary.LittleEndian.AppendUint32(s.pending, uint32(d.Size))
		s.pending = binary.LittleEndian.AppendUint32(s.pending, uint32(len(d.Name)))
		s.pending = append(s.pending, d.Name...)
	case segmentTables:
		tables := s.world.store.list
		if s.cursor == 0 {
			s.pending = binary.LittleEndian.AppendUint32(s.pending, uint32(len(tables)))
		}
		if s.cursor >= len(tables) {
			s.segment = segmentDone
			return
		}
		a := tables[s.cursor]
		s.cursor++
		s.pending = binary.LittleEndian.AppendUint32(s.pending, uint32(len(a.typ)))
		for _, id := range a.typ {
			s.pending = binary.LittleEndian.AppendUint64(s.pending, uint64(id))
		}
		s.pending = binary.LittleEndian.AppendUint32(s.pending, uint32(a.Len()))
		for _, e := range a.entities {
			s.pending = binary.LittleEndian.AppendUint64(s.pending, uint64(e))
		}
		for _, c := range a.columns {
			s.pending = append(s.pending, c.bytes()...)
		}
	}
}
