package ecs

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Store interns archetypes by their canonical sorted type. The type key is
// hashed over the id list; collisions fall back to comparing the lists.
// The empty archetype always exists and is the initial location of every
// new entity.
type Store struct {
	registry *componentRegistry
	buckets  map[uint64][]*Archetype
	list     []*Archetype
	empty    *Archetype
	onCreate func(*Archetype)
}

func newStore(registry *componentRegistry) *Store {
	s := &Store{
		registry: registry,
		buckets:  make(map[uint64][]*Archetype),
	}
	s.empty = s.getOrCreate(nil)
	return s
}

func typeKey(typ []EntityId) uint64 {
	h := xxhash.New()
	var b [8]byte
	for _, id := range typ {
		binary.LittleEndian.PutUint64(b[:], uint64(id))
		h.Write(b[:])
	}
	return h.Sum64()
}

// getOrCreate returns the archetype for the sorted type, creating and
// interning it on first use. Idempotent: the same type always yields the
// same pointer.
func (s *Store) getOrCreate(typ []EntityId) *Archetype {
	key := typeKey(typ)
	for _, a := range s.buckets[key] {
		if slices.Equal(a.typ, typ) {
			return a
		}
	}
	a := newArchetype(slices.Clone(typ), key, s.registry)
	s.buckets[key] = append(s.buckets[key], a)
	s.list = append(s.list, a)
	if s.onCreate != nil {
		s.onCreate(a)
	}
	return a
}

// edgeAdd resolves the archetype reached from a by adding id, consulting
// the edge cache first and caching the reverse edge on a miss.
func (s *Store) edgeAdd(a *Archetype, id EntityId) *Archetype {
	e := a.edge(id)
	if e.add != nil {
		return e.add
	}
	dst := s.getOrCreate(typeWith(a.typ, id))
	e.add = dst
	if dst != a {
		dst.edge(id).remove = a
	}
	return dst
}

// edgeRemove is the symmetric transition for removing id.
func (s *Store) edgeRemove(a *Archetype, id EntityId) *Archetype {
	e := a.edge(id)
	if e.remove != nil {
		return e.remove
	}
	dst := s.getOrCreate(typeWithout(a.typ, id))
	e.remove = dst
	if dst != a {
		dst.edge(id).add = a
	}
	return dst
}

func typeWith(typ []EntityId, id EntityId) []EntityId {
	i, found := slices.BinarySearch(typ, id)
	if found {
		return typ
	}
	out := make([]EntityId, 0, len(typ)+1)
	out = append(out, typ[:i]...)
	out = append(out, id)
	out = append(out, typ[i:]...)
	return out
}

func typeWithout(typ []EntityId, id EntityId) []EntityId {
	i, found := slices.BinarySearch(typ, id)
	if !found {
		return typ
	}
	out := make([]EntityId, 0, len(typ)-1)
	out = append(out, typ[:i]...)
	out = append(out, typ[i+1:]...)
	return out
}
