package ecs

import (
	"slices"

	"github.com/kamstrup/intmap"
)

// Archetype stores every entity that shares an exact component set. The
// type is the canonical sorted id list; data-bearing components live in
// parallel columns alongside the entity id column. Archetypes are interned
// by the store and never destroyed mid-run, so pointers stay stable.
type Archetype struct {
	typ      []EntityId
	key      uint64
	dataIDs  []EntityId
	columns  []*column
	entities []EntityId
	edges    *intmap.Map[EntityId, *archetypeEdge]
	matched  []*Query
}

// archetypeEdge caches the destination reached by adding or removing one
// id. Absence means "not yet computed", never "no such transition".
type archetypeEdge struct {
	add    *Archetype
	remove *Archetype
}

func newArchetype(typ []EntityId, key uint64, reg *componentRegistry) *Archetype {
	a := &Archetype{
		typ:   typ,
		key:   key,
		edges: intmap.New[EntityId, *archetypeEdge](8),
	}
	for _, id := range typ {
		if desc := reg.dataDescriptor(id); desc != nil {
			a.dataIDs = append(a.dataIDs, id)
			a.columns = append(a.columns, newColumn(desc))
		}
	}
	return a
}

// Type returns the sorted component id list. Callers must not mutate it.
func (a *Archetype) Type() []EntityId { return a.typ }

// Len returns the number of entities stored in the archetype.
func (a *Archetype) Len() int { return len(a.entities) }

// Entities returns the entity id column. Callers must not mutate it.
func (a *Archetype) Entities() []EntityId { return a.entities }

func (a *Archetype) hasID(id EntityId) bool {
	_, ok := slices.BinarySearch(a.typ, id)
	return ok
}

func (a *Archetype) columnFor(id EntityId) *column {
	for i, cid := range a.dataIDs {
		if cid == id {
			return a.columns[i]
		}
	}
	return nil
}

func (a *Archetype) edge(id EntityId) *archetypeEdge {
	if e, ok := a.edges.Get(id); ok {
		return e
	}
	e := &archetypeEdge{}
	a.edges.Put(id, e)
	return e
}

// insert appends the entity with every data column default-initialized.
func (a *Archetype) insert(e EntityId) uint32 {
	row := len(a.entities)
	a.entities = append(a.entities, e)
	for _, c := range a.columns {
		c.appendRaw()
		c.initRange(row, 1)
	}
	return uint32(row)
}

// appendRaw appends the entity leaving columns uninitialized; the move
// path fills every cell before the row becomes observable.
func (a *Archetype) appendRaw(e EntityId) uint32 {
	row := len(a.entities)
	a.entities = append(a.entities, e)
	for _, c := range a.columns {
		c.appendRaw()
	}
	return uint32(row)
}

// removeRow swap-and-pops the row without running destructors. Returns the
// entity moved down into row, or 0 if the removed row was last.
func (a *Archetype) removeRow(row uint32) EntityId {
	last := len(a.entities) - 1
	var moved EntityId
	if int(row) != last {
		moved = a.entities[last]
		a.entities[row] = moved
	}
	a.entities = a.entities[:last]
	for _, c := range a.columns {
		c.removeSwap(int(row))
	}
	return moved
}

// destroyRow runs destructors for every data component of the row.
func (a *Archetype) destroyRow(row uint32) {
	for _, c := range a.columns {
		c.destroy(int(row), 1)
	}
}
