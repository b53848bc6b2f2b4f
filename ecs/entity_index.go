package ecs

// entityRecord tracks where an alive entity currently lives. archetype is
// nil for ids that are allocated but not (yet, or no longer) stored in a
// table.
type entityRecord struct {
	archetype  *Archetype
	row        uint32
	generation uint32
	flags      uint8
}

const entityAlive uint8 = 1 << 0

const indexPageSize = 1024

// entityIndex maps entity ids to their current archetype location. Records
// live in fixed-size pages so record pointers stay stable across growth;
// the page vector is never shrunk. Index 0 is reserved as the null id.
type entityIndex struct {
	pages []*[indexPageSize]entityRecord
	free  []uint32
	next  uint32
}

func newEntityIndex(capacity int) *entityIndex {
	ix := &entityIndex{next: 1}
	pages := (capacity + indexPageSize) / indexPageSize
	if pages < 1 {
		pages = 1
	}
	for i := 0; i < pages; i++ {
		ix.pages = append(ix.pages, new([indexPageSize]entityRecord))
	}
	return ix
}

func (ix *entityIndex) record(index uint32) *entityRecord {
	return &ix.pages[index/indexPageSize][index%indexPageSize]
}

// alloc hands out an id, reusing freed slots first. A reused slot keeps the
// generation its last free bumped it to, so stale ids never validate.
func (ix *entityIndex) alloc() EntityId {
	var index uint32
	if n := len(ix.free); n > 0 {
		index = ix.free[n-1]
		ix.free = ix.free[:n-1]
	} else {
		index = ix.next
		ix.next++
		for int(index/indexPageSize) >= len(ix.pages) {
			ix.pages = append(ix.pages, new([indexPageSize]entityRecord))
		}
	}
	rec := ix.record(index)
	rec.archetype = nil
	rec.row = 0
	rec.flags |= entityAlive
	return newEntityId(index, rec.generation)
}

func (ix *entityIndex) alive(e EntityId) bool {
	if e.Role() != 0 {
		return false
	}
	index := e.Index()
	if index == 0 || index >= ix.next {
		return false
	}
	rec := ix.record(index)
	return rec.flags&entityAlive != 0 && rec.generation == e.Generation()
}

func (ix *entityIndex) get(e EntityId) (*entityRecord, error) {
	if !ix.alive(e) {
		return nil, errEntity(e)
	}
	return ix.record(e.Index()), nil
}

func (ix *entityIndex) set(e EntityId, a *Archetype, row uint32) {
	rec := ix.record(e.Index())
	rec.archetype = a
	rec.row = row
}

// release bumps the slot generation and marks the index reusable. Any
// lookup through the stale id fails from here on.
func (ix *entityIndex) release(e EntityId) {
	rec := ix.record(e.Index())
	rec.archetype = nil
	rec.row = 0
	rec.flags &^= entityAlive
	rec.generation = (rec.generation + 1) & uint32(generationMask)
	ix.free = append(ix.free, e.Index())
}
