package ecs

import (
	"context"
	"fmt"
	"reflect"
	"unsafe"

	"golang.org/x/sync/errgroup"
)

// Query holds a filter and its cached matched-set. The matched-set lists
// archetypes in insertion order and is maintained incrementally: every new
// archetype is evaluated against every live query at creation.
type Query struct {
	world   *World
	filter  *Filter
	matched []*Archetype
}

// NewQuery registers a query for the filter and seeds its matched-set from
// the existing archetypes.
func (w *World) NewQuery(f *Filter) *Query {
	q := &Query{world: w, filter: f}
	for _, a := range w.store.list {
		if matchArchetype(w, f, a) {
			q.matched = append(q.matched, a)
			a.matched = append(a.matched, q)
		}
	}
	w.queries = append(w.queries, q)
	return q
}

// Query compiles a textual signature and registers a query for it.
func (w *World) Query(expr string) (*Query, error) {
	f, err := ParseFilter(w, expr)
	if err != nil {
		return nil, err
	}
	return w.NewQuery(f), nil
}

// Filter returns the query's normalized filter.
func (q *Query) Filter() *Filter { return q.filter }

// idMatch reports whether a concrete type id matches a term pattern.
// Equality is on the full 64-bit value; Wildcard matches any id, and
// wildcard parts of a role-flagged or pair pattern match any target.
func idMatch(id, pattern EntityId) bool {
	if id == pattern || pattern == Wildcard {
		return true
	}
	if pattern.Role() != id.Role() {
		return false
	}
	if pattern.IsPair() {
		pr, po := pattern.PairRelation(), pattern.PairObject()
		if pr != pairWildcardRelation && pr != id.PairRelation() {
			return false
		}
		return po == pairWildcardObject || po == id.PairObject()
	}
	if pattern.Role() != 0 {
		return pattern.Target() == Wildcard || pattern.Target() == id.Target()
	}
	return false
}

// typeMatch finds the first (lowest, since the type is sorted) id in typ
// matching the pattern.
func typeMatch(typ []EntityId, pattern EntityId) (int, bool) {
	for i, id := range typ {
		if idMatch(id, pattern) {
			return i, true
		}
	}
	return 0, false
}

// sharedHit describes a component resolved through an InstanceOf base: a
// single value at (col, row) on the base entity, broadcast over the batch.
type sharedHit struct {
	id     EntityId
	col    *column
	source EntityId
	row    int
}

// sharedResolve walks the archetype's InstanceOf bases depth-first in type
// order, returning the first base that owns an id matching the pattern.
func sharedResolve(w *World, a *Archetype, pattern EntityId) *sharedHit {
	for _, tid := range a.typ {
		if tid&InstanceOf == 0 {
			continue
		}
		base := tid.Target()
		rec, err := w.index.get(base)
		if err != nil || rec.archetype == nil {
			continue
		}
		if i, ok := typeMatch(rec.archetype.typ, pattern); ok {
			concrete := rec.archetype.typ[i]
			return &sharedHit{
				id:     concrete,
				col:    rec.archetype.columnFor(concrete),
				source: base,
				row:    int(rec.row),
			}
		}
		if hit := sharedResolve(w, rec.archetype, pattern); hit != nil {
			return hit
		}
	}
	return nil
}

func matchArchetype(w *World, f *Filter, a *Archetype) bool {
	terms := f.Terms
	for i := 0; i < len(terms); {
		if terms[i].Oper == OpOr {
			j, ok := i, false
			for ; j < len(terms) && terms[j].Oper == OpOr; j++ {
				if termPresent(w, a, &terms[j]) {
					ok = true
				}
			}
			if !ok {
				return false
			}
			i = j
			continue
		}
		t := &terms[i]
		switch t.Oper {
		case OpAnd:
			if !termPresent(w, a, t) {
				return false
			}
		case OpNot:
			if termPresent(w, a, t) {
				return false
			}
		}
		i++
	}
	return true
}

func termPresent(w *World, a *Archetype, t *Term) bool {
	switch t.Source {
	case SourceNamed:
		return w.Has(t.Subject, t.ID)
	case SourceParent:
		for _, tid := range a.typ {
			if tid&ChildOf != 0 && tid&RolePair == 0 && w.Has(tid.Target(), t.ID) {
				return true
			}
		}
		return false
	}
	if t.Access != AccessShared {
		if _, ok := typeMatch(a.typ, t.ID); ok {
			return true
		}
	}
	if t.Access == AccessOwned {
		return false
	}
	return sharedResolve(w, a, t.ID) != nil
}

// batchColumn is the resolved column for one term against one archetype.
type batchColumn struct {
	term   Term
	id     EntityId
	col    *column
	shared bool
	source EntityId
	srcRow int
}

// TableBatch is one archetype's worth of query results: the entity rows
// plus one resolved column per term. Shared columns point to a single
// value on a base entity and must be read as a broadcast.
type TableBatch struct {
	Archetype *Archetype
	Count     int

	world    *World
	readonly bool
	columns  []batchColumn
}

// Entities returns the ids of the batch rows.
func (b *TableBatch) Entities() []EntityId { return b.Archetype.entities[:b.Count] }

// Terms returns the number of term columns.
func (b *TableBatch) Terms() int { return len(b.columns) }

// MatchedID returns the concrete id the term resolved to, or 0 when the
// term did not match (optional or negated terms).
func (b *TableBatch) MatchedID(i int) (EntityId, error) {
	if i < 0 || i >= len(b.columns) {
		return 0, fmt.Errorf("term %d of %d: %w", i, len(b.columns), ErrColumnIndexOutOfRange)
	}
	return b.columns[i].id, nil
}

// IsShared reports whether the term's column is broadcast from a base.
func (b *TableBatch) IsShared(i int) (bool, error) {
	if i < 0 || i >= len(b.columns) {
		return false, fmt.Errorf("term %d of %d: %w", i, len(b.columns), ErrColumnIndexOutOfRange)
	}
	return b.columns[i].shared, nil
}

// Source returns the entity providing a shared column's value, or 0 for an
// owned column.
func (b *TableBatch) Source(i int) (EntityId, error) {
	if i < 0 || i >= len(b.columns) {
		return 0, fmt.Errorf("term %d of %d: %w", i, len(b.columns), ErrColumnIndexOutOfRange)
	}
	return b.columns[i].source, nil
}

func (b *TableBatch) columnAt(i int) (*batchColumn, error) {
	if i < 0 || i >= len(b.columns) {
		return nil, fmt.Errorf("term %d of %d: %w", i, len(b.columns), ErrColumnIndexOutOfRange)
	}
	bc := &b.columns[i]
	if (b.readonly || b.world.readonly) && bc.term.InOut != In {
		return nil, fmt.Errorf("term %d is not [in]: %w", i, ErrColumnAccessViolation)
	}
	return bc, nil
}

// Column returns the base pointer of an owned term column; the buffer
// holds Count elements. Nil for tags and unmatched optional terms.
func (b *TableBatch) Column(i int) (unsafe.Pointer, error) {
	bc, err := b.columnAt(i)
	if err != nil {
		return nil, err
	}
	if bc.shared {
		return nil, fmt.Errorf("term %d resolves through a base: %w", i, ErrColumnIsShared)
	}
	if bc.col == nil {
		return nil, nil
	}
	return bc.col.ptr(0), nil
}

// Shared returns the pointer to a shared term's single broadcast value.
func (b *TableBatch) Shared(i int) (unsafe.Pointer, error) {
	bc, err := b.columnAt(i)
	if err != nil {
		return nil, err
	}
	if !bc.shared {
		return nil, fmt.Errorf("term %d is owned: %w", i, ErrColumnIsNotShared)
	}
	if bc.col == nil {
		return nil, nil
	}
	return bc.col.ptr(bc.srcRow), nil
}

// Field returns an owned term column as a typed slice of Count elements.
func Field[T any](b *TableBatch, i int) ([]T, error) {
	bc, err := b.columnAt(i)
	if err != nil {
		return nil, err
	}
	if bc.shared {
		return nil, fmt.Errorf("term %d resolves through a base: %w", i, ErrColumnIsShared)
	}
	if err := checkFieldType[T](bc); err != nil {
		return nil, err
	}
	if b.Count == 0 {
		return nil, nil
	}
	return unsafe.Slice((*T)(bc.col.ptr(0)), b.Count), nil
}

// SharedField returns a shared term's broadcast value as a typed pointer.
func SharedField[T any](b *TableBatch, i int) (*T, error) {
	bc, err := b.columnAt(i)
	if err != nil {
		return nil, err
	}
	if !bc.shared {
		return nil, fmt.Errorf("term %d is owned: %w", i, ErrColumnIsNotShared)
	}
	if err := checkFieldType[T](bc); err != nil {
		return nil, err
	}
	return (*T)(bc.col.ptr(bc.srcRow)), nil
}

func checkFieldType[T any](bc *batchColumn) error {
	if bc.col == nil {
		return fmt.Errorf("term %v carries no data: %w", bc.term.ID, ErrColumnTypeMismatch)
	}
	want := reflect.TypeOf((*T)(nil)).Elem()
	if bc.col.desc.typ != want {
		return fmt.Errorf("column holds %s, requested %s: %w",
			bc.col.desc.Name, want, ErrColumnTypeMismatch)
	}
	return nil
}

// Iter iterates the matched-set in insertion order, one batch per
// non-empty archetype.
type Iter struct {
	q        *Query
	pos      int
	readonly bool
	batch    TableBatch
}

// Iter returns a batch iterator over the query's matched-set.
func (q *Query) Iter() *Iter {
	return &Iter{q: q, pos: -1}
}

// IterReadOnly returns an iterator whose batches reject access to columns
// of terms not marked [in].
func (q *Query) IterReadOnly() *Iter {
	return &Iter{q: q, pos: -1, readonly: true}
}

// Next advances to the next non-empty archetype.
func (it *Iter) Next() bool {
	for {
		it.pos++
		if it.pos >= len(it.q.matched) {
			return false
		}
		a := it.q.matched[it.pos]
		if a.Len() == 0 {
			continue
		}
		it.batch = buildBatch(it.q.world, it.q.filter, a, it.readonly)
		return true
	}
}

// Batch returns the current batch. Valid until the next call to Next.
func (it *Iter) Batch() *TableBatch { return &it.batch }

func buildBatch(w *World, f *Filter, a *Archetype, readonly bool) TableBatch {
	b := TableBatch{
		Archetype: a,
		Count:     a.Len(),
		world:     w,
		readonly:  readonly,
		columns:   make([]batchColumn, len(f.Terms)),
	}
	for i := range f.Terms {
		t := f.Terms[i]
		bc := batchColumn{term: t}
		switch t.Source {
		case SourceNamed:
			if rec, err := w.index.get(t.Subject); err == nil && rec.archetype != nil {
				if j, ok := typeMatch(rec.archetype.typ, t.ID); ok {
					concrete := rec.archetype.typ[j]
					bc.id = concrete
					bc.col = rec.archetype.columnFor(concrete)
					bc.shared = true
					bc.source = t.Subject
					bc.srcRow = int(rec.row)
				}
			}
		case SourceParent:
			for _, tid := range a.typ {
				if tid&ChildOf == 0 || tid&RolePair != 0 {
					continue
				}
				parent := tid.Target()
				if rec, err := w.index.get(parent); err == nil && rec.archetype != nil {
					if j, ok := typeMatch(rec.archetype.typ, t.ID); ok {
						concrete := rec.archetype.typ[j]
						bc.id = concrete
						bc.col = rec.archetype.columnFor(concrete)
						bc.shared = true
						bc.source = parent
						bc.srcRow = int(rec.row)
						break
					}
				}
			}
		default:
			if t.Oper == OpNot {
				break
			}
			if j, ok := typeMatch(a.typ, t.ID); ok && t.Access != AccessShared {
				concrete := a.typ[j]
				bc.id = concrete
				bc.col = a.columnFor(concrete)
			} else if hit := sharedResolve(w, a, t.ID); hit != nil && t.Access != AccessOwned {
				bc.id = hit.id
				bc.col = hit.col
				bc.shared = true
				bc.source = hit.source
				bc.srcRow = hit.row
			}
		}
		b.columns[i] = bc
	}
	return b
}

// Count returns the number of entities the query currently matches.
func (q *Query) Count() int {
	n := 0
	for _, a := range q.matched {
		n += a.Len()
	}
	return n
}

// EachParallel fans batches out to worker goroutines, one per matched
// archetype. Legal only inside a sealed read-only window and only for
// filters whose data terms are all marked [in].
func (q *Query) EachParallel(ctx context.Context, fn func(*TableBatch) error) error {
	if !q.world.readonly {
		return fmt.Errorf("world is not sealed read-only: %w", ErrInvalidOperation)
	}
	for i, t := range q.filter.Terms {
		if t.InOut != In && t.InOut != InOutNone {
			return fmt.Errorf("term %d is not [in]: %w", i, ErrColumnAccessViolation)
		}
	}
	g, _ := errgroup.WithContext(ctx)
	for _, a := range q.matched {
		a := a
		if a.Len() == 0 {
			continue
		}
		g.Go(func() error {
			b := buildBatch(q.world, q.filter, a, true)
			return fn(&b)
		})
	}
	return g.Wait()
}
