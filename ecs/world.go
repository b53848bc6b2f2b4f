package ecs

import (
	"fmt"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// World owns the entity index, the archetype store, the component registry
// and the event bus, and dispatches every structural mutation. A world is
// single-goroutine: all mutation APIs must be called from the goroutine
// that owns the world. Read-only query iteration may fan out to workers
// only inside a BeginReadOnly/EndReadOnly window.
type World struct {
	id      uuid.UUID
	log     *zap.Logger
	checked bool

	index      *entityIndex
	store      *Store
	components *componentRegistry
	bus        *EventBus
	queries    []*Query

	deferDepth int
	cmds       *CommandBuffer
	dispatch   int
	applyDepth int
	moving     bool
	readonly   bool
}

// NewWorld creates a world with the default configuration.
func NewWorld() *World {
	return NewWorldWith(DefaultConfig())
}

// NewWorldWith creates a world from an explicit configuration.
func NewWorldWith(cfg Config) *World {
	w := &World{
		id:         uuid.New(),
		checked:    cfg.Checked,
		index:      newEntityIndex(cfg.InitialCapacity),
		components: newComponentRegistry(),
		cmds:       newCommandBuffer(),
		bus:        newEventBus(),
	}
	w.log = cfg.logger().With(zap.String("world", w.id.String()))
	w.store = newStore(w.components)
	w.store.onCreate = w.archetypeCreated
	w.log.Debug("world created")
	return w
}

// ID returns the world's instance id.
func (w *World) ID() uuid.UUID { return w.id }

// Events returns the world's event bus.
func (w *World) Events() *EventBus { return w.bus }

// Alive reports whether the id refers to a live entity.
func (w *World) Alive(e EntityId) bool { return w.index.alive(e) }

// Location returns the archetype and row the entity currently occupies.
func (w *World) Location(e EntityId) (*Archetype, uint32, error) {
	rec, err := w.index.get(e)
	if err != nil {
		return nil, 0, err
	}
	return rec.archetype, rec.row, nil
}

func (w *World) deferred() bool { return w.deferDepth > 0 || w.dispatch > 0 }

func (w *World) guardMutation() error {
	if w.readonly {
		return fmt.Errorf("world is sealed read-only: %w", ErrInvalidOperation)
	}
	if w.moving {
		return fmt.Errorf("mutation during archetype move: %w", ErrInvalidOperation)
	}
	return nil
}

// run wraps the application of one structural mutation. When the outermost
// application completes, commands queued by observers replay.
func (w *World) run(apply func() error) error {
	w.applyDepth++
	err := apply()
	w.applyDepth--
	if w.applyDepth == 0 && w.deferDepth == 0 {
		w.flushInternal()
	}
	return err
}

func (w *World) flushInternal() {
	for !w.cmds.empty() {
		buf := w.cmds
		w.cmds = newCommandBuffer()
		for _, cerr := range buf.replay(w) {
			w.log.Debug("observer command dropped", zap.Error(cerr))
		}
	}
}

func (w *World) publish(ev Event) {
	if len(w.bus.observers) == 0 {
		return
	}
	ev.World = w
	w.dispatch++
	w.bus.dispatch(ev)
	w.dispatch--
}

// New allocates an entity id and inserts it into the empty archetype.
// Returns the null id if the world is sealed read-only.
func (w *World) New() EntityId {
	if w.readonly || w.moving {
		return 0
	}
	e := w.index.alloc()
	if w.deferred() {
		w.cmds.push(opNew, e, 0)
		return e
	}
	_ = w.run(func() error { return w.applyNew(e) })
	return e
}

func (w *World) applyNew(e EntityId) error {
	rec, err := w.index.get(e)
	if err != nil {
		return err
	}
	row := w.store.empty.insert(e)
	rec.archetype = w.store.empty
	rec.row = row
	return nil
}

// checkComponent validates that comp can appear in an archetype type:
// role-flagged and pair ids are opaque presence markers, everything else
// must be registered.
func (w *World) checkComponent(comp EntityId) error {
	if comp.Role() != 0 {
		return nil
	}
	_, err := w.components.descriptor(comp)
	return err
}

// Add moves the entity to the archetype extended by comp; the new
// component is default-initialized. No-op if the entity already has it.
func (w *World) Add(e, comp EntityId) error {
	if err := w.guardMutation(); err != nil {
		return err
	}
	if err := w.checkComponent(comp); err != nil {
		return err
	}
	if w.checked && !w.index.alive(e) {
		return errEntity(e)
	}
	if w.deferred() {
		w.cmds.push(opAdd, e, comp)
		return nil
	}
	return w.run(func() error { return w.applyAdd(e, comp) })
}

func (w *World) applyAdd(e, comp EntityId) error {
	rec, err := w.index.get(e)
	if err != nil {
		return err
	}
	src := rec.archetype
	if src == nil {
		return fmt.Errorf("entity %v has no table: %w", e, ErrInternal)
	}
	if src.hasID(comp) {
		return nil
	}
	dst := w.store.edgeAdd(src, comp)
	row := w.moveEntity(e, rec, src, dst)
	w.publish(Event{Kind: OnAdd, Archetype: dst, Row: int(row), Count: 1, Component: comp, Entity: e})
	return nil
}

// Remove moves the entity to the archetype without comp; the dropped
// component is destroyed. No-op if the entity does not have it.
func (w *World) Remove(e, comp EntityId) error {
	if err := w.guardMutation(); err != nil {
		return err
	}
	if err := w.checkComponent(comp); err != nil {
		return err
	}
	if w.checked && !w.index.alive(e) {
		return errEntity(e)
	}
	if w.deferred() {
		w.cmds.push(opRemove, e, comp)
		return nil
	}
	return w.run(func() error { return w.applyRemove(e, comp) })
}

func (w *World) applyRemove(e, comp EntityId) error {
	rec, err := w.index.get(e)
	if err != nil {
		return err
	}
	src := rec.archetype
	if src == nil || !src.hasID(comp) {
		return nil
	}
	// observers see the component while it still exists; their own
	// mutations are deferred past the move
	w.publish(Event{Kind: OnRemove, Archetype: src, Row: int(rec.row), Count: 1, Component: comp, Entity: e})
	dst := w.store.edgeRemove(src, comp)
	w.moveEntity(e, rec, src, dst)
	return nil
}

// Set ensures the entity has comp and overwrites its value.
func Set[T any](w *World, e, comp EntityId, value T) error {
	return w.SetRaw(e, comp, unsafe.Pointer(&value), unsafe.Sizeof(value))
}

// SetRaw is the untyped variant of Set; src must point at size bytes laid
// out as the registered component.
func (w *World) SetRaw(e, comp EntityId, src unsafe.Pointer, size uintptr) error {
	if err := w.guardMutation(); err != nil {
		return err
	}
	if err := w.checkComponent(comp); err != nil {
		return err
	}
	if w.checked {
		if !w.index.alive(e) {
			return errEntity(e)
		}
		if desc := w.components.dataDescriptor(comp); desc != nil && desc.Size != size {
			return fmt.Errorf("component %v holds %d bytes, got %d: %w",
				comp, desc.Size, size, ErrColumnTypeMismatch)
		}
	}
	if w.deferred() {
		w.cmds.pushSet(e, comp, src, size)
		return nil
	}
	return w.run(func() error { return w.applySet(e, comp, src) })
}

func (w *World) applySet(e, comp EntityId, src unsafe.Pointer) error {
	if err := w.applyAdd(e, comp); err != nil {
		return err
	}
	rec, err := w.index.get(e)
	if err != nil {
		return err
	}
	if col := rec.archetype.columnFor(comp); col != nil && src != nil {
		col.set(int(rec.row), src)
	}
	w.publish(Event{Kind: OnSet, Archetype: rec.archetype, Row: int(rec.row), Count: 1, Component: comp, Entity: e})
	return nil
}

// Get returns a pointer to the entity's component value, following
// InstanceOf bases for inherited components. Nil if the entity is dead or
// the component is absent.
func Get[T any](w *World, e, comp EntityId) *T {
	p, _ := w.GetRaw(e, comp)
	return (*T)(p)
}

// GetRaw is the untyped variant of Get. The second result distinguishes an
// owned value (true) from an inherited or absent one.
func (w *World) GetRaw(e, comp EntityId) (unsafe.Pointer, bool) {
	rec, err := w.index.get(e)
	if err != nil || rec.archetype == nil {
		return nil, false
	}
	if col := rec.archetype.columnFor(comp); col != nil {
		return col.ptr(int(rec.row)), true
	}
	if rec.archetype.hasID(comp) {
		// tag: present but no data
		return nil, true
	}
	if hit := sharedResolve(w, rec.archetype, comp); hit != nil && hit.col != nil {
		return hit.col.ptr(hit.row), false
	}
	return nil, false
}

// Has reports whether the entity owns or inherits the id.
func (w *World) Has(e, comp EntityId) bool {
	rec, err := w.index.get(e)
	if err != nil || rec.archetype == nil {
		return false
	}
	if _, ok := typeMatch(rec.archetype.typ, comp); ok {
		return true
	}
	return sharedResolve(w, rec.archetype, comp) != nil
}

// Delete removes the entity's row, emits OnRemove for every component and
// frees the id. Deleting a dead id is a no-op.
func (w *World) Delete(e EntityId) error {
	if err := w.guardMutation(); err != nil {
		return err
	}
	if !w.index.alive(e) {
		return nil
	}
	if w.deferred() {
		w.cmds.push(opDelete, e, 0)
		return nil
	}
	return w.run(func() error { return w.applyDelete(e) })
}

func (w *World) applyDelete(e EntityId) error {
	rec, err := w.index.get(e)
	if err != nil {
		return err
	}
	if a := rec.archetype; a != nil {
		for _, id := range a.typ {
			w.publish(Event{Kind: OnRemove, Archetype: a, Row: int(rec.row), Count: 1, Component: id, Entity: e})
		}
		row := rec.row
		w.moving = true
		a.destroyRow(row)
		moved := a.removeRow(row)
		w.moving = false
		if moved != 0 {
			w.index.set(moved, a, row)
		}
	}
	w.index.release(e)
	return nil
}

// moveEntity transfers the entity's row from src to dst. Ordering is
// deterministic: destructors for dropped components run first, components
// introduced by dst are default-initialized next, components present in
// both archetypes are relocated last.
func (w *World) moveEntity(e EntityId, rec *entityRecord, src, dst *Archetype) uint32 {
	srcRow := int(rec.row)
	w.moving = true
	dstRow := dst.appendRaw(e)
	for i, id := range src.dataIDs {
		if dst.columnFor(id) == nil {
			src.columns[i].destroy(srcRow, 1)
		}
	}
	for i, id := range dst.dataIDs {
		if src.columnFor(id) == nil {
			dst.columns[i].initRange(int(dstRow), 1)
		}
	}
	for i, id := range dst.dataIDs {
		if sc := src.columnFor(id); sc != nil {
			dst.columns[i].moveFrom(sc, srcRow, int(dstRow))
		}
	}
	moved := src.removeRow(rec.row)
	w.moving = false
	rec.archetype = dst
	rec.row = dstRow
	if moved != 0 {
		w.index.set(moved, src, uint32(srcRow))
	}
	return dstRow
}

// BeginDefer opens a deferred scope: structural mutations queue instead of
// applying, and reads keep seeing the pre-deferred state. Scopes nest.
func (w *World) BeginDefer() error {
	if w.readonly {
		return fmt.Errorf("world is sealed read-only: %w", ErrInvalidOperation)
	}
	w.deferDepth++
	return nil
}

// EndDefer closes the innermost deferred scope. Closing the outermost
// scope replays the buffer in insertion order; failed commands are
// surfaced as a *ReplayError without aborting the rest of the replay.
func (w *World) EndDefer() error {
	if w.deferDepth == 0 {
		return fmt.Errorf("no deferred scope open: %w", ErrInvalidOperation)
	}
	w.deferDepth--
	if w.deferDepth > 0 || w.dispatch > 0 {
		// scopes closed inside event dispatch replay with the dispatch
		// buffer once the triggering operation completes
		return nil
	}
	buf := w.cmds
	w.cmds = newCommandBuffer()
	w.log.Debug("deferred replay", zap.Int("commands", len(buf.cmds)))
	errs := buf.replay(w)
	if len(errs) > 0 {
		for _, cerr := range errs {
			w.log.Error("deferred command failed", zap.Error(cerr))
		}
		return &ReplayError{Commands: errs}
	}
	return nil
}

// BeginReadOnly seals the world: mutation APIs fail with
// ErrInvalidOperation until EndReadOnly, marking the window during which
// read-only iteration may be dispatched to worker goroutines.
func (w *World) BeginReadOnly() error {
	if w.deferDepth > 0 || w.dispatch > 0 {
		return fmt.Errorf("deferred scope still open: %w", ErrInvalidOperation)
	}
	w.readonly = true
	return nil
}

// EndReadOnly lifts the seal.
func (w *World) EndReadOnly() {
	w.readonly = false
}

func (w *World) archetypeCreated(a *Archetype) {
	w.log.Debug("archetype created",
		zap.Int("components", len(a.typ)), zap.Uint64("key", a.key))
	for _, q := range w.queries {
		if matchArchetype(w, q.filter, a) {
			q.matched = append(q.matched, a)
			a.matched = append(a.matched, q)
		}
	}
}

// Archetypes visits every archetype in creation order. Part of the
// read-only hook surface used by serialization.
func (w *World) Archetypes(yield func(*Archetype) bool) {
	for _, a := range w.store.list {
		if !yield(a) {
			return
		}
	}
}

// ArchetypeColumn returns the raw bytes of the archetype's column for a
// data-bearing component id.
func (w *World) ArchetypeColumn(a *Archetype, comp EntityId) ([]byte, error) {
	col := a.columnFor(comp)
	if col == nil {
		return nil, errComponent(comp)
	}
	return col.bytes(), nil
}
