package ecs

import (
	"reflect"
	"unsafe"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"
)

// Hooks customizes component lifecycle handling. Missing hooks imply
// trivial behavior: zero-init construction, no-op destruction, memcpy
// copy and move. A missing Move falls back to Copy when Copy is set.
type Hooks struct {
	Ctor func(ptr unsafe.Pointer, count int)
	Dtor func(ptr unsafe.Pointer, count int)
	Copy func(dst, src unsafe.Pointer, count int)
	Move func(dst, src unsafe.Pointer, count int)
}

// ComponentDescriptor is the registration record for one component. All
// generic storage code dispatches through the descriptor rather than
// through the component's Go type.
type ComponentDescriptor struct {
	ID        EntityId
	Name      string
	Size      uintptr
	Alignment uintptr

	typ   reflect.Type // nil for raw registrations
	hooks Hooks
}

// IsTag reports whether the component carries no data.
func (d *ComponentDescriptor) IsTag() bool { return d.Size == 0 }

// componentRegistry holds the descriptor table for one world. Components
// are registered explicitly at world init; there is no process-wide state.
type componentRegistry struct {
	byID    *intmap.Map[EntityId, *ComponentDescriptor]
	byName  map[string]*ComponentDescriptor
	ordered []*ComponentDescriptor
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		byID:   intmap.New[EntityId, *ComponentDescriptor](64),
		byName: make(map[string]*ComponentDescriptor),
	}
}

func (r *componentRegistry) put(d *ComponentDescriptor) {
	r.byID.Put(d.ID, d)
	r.byName[d.Name] = d
	r.ordered = append(r.ordered, d)
}

// descriptor resolves a component id. Ids carrying role flags are presence
// markers without data and have no descriptor.
func (r *componentRegistry) descriptor(id EntityId) (*ComponentDescriptor, error) {
	if d, ok := r.byID.Get(id); ok {
		return d, nil
	}
	return nil, errComponent(id)
}

// dataDescriptor returns the descriptor for id if it names a data-bearing
// component, nil otherwise.
func (r *componentRegistry) dataDescriptor(id EntityId) *ComponentDescriptor {
	if id.Role() != 0 {
		return nil
	}
	if d, ok := r.byID.Get(id); ok && !d.IsTag() {
		return d
	}
	return nil
}

func (w *World) register(d *ComponentDescriptor) EntityId {
	d.ID = w.index.alloc()
	w.components.put(d)
	w.log.Debug("component registered",
		zap.String("name", d.Name), zap.Uint64("id", uint64(d.ID)))
	return d.ID
}

// Register registers T as a data component and returns its id. The zero
// value of T is the default-initialized state. Column storage is raw
// memory the garbage collector does not scan: T must be plain data
// without Go pointers.
func Register[T any](w *World, name string) EntityId {
	return RegisterHooks[T](w, name, Hooks{})
}

// RegisterHooks registers T with explicit lifecycle hooks.
func RegisterHooks[T any](w *World, name string, hooks Hooks) EntityId {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return w.register(&ComponentDescriptor{
		Name:      name,
		Size:      t.Size(),
		Alignment: uintptr(t.Align()),
		typ:       t,
		hooks:     hooks,
	})
}

// RegisterTag registers a presence-only component.
func (w *World) RegisterTag(name string) EntityId {
	return w.register(&ComponentDescriptor{Name: name})
}

// RegisterRaw registers a component by size and alignment alone, without a
// Go type. The typed batch accessors Field and SharedField reject raw
// components with ErrColumnTypeMismatch; Get and Set do not check the type.
func (w *World) RegisterRaw(name string, size, alignment uintptr, hooks Hooks) EntityId {
	return w.register(&ComponentDescriptor{
		Name:      name,
		Size:      size,
		Alignment: alignment,
		hooks:     hooks,
	})
}

// Lookup resolves a registered component by name.
func (w *World) Lookup(name string) (EntityId, bool) {
	d, ok := w.components.byName[name]
	if !ok {
		return 0, false
	}
	return d.ID, true
}

// Descriptor returns the registration record for a component id.
func (w *World) Descriptor(id EntityId) (*ComponentDescriptor, error) {
	return w.components.descriptor(id)
}
