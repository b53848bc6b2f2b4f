package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/tabula/ecs"
)

func TestEventsOnMutations(t *testing.T) {
	w := newTestWorld()

	type record struct {
		kind ecs.EventKind
		comp ecs.EntityId
	}
	var log []record
	for _, kind := range []ecs.EventKind{ecs.OnAdd, ecs.OnRemove, ecs.OnSet} {
		w.Events().Observe(kind, ecs.Wildcard, func(ev ecs.Event) {
			log = append(log, record{kind: ev.Kind, comp: ev.Component})
		})
	}

	e := w.New()
	require.NoError(t, ecs.Set(w.World, e, w.Pos, Position{X: 1}))
	require.NoError(t, ecs.Set(w.World, e, w.Pos, Position{X: 2}))
	require.NoError(t, w.Remove(e, w.Pos))

	assert.Equal(t, []record{
		{ecs.OnAdd, w.Pos}, // first set adds
		{ecs.OnSet, w.Pos},
		{ecs.OnSet, w.Pos}, // second set only overwrites
		{ecs.OnRemove, w.Pos},
	}, log)
}

func TestDeleteEmitsRemoveForEveryComponent(t *testing.T) {
	w := newTestWorld()

	var removed []ecs.EntityId
	w.Events().Observe(ecs.OnRemove, ecs.Wildcard, func(ev ecs.Event) {
		removed = append(removed, ev.Component)
	})

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))
	require.NoError(t, w.Add(e, w.Vel))
	require.NoError(t, w.Delete(e))

	assert.ElementsMatch(t, []ecs.EntityId{w.Pos, w.Vel}, removed)
}

func TestObserverComponentFilter(t *testing.T) {
	w := newTestWorld()

	posAdds := 0
	w.Events().Observe(ecs.OnAdd, w.Pos, func(ecs.Event) { posAdds++ })

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))
	require.NoError(t, w.Add(e, w.Vel))
	assert.Equal(t, 1, posAdds)
}

func TestObserverInsertionOrder(t *testing.T) {
	w := newTestWorld()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		w.Events().Observe(ecs.OnAdd, w.Pos, func(ecs.Event) { order = append(order, i) })
	}

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order, "observers fire first-registered-first-called")
}

func TestObserverEventCarriesLocation(t *testing.T) {
	w := newTestWorld()

	var got ecs.Event
	w.Events().Observe(ecs.OnAdd, w.Pos, func(ev ecs.Event) { got = ev })

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))

	require.NotNil(t, got.Archetype)
	assert.Equal(t, e, got.Entity)
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, e, got.Archetype.Entities()[got.Row])
	assert.Same(t, w.World, got.World)
}

func TestObserverMutationsAreDeferred(t *testing.T) {
	w := newTestWorld()

	// an OnAdd observer that tags the entity; the mutation applies after
	// the triggering operation completes
	w.Events().Observe(ecs.OnAdd, w.Pos, func(ev ecs.Event) {
		assert.NoError(t, ev.World.Add(ev.Entity, w.Frozen))
		assert.False(t, ev.World.Has(ev.Entity, w.Frozen), "observer effects are not visible during dispatch")
	})

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))
	assert.True(t, w.Has(e, w.Frozen))
}

func TestObserverCascade(t *testing.T) {
	w := newTestWorld()

	// OnAdd(Pos) adds Vel, OnAdd(Vel) adds Frozen
	w.Events().Observe(ecs.OnAdd, w.Pos, func(ev ecs.Event) {
		assert.NoError(t, ev.World.Add(ev.Entity, w.Vel))
	})
	w.Events().Observe(ecs.OnAdd, w.Vel, func(ev ecs.Event) {
		assert.NoError(t, ev.World.Add(ev.Entity, w.Frozen))
	})

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))
	assert.True(t, w.Has(e, w.Vel))
	assert.True(t, w.Has(e, w.Frozen))
}

func TestObserverSeesRemovedComponentData(t *testing.T) {
	w := newTestWorld()

	var seen float32
	w.Events().Observe(ecs.OnRemove, w.Pos, func(ev ecs.Event) {
		if p := ecs.Get[Position](ev.World, ev.Entity, w.Pos); p != nil {
			seen = p.X
		}
	})

	e := w.New()
	require.NoError(t, ecs.Set(w.World, e, w.Pos, Position{X: 7}))
	require.NoError(t, w.Remove(e, w.Pos))
	assert.Equal(t, float32(7), seen, "OnRemove fires while the value still exists")
}
