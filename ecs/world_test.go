package ecs_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/tabula/ecs"
)

func TestSetAndGetComponents(t *testing.T) {
	w := newTestWorld()

	e := w.New()
	require.NoError(t, ecs.Set(w.World, e, w.Pos, Position{X: 1, Y: 2}))
	require.NoError(t, ecs.Set(w.World, e, w.Vel, Velocity{X: 3, Y: 4}))

	pos := ecs.Get[Position](w.World, e, w.Pos)
	require.NotNil(t, pos)
	assert.Equal(t, Position{X: 1, Y: 2}, *pos)

	vel := ecs.Get[Velocity](w.World, e, w.Vel)
	require.NotNil(t, vel)
	assert.Equal(t, Velocity{X: 3, Y: 4}, *vel)

	// the archetype type is the sorted id pair
	a, _, err := w.Location(e)
	require.NoError(t, err)
	want := []ecs.EntityId{w.Pos, w.Vel}
	if want[1] < want[0] {
		want[0], want[1] = want[1], want[0]
	}
	assert.Equal(t, want, a.Type())

	// absent component reads as nil
	assert.Nil(t, ecs.Get[Health](w.World, e, w.Health))
}

func TestAliveRoundTrip(t *testing.T) {
	w := newTestWorld()

	var ents []ecs.EntityId
	for i := 0; i < 50; i++ {
		e := w.New()
		if i%2 == 0 {
			require.NoError(t, w.Add(e, w.Pos))
		}
		ents = append(ents, e)
	}

	for _, e := range ents {
		require.True(t, w.Alive(e))
		a, row, err := w.Location(e)
		require.NoError(t, err)
		assert.Equal(t, e, a.Entities()[row])
	}
}

func TestGenerationSafety(t *testing.T) {
	w := newTestWorld()

	e := w.New()
	require.NoError(t, ecs.Set(w.World, e, w.Pos, Position{X: 5}))
	require.NoError(t, w.Delete(e))

	// the freed slot is reused with a bumped generation
	e2 := w.New()
	require.Equal(t, e.Index(), e2.Index())
	require.NotEqual(t, e, e2)

	assert.False(t, w.Alive(e))
	assert.True(t, w.Alive(e2))
	assert.Nil(t, ecs.Get[Position](w.World, e, w.Pos))

	_, _, err := w.Location(e)
	assert.ErrorIs(t, err, ecs.ErrEntityNotAlive)

	err = w.Add(e, w.Vel)
	assert.ErrorIs(t, err, ecs.ErrEntityNotAlive)
}

func TestMoveClosure(t *testing.T) {
	w := newTestWorld()

	e := w.New()
	require.NoError(t, w.Add(e, w.Pos))
	home, _, err := w.Location(e)
	require.NoError(t, err)

	require.NoError(t, w.Add(e, w.Vel))
	away, _, err := w.Location(e)
	require.NoError(t, err)
	require.NotSame(t, home, away)

	require.NoError(t, w.Remove(e, w.Vel))
	back, _, err := w.Location(e)
	require.NoError(t, err)
	assert.Same(t, home, back, "add/remove must return to the original archetype")
}

func TestMoveRunsDestructorOnce(t *testing.T) {
	w := ecs.NewWorld()
	calls := 0
	tracked := ecs.RegisterHooks[Score](w, "Tracked", ecs.Hooks{
		Dtor: func(ptr unsafe.Pointer, count int) { calls += count },
	})
	pos := ecs.Register[Position](w, "Position")

	e := w.New()
	require.NoError(t, w.Add(e, pos))
	require.NoError(t, w.Add(e, tracked))
	require.NoError(t, w.Remove(e, tracked))
	assert.Equal(t, 1, calls, "destructor must run exactly once on drop")
}

func TestDeleteRunsDestructors(t *testing.T) {
	w := ecs.NewWorld()
	calls := 0
	name := ecs.RegisterHooks[Score](w, "Name", ecs.Hooks{
		Dtor: func(ptr unsafe.Pointer, count int) { calls += count },
	})

	for i := 0; i < 100; i++ {
		e := w.New()
		require.NoError(t, ecs.Set(w, e, name, Score(i)))
		require.NoError(t, w.Delete(e))
	}
	assert.Equal(t, 100, calls)
}

func TestSwapAndPopUpdatesIndex(t *testing.T) {
	w := newTestWorld()

	var ents []ecs.EntityId
	for i := 0; i < 10; i++ {
		e := w.New()
		require.NoError(t, ecs.Set(w.World, e, w.Score, Score(i)))
		ents = append(ents, e)
	}

	// delete a middle entity; every survivor must still resolve
	require.NoError(t, w.Delete(ents[3]))
	for i, e := range ents {
		if i == 3 {
			assert.False(t, w.Alive(e))
			continue
		}
		a, row, err := w.Location(e)
		require.NoError(t, err)
		assert.Equal(t, e, a.Entities()[row])
		assert.Equal(t, Score(i), *ecs.Get[Score](w.World, e, w.Score))
	}
}

func TestAddIsIdempotent(t *testing.T) {
	w := newTestWorld()

	e := w.New()
	require.NoError(t, ecs.Set(w.World, e, w.Pos, Position{X: 9}))
	before, _, err := w.Location(e)
	require.NoError(t, err)

	require.NoError(t, w.Add(e, w.Pos))
	after, _, err := w.Location(e)
	require.NoError(t, err)
	assert.Same(t, before, after)
	assert.Equal(t, float32(9), ecs.Get[Position](w.World, e, w.Pos).X)
}

func TestTagsCarryNoColumns(t *testing.T) {
	w := newTestWorld()

	e := w.New()
	require.NoError(t, w.Add(e, w.Frozen))
	assert.True(t, w.Has(e, w.Frozen))

	p, ok := w.GetRaw(e, w.Frozen)
	assert.True(t, ok, "tag is present")
	assert.Nil(t, p, "tag has no data")
}

func TestUnregisteredComponent(t *testing.T) {
	w := newTestWorld()
	e := w.New()

	err := w.Add(e, ecs.EntityId(0xDEAD))
	assert.ErrorIs(t, err, ecs.ErrComponentNotRegistered)
}

func TestSetSizeMismatch(t *testing.T) {
	w := newTestWorld()
	e := w.New()

	type wide struct{ A, B, C, D float64 }
	err := ecs.Set(w.World, e, w.Pos, wide{})
	assert.ErrorIs(t, err, ecs.ErrColumnTypeMismatch)
}

func TestChildOfRelation(t *testing.T) {
	w := newTestWorld()

	p := w.New()
	c := w.New()
	require.NoError(t, w.Add(c, ecs.ChildOf|p))

	assert.True(t, w.Has(c, ecs.ChildOf|p))
	assert.False(t, w.Has(p, ecs.ChildOf|c))

	// deleting the child does not disturb the parent
	require.NoError(t, w.Delete(c))
	assert.True(t, w.Alive(p))
}

func TestSharedComponentThroughBase(t *testing.T) {
	w := newTestWorld()

	base := w.New()
	require.NoError(t, ecs.Set(w.World, base, w.Health, Health{Current: 80, Max: 100}))

	inst := w.New()
	require.NoError(t, w.Add(inst, ecs.InstanceOf|base))
	require.NoError(t, w.Add(inst, w.Pos))

	// the instance inherits the base's value
	h := ecs.Get[Health](w.World, inst, w.Health)
	require.NotNil(t, h)
	assert.Equal(t, Health{Current: 80, Max: 100}, *h)

	// the instance does not own the column
	_, owned := w.GetRaw(inst, w.Health)
	assert.False(t, owned)
	_, owned = w.GetRaw(base, w.Health)
	assert.True(t, owned)
}

func TestReadOnlyWindowBlocksMutations(t *testing.T) {
	w := newTestWorld()
	e := w.New()

	require.NoError(t, w.BeginReadOnly())
	assert.ErrorIs(t, w.Add(e, w.Pos), ecs.ErrInvalidOperation)
	assert.ErrorIs(t, w.Delete(e), ecs.ErrInvalidOperation)
	assert.Equal(t, ecs.EntityId(0), w.New())
	assert.ErrorIs(t, w.BeginDefer(), ecs.ErrInvalidOperation)
	w.EndReadOnly()

	assert.NoError(t, w.Add(e, w.Pos))
}

func TestDestructorReentryRejected(t *testing.T) {
	w := ecs.NewWorld()
	pos := ecs.Register[Position](w, "Position")

	var reentry error
	tracked := ecs.RegisterHooks[Score](w, "Tracked", ecs.Hooks{
		Dtor: func(ptr unsafe.Pointer, count int) {
			reentry = w.Add(w.New(), pos)
		},
	})

	e := w.New()
	require.NoError(t, w.Add(e, tracked))
	require.NoError(t, w.Remove(e, tracked))
	assert.ErrorIs(t, reentry, ecs.ErrInvalidOperation)
}
