package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAllocReusesFreedSlots(t *testing.T) {
	ix := newEntityIndex(16)

	a := ix.alloc()
	b := ix.alloc()
	assert.NotEqual(t, a.Index(), b.Index())

	ix.release(a)
	c := ix.alloc()
	assert.Equal(t, a.Index(), c.Index(), "freed slot should be reused first")
	assert.Equal(t, a.Generation()+1, c.Generation())
}

func TestIndexGenerationSafety(t *testing.T) {
	ix := newEntityIndex(16)

	stale := ix.alloc()
	ix.release(stale)
	fresh := ix.alloc()
	require.Equal(t, stale.Index(), fresh.Index())

	assert.False(t, ix.alive(stale))
	assert.True(t, ix.alive(fresh))

	_, err := ix.get(stale)
	assert.ErrorIs(t, err, ErrEntityNotAlive)
}

func TestIndexNullAndFlaggedIds(t *testing.T) {
	ix := newEntityIndex(16)
	e := ix.alloc()

	assert.False(t, ix.alive(0), "the null id is never alive")
	assert.False(t, ix.alive(ChildOf|e), "role-flagged ids are keys, not entities")
	assert.False(t, ix.alive(newEntityId(9999, 0)))
}

func TestIndexRecordPointersStableAcrossGrowth(t *testing.T) {
	ix := newEntityIndex(1)

	first := ix.alloc()
	rec := ix.record(first.Index())
	for i := 0; i < indexPageSize*3; i++ {
		ix.alloc()
	}
	assert.Same(t, rec, ix.record(first.Index()))
}

func TestIndexSetAndGet(t *testing.T) {
	ix := newEntityIndex(16)
	reg := newComponentRegistry()
	s := newStore(reg)

	e := ix.alloc()
	ix.set(e, s.empty, 3)

	rec, err := ix.get(e)
	require.NoError(t, err)
	assert.Same(t, s.empty, rec.archetype)
	assert.Equal(t, uint32(3), rec.row)
}
