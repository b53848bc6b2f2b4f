package ecs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/tabula/ecs"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := ecs.LoadConfig([]byte(`
initial_capacity: 4096
checked: false
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.InitialCapacity)
	assert.False(t, cfg.Checked)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := ecs.LoadConfig([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, ecs.DefaultConfig().InitialCapacity, cfg.InitialCapacity)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := ecs.LoadConfig([]byte(`initial_capacity: [nope`))
	assert.Error(t, err)

	_, err = ecs.LoadConfig([]byte(`log_level: shouting`))
	assert.Error(t, err)
}

func TestWorldsAreIndependent(t *testing.T) {
	w1 := ecs.NewWorld()
	w2 := ecs.NewWorld()
	assert.NotEqual(t, w1.ID(), w2.ID())

	// component ids are per-world, not process-wide
	ecs.Register[Position](w1, "Position")
	ecs.Register[Velocity](w2, "Velocity")
	id2 := ecs.Register[Position](w2, "Position")

	e := w2.New()
	require.NoError(t, w2.Add(e, id2))
	assert.True(t, w2.Has(e, id2))

	_, ok := w1.Lookup("Velocity")
	assert.False(t, ok)
}
