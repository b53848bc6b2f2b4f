package ecs_test

import (
	"github.com/plus3/tabula/ecs"
)

type Position struct {
	X, Y float32
}

type Velocity struct {
	X, Y float32
}

type Health struct {
	Current int32
	Max     int32
}

type Score int64

// testWorld bundles a world with the component ids the tests use.
type testWorld struct {
	*ecs.World
	Pos    ecs.EntityId
	Vel    ecs.EntityId
	Health ecs.EntityId
	Score  ecs.EntityId
	Frozen ecs.EntityId // tag
}

func newTestWorld() *testWorld {
	w := ecs.NewWorld()
	return &testWorld{
		World:  w,
		Pos:    ecs.Register[Position](w, "Position"),
		Vel:    ecs.Register[Velocity](w, "Velocity"),
		Health: ecs.Register[Health](w, "Health"),
		Score:  ecs.Register[Score](w, "Score"),
		Frozen: w.RegisterTag("Frozen"),
	}
}
