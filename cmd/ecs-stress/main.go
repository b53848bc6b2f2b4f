package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/profile"

	"github.com/plus3/tabula/ecs"
)

type Position struct {
	Vec mgl32.Vec2
}

type Velocity struct {
	Vec mgl32.Vec2
}

type Health struct {
	Current int32
	Max     int32
}

func main() {
	duration := flag.Duration("duration", 10*time.Second, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 10000, "The initial number of entities to create.")
	churn := flag.Int("churn", 100, "Entities deleted and respawned per frame.")
	parallelEvery := flag.Int("parallel-every", 16, "Run a sealed parallel read pass every N frames (0 disables).")
	configPath := flag.String("config", "", "Optional YAML world config file.")
	profileMode := flag.String("profile", "", "Enable profiling: cpu or mem.")
	flag.Parse()

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	cfg := ecs.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = ecs.LoadConfigFile(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	log.Println("Starting ECS stress test...")

	world := ecs.NewWorldWith(cfg)
	posID := ecs.Register[Position](world, "Position")
	velID := ecs.Register[Velocity](world, "Velocity")
	healthID := ecs.Register[Health](world, "Health")

	log.Printf("Populating world with %d entities...\n", *entityCount)
	entities := make([]ecs.EntityId, 0, *entityCount)
	for i := 0; i < *entityCount; i++ {
		entities = append(entities, spawn(world, posID, velID, healthID))
	}
	log.Println("Population complete.")

	moveQuery, err := world.Query("[inout] Position, [in] Velocity")
	if err != nil {
		log.Fatalf("compile move query: %v", err)
	}
	readQuery, err := world.Query("[in] Position")
	if err != nil {
		log.Fatalf("compile read query: %v", err)
	}

	report := &Report{
		Duration:   *duration,
		Entities:   *entityCount,
		Churn:      *churn,
		UpdateTime: Stats{Samples: make([]time.Duration, 0)},
	}
	runtime.ReadMemStats(&report.MemStatsStart)

	log.Printf("Running simulation for %s...\n", *duration)
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	startTime := time.Now()
	var totalUpdates int64
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime).Seconds()
			lastFrameTime = time.Now()

			updateStart := time.Now()
			step(world, moveQuery, float32(deltaTime))
			entities = churnEntities(world, entities, *churn, posID, velID, healthID)
			if *parallelEvery > 0 && totalUpdates%int64(*parallelEvery) == 0 {
				if err := parallelReadPass(ctx, world, readQuery); err != nil {
					log.Fatalf("parallel read pass: %v", err)
				}
			}
			report.UpdateTime.Samples = append(report.UpdateTime.Samples, time.Since(updateStart))
			totalUpdates++
		}
	}

	report.TotalTime = time.Since(startTime)
	report.TotalUpdates = totalUpdates
	report.UpdateTime.Finalize()
	report.WorldStats = world.CollectStats()
	runtime.ReadMemStats(&report.MemStatsEnd)

	log.Println("Simulation finished.")

	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}
	fmt.Println("--- End of Report ---")

	log.Println("Stress test complete.")
}

func spawn(world *ecs.World, posID, velID, healthID ecs.EntityId) ecs.EntityId {
	e := world.New()
	must(ecs.Set(world, e, posID, Position{Vec: mgl32.Vec2{rand.Float32() * 100, rand.Float32() * 100}}))
	must(ecs.Set(world, e, velID, Velocity{Vec: mgl32.Vec2{rand.Float32() - 0.5, rand.Float32() - 0.5}}))
	if rand.Intn(2) == 0 {
		must(ecs.Set(world, e, healthID, Health{Current: 100, Max: 100}))
	}
	return e
}

// step advances every positioned entity by its velocity.
func step(world *ecs.World, q *ecs.Query, dt float32) {
	it := q.Iter()
	for it.Next() {
		b := it.Batch()
		pos, err := ecs.Field[Position](b, 0)
		must(err)
		vel, err := ecs.Field[Velocity](b, 1)
		must(err)
		for i := range pos {
			pos[i].Vec = pos[i].Vec.Add(vel[i].Vec.Mul(dt))
		}
	}
}

// churnEntities deletes a slice of the population inside one deferred
// scope, exercising the command buffer replay path, then respawns as many
// entities outside the scope.
func churnEntities(world *ecs.World, entities []ecs.EntityId, n int, posID, velID, healthID ecs.EntityId) []ecs.EntityId {
	if n > len(entities) {
		n = len(entities)
	}
	must(world.BeginDefer())
	for i := 0; i < n; i++ {
		victim := rand.Intn(len(entities))
		must(world.Delete(entities[victim]))
		entities[victim] = entities[len(entities)-1]
		entities = entities[:len(entities)-1]
	}
	if err := world.EndDefer(); err != nil {
		log.Fatalf("churn replay: %v", err)
	}
	for i := 0; i < n; i++ {
		entities = append(entities, spawn(world, posID, velID, healthID))
	}
	return entities
}

// parallelReadPass seals the world and sums positions across worker
// goroutines, one per matched archetype.
func parallelReadPass(ctx context.Context, world *ecs.World, q *ecs.Query) error {
	if err := world.BeginReadOnly(); err != nil {
		return err
	}
	defer world.EndReadOnly()
	return q.EachParallel(ctx, func(b *ecs.TableBatch) error {
		pos, err := ecs.Field[Position](b, 0)
		if err != nil {
			return err
		}
		var sum mgl32.Vec2
		for i := range pos {
			sum = sum.Add(pos[i].Vec)
		}
		_ = sum
		return nil
	})
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
