// Package ecs is an in-memory entity-component data engine. Entities are
// 64-bit ids with no intrinsic data; components are typed values attached
// to entities and stored in archetypes, tables of parallel contiguous
// columns grouping every entity with an identical component set.
// Structural mutations move rows between archetypes along a cached
// transition graph; queries match filters against archetype types and
// iterate column slices in batches.
//
// A world is owned by a single goroutine. Mutations made while a deferred
// scope is open, or from inside an observer callback, are queued and
// replayed in order when the scope or the triggering operation completes.
// BeginReadOnly seals the world so read-only iteration can fan out to
// worker goroutines.
package ecs
