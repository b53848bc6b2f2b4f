package ecs

// WorldStats is a point-in-time summary of a world's storage.
type WorldStats struct {
	ArchetypeCount   int
	TotalEntityCount int
	ComponentCount   int
	QueryCount       int
	Archetypes       []ArchetypeStats
}

// ArchetypeStats summarizes one archetype.
type ArchetypeStats struct {
	Components  int
	DataColumns int
	EntityCount int
}

// CollectStats gathers storage statistics across all archetypes.
func (w *World) CollectStats() *WorldStats {
	stats := &WorldStats{
		ArchetypeCount: len(w.store.list),
		ComponentCount: len(w.components.ordered),
		QueryCount:     len(w.queries),
	}
	for _, a := range w.store.list {
		stats.TotalEntityCount += a.Len()
		stats.Archetypes = append(stats.Archetypes, ArchetypeStats{
			Components:  len(a.typ),
			DataColumns: len(a.columns),
			EntityCount: a.Len(),
		})
	}
	return stats
}
