package graphalgo

import (
	"math"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/graph"
)

// KCoreResult holds the entity-importance selection.
type KCoreResult struct {
	// Threshold is the computed effective-degree cutoff.
	Threshold int

	// Entities are the important entity ids, alphabetical.
	Entities []string

	// Degrees maps every entity id to its effective degree.
	Degrees map[string]int
}

// KCoreEntities selects important entities by effective degree. An entity's
// effective degree counts only its distinct Unit and Relationship neighbours.
// The threshold is ⌊log(|V|)·√(avgDegree)⌋ computed over all nodes, and at
// least 1.
func KCoreEntities(snap *graph.Snapshot) *KCoreResult {
	ids := snap.IDs()
	n := len(ids)
	result := &KCoreResult{Degrees: make(map[string]int)}
	if n == 0 {
		return result
	}

	var degreeSum int
	for _, id := range ids {
		degreeSum += snap.Degree(id)
	}
	avgDegree := float64(degreeSum) / float64(n)
	result.Threshold = int(math.Floor(math.Log(float64(n)) * math.Sqrt(avgDegree)))
	if result.Threshold < 1 {
		result.Threshold = 1
	}

	for _, el := range snap.ElementsOfKind(graph.KindEntity) {
		deg := 0
		for _, nb := range snap.Neighbours(el.ID) {
			other := snap.Get(nb)
			if other == nil {
				continue
			}
			if other.Kind == graph.KindUnit || other.Kind == graph.KindRelationship {
				deg++
			}
		}
		result.Degrees[el.ID] = deg
		if deg >= result.Threshold {
			result.Entities = append(result.Entities, el.ID)
		}
	}
	sort.Strings(result.Entities)
	return result
}
