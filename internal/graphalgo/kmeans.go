package graphalgo

import (
	"math"
	"math/rand"
	"sort"
)

// KMeansOptions configures the clustering used for community semantic
// matching.
type KMeansOptions struct {
	K             int
	Seed          int64
	MaxIterations int
}

// KMeans clusters the given vectors and returns cluster index per id.
// Ids are processed in sorted order and centroids initialise from a seeded
// pick, so the assignment is reproducible. K is clamped to [1, len(vectors)].
func KMeans(vectors map[string][]float32, opts KMeansOptions) map[string]int {
	n := len(vectors)
	assignment := make(map[string]int, n)
	if n == 0 {
		return assignment
	}

	ids := make([]string, 0, n)
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	k := opts.K
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 25
	}

	dim := len(vectors[ids[0]])
	rng := rand.New(rand.NewSource(opts.Seed))

	// Initialise centroids from k distinct seeded picks.
	centroids := make([][]float64, k)
	for i, pick := range rng.Perm(n)[:k] {
		centroids[i] = toFloat64(vectors[ids[pick]])
	}

	members := make([]int, n)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		changed := false
		for i, id := range ids {
			best, bestDist := 0, math.Inf(1)
			vec := vectors[id]
			for c := range centroids {
				d := sqDist(vec, centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if members[i] != best {
				members[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, id := range ids {
			c := members[i]
			counts[c]++
			for d, v := range vectors[id] {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	for i, id := range ids {
		assignment[id] = members[i]
	}
	return assignment
}

// SemanticK returns the cluster count ⌊√n⌋, minimum 1.
func SemanticK(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(n))))
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func sqDist(a []float32, b []float64) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - b[i]
		sum += d * d
	}
	return sum
}
