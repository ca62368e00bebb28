package embedding

import "math"

// fuzzyGraph is the symmetric fuzzy simplicial set as a directed edge list;
// every undirected edge appears once in each direction.
type fuzzyGraph struct {
	n       int
	head    []int
	tail    []int
	weights []float64
}

type edgeKey struct{ from, to int }

// fuzzySimplicialSet turns the kNN graph into membership strengths and
// combines the two directions with the fuzzy union a + b - a*b.
func fuzzySimplicialSet(knn *knnGraph, sigmas, rhos []float64) *fuzzyGraph {
	n := len(knn.indices)
	directed := make(map[edgeKey]float64)
	var order []edgeKey

	for i := 0; i < n; i++ {
		for m, j := range knn.indices[i] {
			if j == i {
				continue
			}
			d := knn.dists[i][m] - rhos[i]
			w := 1.0
			if d > 0 && sigmas[i] > 0 {
				w = math.Exp(-d / sigmas[i])
			}
			key := edgeKey{i, j}
			if _, seen := directed[key]; !seen {
				order = append(order, key)
			}
			directed[key] = w
		}
	}

	g := &fuzzyGraph{n: n}
	done := make(map[edgeKey]bool)
	for _, key := range order {
		lo, hi := key.from, key.to
		if lo > hi {
			lo, hi = hi, lo
		}
		if done[edgeKey{lo, hi}] {
			continue
		}
		done[edgeKey{lo, hi}] = true

		a := directed[edgeKey{lo, hi}]
		b := directed[edgeKey{hi, lo}]
		w := a + b - a*b
		if w <= 0 {
			continue
		}
		g.head = append(g.head, lo, hi)
		g.tail = append(g.tail, hi, lo)
		g.weights = append(g.weights, w, w)
	}
	return g
}

// maxWeight returns the largest edge weight, or 0 for an empty graph.
func (g *fuzzyGraph) maxWeight() float64 {
	var m float64
	for _, w := range g.weights {
		m = math.Max(m, w)
	}
	return m
}

// degrees returns the weighted degree of every vertex.
func (g *fuzzyGraph) degrees() []float64 {
	deg := make([]float64, g.n)
	for e, h := range g.head {
		deg[h] += g.weights[e]
	}
	return deg
}
