package embedding

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// knnGraph holds, for each row, its k nearest rows by euclidean distance.
// Position 0 of every row is the row itself at distance 0.
type knnGraph struct {
	indices [][]int
	dists   [][]float64
}

// nearestNeighbors computes the exact kNN graph of x. Rows are processed in
// parallel blocks; the result does not depend on scheduling.
func nearestNeighbors(ctx context.Context, x [][]float64, k int) (*knnGraph, error) {
	n := len(x)
	g := &knnGraph{
		indices: make([][]int, n),
		dists:   make([][]float64, n),
	}

	workers := runtime.GOMAXPROCS(0)
	blockSize := (n + workers - 1) / workers

	eg, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += blockSize {
		end := min(start+blockSize, n)
		eg.Go(func() error {
			order := make([]int, n)
			dist := make([]float64, n)
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				for j := range x {
					order[j] = j
					dist[j] = floats.Distance(x[i], x[j], 2)
				}
				// self first, then by distance, ties by index
				sort.Slice(order, func(a, b int) bool {
					ia, ib := order[a], order[b]
					if ia == i || ib == i {
						return ia == i && ib != i
					}
					if dist[ia] != dist[ib] {
						return dist[ia] < dist[ib]
					}
					return ia < ib
				})
				idx := make([]int, k)
				ds := make([]float64, k)
				for m := 0; m < k; m++ {
					idx[m] = order[m]
					ds[m] = dist[order[m]]
				}
				g.indices[i] = idx
				g.dists[i] = ds
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

// smoothKNNDist finds, per row, the distance to the nearest neighbour (rho)
// and the bandwidth (sigma) for which the neighbour memberships sum to log2(k).
func smoothKNNDist(dists [][]float64, k int) (sigmas, rhos []float64) {
	const (
		nIter        = 64
		tolerance    = 1e-5
		minDistScale = 1e-3
	)
	target := math.Log2(float64(k))

	var meanAll float64
	var count int
	for _, row := range dists {
		for _, d := range row {
			meanAll += d
			count++
		}
	}
	if count > 0 {
		meanAll /= float64(count)
	}

	n := len(dists)
	sigmas = make([]float64, n)
	rhos = make([]float64, n)
	for i, row := range dists {
		for _, d := range row {
			if d > 0 {
				rhos[i] = d
				break
			}
		}

		lo, hi, mid := 0.0, math.Inf(1), 1.0
		for it := 0; it < nIter; it++ {
			var psum float64
			for _, d := range row[1:] {
				if dd := d - rhos[i]; dd > 0 {
					psum += math.Exp(-dd / mid)
				} else {
					psum++
				}
			}
			if math.Abs(psum-target) < tolerance {
				break
			}
			if psum > target {
				hi = mid
				mid = (lo + hi) / 2
			} else {
				lo = mid
				if math.IsInf(hi, 1) {
					mid *= 2
				} else {
					mid = (lo + hi) / 2
				}
			}
		}
		sigmas[i] = mid

		floor := minDistScale * meanAll
		if rhos[i] > 0 {
			floor = minDistScale * floats.Sum(row) / float64(len(row))
		}
		if sigmas[i] < floor {
			sigmas[i] = floor
		}
	}
	return sigmas, rhos
}
