package clustering

import (
	"math"
	"math/rand"

	"umapembed/internal/logger"

	"gonum.org/v1/gonum/floats"
)

// Silhouette scoring costs O(n) distance evaluations per scored point, so
// larger clusterings are scored on a seeded sample of this many points.
const (
	SilhouetteSampleSize = 2000
	silhouetteSeed       = 42
)

// SilhouetteScore calculates the silhouette score for a single data point
// Returns a score between -1 and 1:
//
//	-1: Point likely in wrong cluster
//	 0: Point on the border between clusters
//	+1: Point well matched to its cluster
func SilhouetteScore(pointIdx int, points [][]float64, labels []int) float64 {
	if pointIdx < 0 || pointIdx >= len(labels) {
		return 0.0
	}
	current := labels[pointIdx]

	// Sum distances per cluster in one pass over the points.
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, l := range labels {
		if i == pointIdx || l == NoiseLabel {
			continue
		}
		sums[l] += floats.Distance(points[pointIdx], points[i], 2)
		counts[l]++
	}
	if counts[current] == 0 {
		return 0.0 // Singleton cluster
	}
	a := sums[current] / float64(counts[current])

	b := math.Inf(1)
	for l, n := range counts {
		if l != current {
			b = math.Min(b, sums[l]/float64(n))
		}
	}
	if math.IsInf(b, 1) {
		return 0.0 // No other clusters
	}

	if m := math.Max(a, b); m > 0 {
		return (b - a) / m
	}
	return 0.0
}

// SilhouetteAnalysis summarises how well separated a clustering is.
// Noise points are left out of every score.
type SilhouetteAnalysis struct {
	OverallScore  float64         // Average across scored points
	ClusterScores map[int]float64 // Per-cluster average scores
	NumClusters   int
	NumPoints     int  // Scored points, noise excluded
	Sampled       bool // NumPoints is a sample of the clustered points
	Quality       string
}

// PerformSilhouetteAnalysis scores labels against the euclidean geometry of
// points, sampling at most SilhouetteSampleSize clustered points.
func PerformSilhouetteAnalysis(points [][]float64, labels []int) *SilhouetteAnalysis {
	return silhouetteAnalysis(points, labels, SilhouetteSampleSize, silhouetteSeed)
}

func silhouetteAnalysis(points [][]float64, labels []int, maxSample int, seed int64) *SilhouetteAnalysis {
	var scored []int
	for i, l := range labels {
		if l != NoiseLabel {
			scored = append(scored, i)
		}
	}
	sampled := maxSample > 0 && len(scored) > maxSample
	if sampled {
		logger.Debug("Sampling points for silhouette score", "clustered", len(scored), "sample", maxSample)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(scored), func(i, j int) { scored[i], scored[j] = scored[j], scored[i] })
		scored = scored[:maxSample]
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	var total float64
	for _, i := range scored {
		s := SilhouetteScore(i, points, labels)
		sums[labels[i]] += s
		counts[labels[i]]++
		total += s
	}

	analysis := &SilhouetteAnalysis{
		ClusterScores: make(map[int]float64, len(sums)),
		NumClusters:   len(counts),
		NumPoints:     len(scored),
		Sampled:       sampled,
	}
	for l, s := range sums {
		analysis.ClusterScores[l] = s / float64(counts[l])
	}
	if len(scored) > 0 {
		analysis.OverallScore = total / float64(len(scored))
	}
	analysis.Quality = interpretSilhouetteScore(analysis.OverallScore)
	return analysis
}

// interpretSilhouetteScore provides human-readable interpretation
func interpretSilhouetteScore(score float64) string {
	switch {
	case score >= 0.71:
		return "Excellent - Strong cluster structure"
	case score >= 0.51:
		return "Good - Reasonable cluster structure"
	case score >= 0.26:
		return "Fair - Weak cluster structure"
	case score >= 0.0:
		return "Poor - No substantial cluster structure"
	default:
		return "Very Poor - Artificial/forced clustering"
	}
}

// Quality interprets the stored silhouette score.
func (r *Result) Quality() string {
	if len(r.Clusters) < 2 {
		return "n/a"
	}
	return interpretSilhouetteScore(r.Silhouette)
}
