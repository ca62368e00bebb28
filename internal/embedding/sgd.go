package embedding

import (
	"context"
	"math"
	"math/rand"

	"umapembed/internal/logger"
)

const (
	negativeSampleRate = 5
	repulsionStrength  = 1.0
	initialAlpha       = 1.0
	gradClip           = 4.0
)

// layoutSchedule decides how often each edge is sampled during SGD.
type layoutSchedule struct {
	head, tail          []int
	epochsPerSample     []float64
	epochOfNextSample   []float64
	epochsPerNegative   []float64
	epochOfNextNegative []float64
}

// newSchedule drops edges too weak to be sampled in nEpochs and gives the
// rest a sampling period inversely proportional to their weight.
func newSchedule(g *fuzzyGraph, nEpochs int) *layoutSchedule {
	s := &layoutSchedule{}
	maxW := g.maxWeight()
	if maxW == 0 {
		return s
	}
	cutoff := maxW / float64(nEpochs)
	for e, w := range g.weights {
		if w < cutoff {
			continue
		}
		eps := maxW / w
		s.head = append(s.head, g.head[e])
		s.tail = append(s.tail, g.tail[e])
		s.epochsPerSample = append(s.epochsPerSample, eps)
		s.epochOfNextSample = append(s.epochOfNextSample, eps)
		s.epochsPerNegative = append(s.epochsPerNegative, eps/negativeSampleRate)
		s.epochOfNextNegative = append(s.epochOfNextNegative, eps/negativeSampleRate)
	}
	return s
}

func clip(v float64) float64 {
	return math.Max(-gradClip, math.Min(gradClip, v))
}

func squaredDistance(a, b []float64) float64 {
	var s float64
	for d := range a {
		diff := a[d] - b[d]
		s += diff * diff
	}
	return s
}

// optimizeLayout runs negative-sampling SGD over y in place. It stays on
// one goroutine so a fixed rng gives a fixed result.
func optimizeLayout(ctx context.Context, y [][]float64, s *layoutSchedule, a, b float64, nEpochs int, rng *rand.Rand) error {
	n := len(y)
	dim := len(y[0])
	grad := make([]float64, dim)

	for epoch := 0; epoch < nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := initialAlpha * (1 - float64(epoch)/float64(nEpochs))
		fe := float64(epoch)

		for e := range s.head {
			if s.epochOfNextSample[e] > fe {
				continue
			}
			cur, other := y[s.head[e]], y[s.tail[e]]

			d2 := squaredDistance(cur, other)
			var coeff float64
			if d2 > 0 {
				coeff = -2 * a * b * math.Pow(d2, b-1) / (a*math.Pow(d2, b) + 1)
			}
			for d := range cur {
				grad[d] = clip(coeff * (cur[d] - other[d]))
				cur[d] += grad[d] * alpha
				other[d] -= grad[d] * alpha
			}
			s.epochOfNextSample[e] += s.epochsPerSample[e]

			nNeg := int((fe - s.epochOfNextNegative[e]) / s.epochsPerNegative[e])
			for p := 0; p < nNeg; p++ {
				k := rng.Intn(n)
				if k == s.head[e] {
					continue
				}
				neg := y[k]
				d2 := squaredDistance(cur, neg)
				coeff = 0
				if d2 > 0 {
					coeff = 2 * repulsionStrength * b / ((0.001 + d2) * (a*math.Pow(d2, b) + 1))
				}
				for d := range cur {
					g := gradClip
					if coeff > 0 {
						g = clip(coeff * (cur[d] - neg[d]))
					}
					cur[d] += g * alpha
				}
			}
			s.epochOfNextNegative[e] += float64(nNeg) * s.epochsPerNegative[e]
		}

		if nEpochs >= 10 && epoch%(nEpochs/10) == 0 {
			logger.Debug("UMAP optimisation", "epoch", epoch, "of", nEpochs)
		}
	}
	return nil
}
