package embedding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// fitAB fits the low-dimensional similarity curve 1 / (1 + a*d^(2b)) to an
// offset exponential decay determined by spread and minDist. The search runs
// in log space so a and b stay positive.
func fitAB(spread, minDist float64) (a, b float64, err error) {
	const samples = 300
	xs := make([]float64, samples)
	floats.Span(xs, 0, 3*spread)
	ys := make([]float64, samples)
	for i, x := range xs {
		if x < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist) / spread)
		}
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			a, b := math.Exp(p[0]), math.Exp(p[1])
			var sse float64
			for i, x := range xs {
				r := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
				sse += r * r
			}
			return sse
		},
	}
	result, err := optimize.Minimize(problem, []float64{0, 0}, nil, &optimize.NelderMead{})
	if result == nil {
		return 0, 0, fmt.Errorf("failed to fit curve parameters: %w", err)
	}
	a, b = math.Exp(result.X[0]), math.Exp(result.X[1])
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, 0, fmt.Errorf("curve fit diverged for spread=%g min_dist=%g", spread, minDist)
	}
	return a, b, nil
}
