package embedding

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// spectralMaxPoints bounds the dense eigendecomposition used by spectral init.
const spectralMaxPoints = 4000

var errSpectralUnavailable = errors.New("spectral layout unavailable")

// randomLayout draws every coordinate uniformly from [-10, 10).
func randomLayout(rng *rand.Rand, n, dim int) [][]float64 {
	y := make([][]float64, n)
	for i := range y {
		y[i] = make([]float64, dim)
		for d := range y[i] {
			y[i][d] = rng.Float64()*20 - 10
		}
	}
	return y
}

// spectralLayout embeds the graph with the eigenvectors of its symmetric
// normalized Laplacian, skipping the trivial first one.
func spectralLayout(g *fuzzyGraph, dim int) ([][]float64, error) {
	n := g.n
	if n > spectralMaxPoints {
		return nil, fmt.Errorf("%w: %d points exceeds dense limit %d", errSpectralUnavailable, n, spectralMaxPoints)
	}
	if dim+1 >= n {
		return nil, fmt.Errorf("%w: need more than %d points for %d dimensions", errSpectralUnavailable, dim+1, dim)
	}

	deg := g.degrees()
	invSqrt := make([]float64, n)
	for i, d := range deg {
		if d <= 0 {
			return nil, fmt.Errorf("%w: point %d is isolated", errSpectralUnavailable, i)
		}
		invSqrt[i] = 1 / math.Sqrt(d)
	}

	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		lap.SetSym(i, i, 1)
	}
	for e, h := range g.head {
		t := g.tail[e]
		if h < t {
			lap.SetSym(h, t, -g.weights[e]*invSqrt[h]*invSqrt[t])
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(lap, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition did not converge", errSpectralUnavailable)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	y := make([][]float64, n)
	for i := range y {
		y[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			y[i][d] = vecs.At(i, d+1)
		}
	}
	return y, nil
}

// pcaLayout uses the leading principal components of x as the start layout.
func pcaLayout(x *mat.Dense, dim int) ([][]float64, error) {
	if _, c := x.Dims(); c < dim {
		return nil, fmt.Errorf("pca init needs at least %d input dimensions, got %d", dim, c)
	}
	_, proj, err := FitPCA(x, nil, dim)
	if err != nil {
		return nil, err
	}
	r, _ := proj.Dims()
	y := make([][]float64, r)
	for i := range y {
		y[i] = mat.Row(nil, i, proj)
	}
	return y, nil
}

// rescaleLayout jitters y slightly and maps every column onto [0, 10].
func rescaleLayout(rng *rand.Rand, y [][]float64) {
	if len(y) == 0 {
		return
	}
	dim := len(y[0])

	var maxAbs float64
	for _, row := range y {
		for _, v := range row {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}
	expansion := 1.0
	if maxAbs > 0 {
		expansion = 10 / maxAbs
	}
	for _, row := range y {
		for d := range row {
			row[d] = row[d]*expansion + rng.NormFloat64()*1e-4
		}
	}

	for d := 0; d < dim; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range y {
			lo = math.Min(lo, row[d])
			hi = math.Max(hi, row[d])
		}
		if hi-lo == 0 {
			continue
		}
		for _, row := range y {
			row[d] = 10 * (row[d] - lo) / (hi - lo)
		}
	}
}
