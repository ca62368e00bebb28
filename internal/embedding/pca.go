package embedding

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCAModel is a fitted linear projection.
type PCAModel struct {
	Columns                []string    `json:"columns"`
	Means                  []float64   `json:"means"`
	Components             [][]float64 `json:"components"` // k x features, unit vectors
	ExplainedVariance      []float64   `json:"explained_variance"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
}

// NComponents returns the number of retained components.
func (m *PCAModel) NComponents() int {
	return len(m.Components)
}

// FitPCA fits k principal components of x and returns the model together
// with the projected rows. k is capped at min(rows, columns).
func FitPCA(x mat.Matrix, columns []string, k int) (*PCAModel, *mat.Dense, error) {
	r, c := x.Dims()
	if r < 2 {
		return nil, nil, fmt.Errorf("PCA needs at least 2 rows, got %d", r)
	}
	if k <= 0 {
		return nil, nil, fmt.Errorf("PCA needs a positive component count, got %d", k)
	}
	k = min(k, r, c)

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, nil, errors.New("PCA decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	means := make([]float64, c)
	col := make([]float64, r)
	for j := range means {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
	}

	model := &PCAModel{
		Columns:                append([]string(nil), columns...),
		Means:                  means,
		Components:             make([][]float64, k),
		ExplainedVariance:      append([]float64(nil), vars[:k]...),
		ExplainedVarianceRatio: make([]float64, k),
	}
	total := floats.Sum(vars)
	for i := 0; i < k; i++ {
		model.Components[i] = mat.Col(nil, i, &vecs)
		if total > 0 {
			model.ExplainedVarianceRatio[i] = vars[i] / total
		}
	}

	proj, err := model.Transform(x)
	if err != nil {
		return nil, nil, err
	}
	return model, proj, nil
}

// Transform centers x with the fitted means and projects it onto the components.
func (m *PCAModel) Transform(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(m.Means) {
		return nil, fmt.Errorf("feature count mismatch: model has %d, input has %d", len(m.Means), c)
	}

	centered := mat.NewDense(r, c, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - m.Means[j] }, x)

	basis := mat.NewDense(c, m.NComponents(), nil)
	for i, comp := range m.Components {
		basis.SetCol(i, comp)
	}

	var out mat.Dense
	out.Mul(centered, basis)
	return &out, nil
}
