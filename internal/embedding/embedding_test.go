package embedding

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"umapembed/internal/dataset"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// blobs returns groups*perGroup rows of dim features around well separated centres.
func blobs(groups, perGroup, dim int, seed int64) *dataset.Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &dataset.Dataset{}
	for j := 0; j < dim; j++ {
		ds.Columns = append(ds.Columns, "f"+strconv.Itoa(j))
	}
	for g := 0; g < groups; g++ {
		for p := 0; p < perGroup; p++ {
			row := make([]float64, dim)
			for j := range row {
				row[j] = float64(g)*50 + rng.NormFloat64()
			}
			ds.Rows = append(ds.Rows, row)
			ds.Index = append(ds.Index, strconv.Itoa(len(ds.Index)))
		}
	}
	return ds
}

func TestFitPCA_VarianceOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := mat.NewDense(200, 3, nil)
	for i := 0; i < 200; i++ {
		x.Set(i, 0, rng.NormFloat64()*10)
		x.Set(i, 1, rng.NormFloat64()*3)
		x.Set(i, 2, rng.NormFloat64()*0.5)
	}

	model, proj, err := FitPCA(x, []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("FitPCA failed: %v", err)
	}
	if model.NComponents() != 2 {
		t.Fatalf("Expected 2 components, got %d", model.NComponents())
	}
	if r, c := proj.Dims(); r != 200 || c != 2 {
		t.Errorf("Expected 200x2 projection, got %dx%d", r, c)
	}
	if model.ExplainedVariance[0] < model.ExplainedVariance[1] {
		t.Errorf("Explained variance not descending: %v", model.ExplainedVariance)
	}
	if sum := floats.Sum(model.ExplainedVarianceRatio); sum > 1+1e-9 {
		t.Errorf("Explained variance ratio sums to %f, want <= 1", sum)
	}
	if math.Abs(model.Components[0][0]) < 0.9 {
		t.Errorf("First component should align with the widest feature, got %v", model.Components[0])
	}
	for i, comp := range model.Components {
		if n := floats.Norm(comp, 2); math.Abs(n-1) > 1e-9 {
			t.Errorf("Component %d has norm %f, want 1", i, n)
		}
	}
}

func TestFitPCA_CapsComponents(t *testing.T) {
	ds := blobs(2, 5, 3, 1)
	model, proj, err := FitPCA(ds.Matrix(), ds.Columns, 20)
	if err != nil {
		t.Fatalf("FitPCA failed: %v", err)
	}
	if model.NComponents() != 3 {
		t.Errorf("Expected components capped at 3, got %d", model.NComponents())
	}
	if _, c := proj.Dims(); c != 3 {
		t.Errorf("Expected 3 projected columns, got %d", c)
	}
}

func TestFitPCA_Errors(t *testing.T) {
	if _, _, err := FitPCA(mat.NewDense(1, 3, nil), nil, 2); err == nil {
		t.Error("Expected error for a single row")
	}
	if _, _, err := FitPCA(mat.NewDense(4, 3, nil), nil, 0); err == nil {
		t.Error("Expected error for zero components")
	}

	ds := blobs(2, 5, 3, 1)
	model, _, err := FitPCA(ds.Matrix(), ds.Columns, 2)
	if err != nil {
		t.Fatalf("FitPCA failed: %v", err)
	}
	if _, err := model.Transform(mat.NewDense(2, 4, nil)); err == nil {
		t.Error("Expected error for feature count mismatch")
	}
}

func TestSmoothKNNDist_HitsTarget(t *testing.T) {
	ds := blobs(1, 30, 4, 2)
	rows := ds.Rows
	const k = 8

	knn, err := nearestNeighbors(context.Background(), rows, k)
	if err != nil {
		t.Fatalf("nearestNeighbors failed: %v", err)
	}
	for i, idx := range knn.indices {
		if idx[0] != i {
			t.Fatalf("Row %d: expected self first, got %d", i, idx[0])
		}
		for m := 2; m < k; m++ {
			if knn.dists[i][m] < knn.dists[i][m-1] {
				t.Fatalf("Row %d: neighbours not sorted by distance", i)
			}
		}
	}

	sigmas, rhos := smoothKNNDist(knn.dists, k)
	target := math.Log2(k)
	for i, row := range knn.dists {
		var psum float64
		for _, d := range row[1:] {
			psum += math.Exp(-math.Max(0, d-rhos[i]) / sigmas[i])
		}
		if math.Abs(psum-target) > 1e-3 {
			t.Errorf("Row %d: membership sum %f, want %f", i, psum, target)
		}
		if rhos[i] != knn.dists[i][1] {
			t.Errorf("Row %d: rho %f, want nearest distance %f", i, rhos[i], knn.dists[i][1])
		}
	}
}

func TestFuzzySimplicialSet_Symmetric(t *testing.T) {
	ds := blobs(2, 10, 3, 3)
	knn, err := nearestNeighbors(context.Background(), ds.Rows, 5)
	if err != nil {
		t.Fatalf("nearestNeighbors failed: %v", err)
	}
	sigmas, rhos := smoothKNNDist(knn.dists, 5)
	g := fuzzySimplicialSet(knn, sigmas, rhos)

	weights := make(map[edgeKey]float64)
	for e := range g.head {
		if g.head[e] == g.tail[e] {
			t.Fatalf("Self loop at edge %d", e)
		}
		if w := g.weights[e]; w <= 0 || w > 1 {
			t.Fatalf("Edge weight %f outside (0, 1]", w)
		}
		weights[edgeKey{g.head[e], g.tail[e]}] = g.weights[e]
	}
	for key, w := range weights {
		if back, ok := weights[edgeKey{key.to, key.from}]; !ok || back != w {
			t.Errorf("Edge %v has no matching reverse edge", key)
		}
	}
}

func TestFitAB_KnownValues(t *testing.T) {
	a, b, err := fitAB(1.0, 0.1)
	if err != nil {
		t.Fatalf("fitAB failed: %v", err)
	}
	if math.Abs(a-1.577) > 0.05 || math.Abs(b-0.895) > 0.05 {
		t.Errorf("fitAB(1, 0.1) = (%f, %f), want about (1.577, 0.895)", a, b)
	}
}

func TestFit_DeterministicAndPersisted(t *testing.T) {
	ds := blobs(3, 10, 6, 4)
	dir := filepath.Join(t.TempDir(), "intermediate_data", "blobs")
	params := Params{
		PCAComponents: 2,
		NNeighbors:    5,
		MinDist:       0.1,
		Spread:        1,
		Init:          InitSpectral,
		NComponents:   2,
		NEpochs:       60,
		Seed:          7,
		EmbedDir:      dir,
	}

	first, err := Fit(context.Background(), ds, params)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	params.EmbedDir = ""
	second, err := Fit(context.Background(), ds, params)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if first.Len() != 30 {
		t.Fatalf("Expected 30 embedded rows, got %d", first.Len())
	}
	for i := range first.Coordinates {
		if len(first.Coordinates[i]) != 2 {
			t.Fatalf("Row %d has %d coordinates, want 2", i, len(first.Coordinates[i]))
		}
		if !floats.Equal(first.Coordinates[i], second.Coordinates[i]) {
			t.Fatalf("Row %d differs between seeded runs: %v vs %v", i, first.Coordinates[i], second.Coordinates[i])
		}
	}

	for _, name := range []string{PCAModelFile, UMAPParamsFile, EmbeddingFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected artifact %s: %v", name, err)
		}
	}
}

func TestFit_SeparatesBlobs(t *testing.T) {
	ds := blobs(3, 12, 5, 5)
	res, err := Fit(context.Background(), ds, Params{
		PCAComponents: 3,
		NNeighbors:    5,
		MinDist:       0.1,
		Spread:        1,
		Init:          InitRandom,
		NComponents:   2,
		NEpochs:       200,
		Seed:          11,
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	var intra, inter float64
	var nIntra, nInter int
	for i := range res.Coordinates {
		for j := i + 1; j < len(res.Coordinates); j++ {
			d := floats.Distance(res.Coordinates[i], res.Coordinates[j], 2)
			if i/12 == j/12 {
				intra += d
				nIntra++
			} else {
				inter += d
				nInter++
			}
		}
	}
	if intra/float64(nIntra) >= inter/float64(nInter) {
		t.Errorf("Mean within-blob distance %f not below between-blob distance %f",
			intra/float64(nIntra), inter/float64(nInter))
	}
}

func TestFit_Errors(t *testing.T) {
	ds := blobs(1, 1, 3, 1)
	if _, err := Fit(context.Background(), ds, Params{PCAComponents: 2, NNeighbors: 5, Init: InitRandom}); err == nil {
		t.Error("Expected error for a single observation")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Fit(ctx, blobs(2, 10, 3, 1), Params{PCAComponents: 2, NNeighbors: 5, Init: InitRandom, NComponents: 2, NEpochs: 10})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
