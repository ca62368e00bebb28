// Package embedding reduces a dataset with PCA and then lays it out in a
// low-dimensional space with UMAP.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"umapembed/internal/dataset"
	"umapembed/internal/logger"

	"gonum.org/v1/gonum/mat"
)

// Initialization strategies for the UMAP layout.
const (
	InitSpectral = "spectral"
	InitRandom   = "random"
	InitPCA      = "pca"
)

// Params configures Fit.
type Params struct {
	PCAComponents int     `json:"pca_n_components"`
	NNeighbors    int     `json:"umap_n_neighbors"`
	MinDist       float64 `json:"umap_min_dist"`
	Spread        float64 `json:"umap_spread"`
	Init          string  `json:"umap_init"`
	NComponents   int     `json:"umap_n_components"`
	NEpochs       int     `json:"umap_n_epochs"` // 0 picks 500 or 200 by dataset size
	Seed          int64   `json:"random_seed"`

	// EmbedDir receives the fitted artifacts; empty skips persistence.
	EmbedDir string `json:"-"`
}

// UMAPModel records the parameters actually used, after defaults and clamping.
type UMAPModel struct {
	NNeighbors  int     `json:"n_neighbors"`
	MinDist     float64 `json:"min_dist"`
	Spread      float64 `json:"spread"`
	Init        string  `json:"init"`
	NComponents int     `json:"n_components"`
	NEpochs     int     `json:"n_epochs"`
	Seed        int64   `json:"random_seed"`
	A           float64 `json:"a"`
	B           float64 `json:"b"`
	NEdges      int     `json:"n_edges"`
}

// Result is a fitted embedding.
type Result struct {
	Index       []string
	Coordinates [][]float64
	PCA         *PCAModel
	UMAP        UMAPModel
}

// Len returns the number of embedded observations.
func (r *Result) Len() int {
	return len(r.Coordinates)
}

// Fit reduces ds to p.PCAComponents dimensions, computes the UMAP layout and,
// when p.EmbedDir is set, writes the artifacts there.
func Fit(ctx context.Context, ds *dataset.Dataset, p Params) (*Result, error) {
	rows, cols := ds.Dims()
	if rows < 2 {
		return nil, fmt.Errorf("embedding needs at least 2 observations, got %d", rows)
	}
	if cols == 0 {
		return nil, errors.New("embedding needs at least one feature")
	}

	logger.Debug("Fitting PCA", "rows", rows, "features", cols, "components", p.PCAComponents)
	pca, reduced, err := FitPCA(ds.Matrix(), ds.Columns, p.PCAComponents)
	if err != nil {
		return nil, fmt.Errorf("PCA failed: %w", err)
	}

	coords, model, err := fitUMAP(ctx, reduced, p)
	if err != nil {
		return nil, fmt.Errorf("UMAP failed: %w", err)
	}

	res := &Result{
		Index:       append([]string(nil), ds.Index...),
		Coordinates: coords,
		PCA:         pca,
		UMAP:        model,
	}

	if p.EmbedDir != "" {
		if err := res.Save(p.EmbedDir); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// fitUMAP lays out the rows of x in p.NComponents dimensions.
func fitUMAP(ctx context.Context, x *mat.Dense, p Params) ([][]float64, UMAPModel, error) {
	n, _ := x.Dims()
	model := UMAPModel{
		NNeighbors:  min(max(p.NNeighbors, 2), n),
		MinDist:     p.MinDist,
		Spread:      p.Spread,
		Init:        p.Init,
		NComponents: p.NComponents,
		NEpochs:     p.NEpochs,
		Seed:        p.Seed,
	}
	if model.Spread <= 0 {
		model.Spread = 1
	}
	if model.NComponents < 1 {
		model.NComponents = 2
	}
	if model.NEpochs <= 0 {
		model.NEpochs = 500
		if n > 10000 {
			model.NEpochs = 200
		}
	}
	if model.NNeighbors != p.NNeighbors {
		logger.Warn("Adjusted UMAP neighbour count", "requested", p.NNeighbors, "used", model.NNeighbors)
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	logger.Debug("Building kNN graph", "n_neighbors", model.NNeighbors)
	knn, err := nearestNeighbors(ctx, rows, model.NNeighbors)
	if err != nil {
		return nil, model, err
	}
	sigmas, rhos := smoothKNNDist(knn.dists, model.NNeighbors)
	graph := fuzzySimplicialSet(knn, sigmas, rhos)
	model.NEdges = len(graph.weights) / 2

	model.A, model.B, err = fitAB(model.Spread, model.MinDist)
	if err != nil {
		return nil, model, err
	}

	rng := rand.New(rand.NewSource(p.Seed))
	y, err := initialLayout(graph, x, &model, rng)
	if err != nil {
		return nil, model, err
	}
	rescaleLayout(rng, y)

	logger.Debug("Optimising layout", "epochs", model.NEpochs, "edges", model.NEdges, "a", model.A, "b", model.B)
	if err := optimizeLayout(ctx, y, newSchedule(graph, model.NEpochs), model.A, model.B, model.NEpochs, rng); err != nil {
		return nil, model, err
	}
	return y, model, nil
}

// initialLayout builds the starting coordinates. Spectral and PCA starts fall
// back to random ones when they cannot be computed; model.Init is updated to
// what was actually used.
func initialLayout(g *fuzzyGraph, x *mat.Dense, model *UMAPModel, rng *rand.Rand) ([][]float64, error) {
	switch model.Init {
	case InitSpectral:
		y, err := spectralLayout(g, model.NComponents)
		if err == nil {
			return y, nil
		}
		logger.Warn("Spectral initialisation failed, using random", "error", err.Error())
	case InitPCA:
		y, err := pcaLayout(x, model.NComponents)
		if err == nil {
			return y, nil
		}
		logger.Warn("PCA initialisation failed, using random", "error", err.Error())
	case InitRandom:
	default:
		return nil, fmt.Errorf("unknown init %q", model.Init)
	}
	model.Init = InitRandom
	return randomLayout(rng, g.n, model.NComponents), nil
}
