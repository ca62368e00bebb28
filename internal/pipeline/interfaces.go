package pipeline

import (
	"context"

	"umapembed/internal/clustering"
	"umapembed/internal/core"
	"umapembed/internal/dataset"
	"umapembed/internal/embedding"
	"umapembed/internal/render"
)

// DatasetLoader reads the input table
type DatasetLoader interface {
	// Load reads a numeric table from path, dispatching on its extension
	Load(path string) (*dataset.Dataset, error)
}

// Embedder reduces a dataset to a low-dimensional layout
type Embedder interface {
	// Embed runs PCA then UMAP and persists the fitted models to params.EmbedDir
	Embed(ctx context.Context, ds *dataset.Dataset, params embedding.Params) (*embedding.Result, error)
}

// PlotRenderer draws embedding scatter plots
type PlotRenderer interface {
	// RenderEmbedding writes a PNG of exactly opts.Width x opts.Height pixels
	RenderEmbedding(coords [][]float64, opts render.PlotOptions, path string) error
}

// Clusterer labels embedded points
type Clusterer interface {
	// FitPredict returns one label per point, clustering.NoiseLabel for noise
	FitPredict(ctx context.Context, points [][]float64) (*clustering.Result, error)
}

// RunCatalog records the lifecycle of each run
type RunCatalog interface {
	CreateRun(run *core.Run) error
	CompleteRun(run *core.Run) error
	FailRun(id string, err error) error
	Close() error
}

// CatalogOpener opens the run catalog inside the intermediate data directory
type CatalogOpener func(dataDir string) (RunCatalog, error)
