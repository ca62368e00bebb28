package pipeline

import (
	"context"

	"umapembed/internal/dataset"
	"umapembed/internal/embedding"
	"umapembed/internal/render"
	"umapembed/internal/store"
)

// DatasetAdapter wraps internal/dataset to implement DatasetLoader
type DatasetAdapter struct{}

func (DatasetAdapter) Load(path string) (*dataset.Dataset, error) {
	return dataset.Load(path)
}

// EmbeddingAdapter wraps internal/embedding to implement Embedder
type EmbeddingAdapter struct{}

func (EmbeddingAdapter) Embed(ctx context.Context, ds *dataset.Dataset, params embedding.Params) (*embedding.Result, error) {
	return embedding.Fit(ctx, ds, params)
}

// RenderAdapter wraps internal/render to implement PlotRenderer
type RenderAdapter struct{}

func (RenderAdapter) RenderEmbedding(coords [][]float64, opts render.PlotOptions, path string) error {
	return render.Embedding(coords, opts, path)
}

// OpenStore opens the SQLite run catalog as a RunCatalog.
func OpenStore(dataDir string) (RunCatalog, error) {
	s, err := store.NewStore(dataDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}
