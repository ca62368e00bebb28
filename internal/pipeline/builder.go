package pipeline

import (
	"errors"

	"umapembed/internal/clustering"
	"umapembed/internal/config"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	config      *config.Config
	loader      DatasetLoader
	embedder    Embedder
	renderer    PlotRenderer
	clusterer   Clusterer
	openCatalog CatalogOpener
}

// NewBuilder creates a builder wired to the production components
func NewBuilder(cfg *config.Config) *Builder {
	b := &Builder{
		config:      cfg,
		loader:      DatasetAdapter{},
		embedder:    EmbeddingAdapter{},
		renderer:    RenderAdapter{},
		openCatalog: OpenStore,
	}
	if cfg != nil {
		b.clusterer = clustering.NewHDBSCANClusterer(cfg.Clustering.MinClusterSize)
	}
	return b
}

// WithLoader replaces the dataset loader
func (b *Builder) WithLoader(loader DatasetLoader) *Builder {
	b.loader = loader
	return b
}

// WithEmbedder replaces the embedder
func (b *Builder) WithEmbedder(embedder Embedder) *Builder {
	b.embedder = embedder
	return b
}

// WithRenderer replaces the plot renderer
func (b *Builder) WithRenderer(renderer PlotRenderer) *Builder {
	b.renderer = renderer
	return b
}

// WithClusterer replaces the clusterer
func (b *Builder) WithClusterer(clusterer Clusterer) *Builder {
	b.clusterer = clusterer
	return b
}

// WithCatalogOpener replaces how the run catalog is opened
func (b *Builder) WithCatalogOpener(open CatalogOpener) *Builder {
	b.openCatalog = open
	return b
}

// WithoutCatalog disables run bookkeeping
func (b *Builder) WithoutCatalog() *Builder {
	b.openCatalog = nil
	return b
}

// Build constructs the pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.config == nil {
		return nil, errors.New("pipeline requires a configuration")
	}
	if b.loader == nil || b.embedder == nil || b.renderer == nil {
		return nil, errors.New("pipeline is missing a required component")
	}
	if b.config.Clustering.ComputeHDBSCANClusters && b.clusterer == nil {
		return nil, errors.New("clustering is enabled but no clusterer is configured")
	}

	openCatalog := b.openCatalog
	if !b.config.Output.Catalog {
		openCatalog = nil
	}

	return &Pipeline{
		config:      b.config,
		loader:      b.loader,
		embedder:    b.embedder,
		renderer:    b.renderer,
		clusterer:   b.clusterer,
		openCatalog: openCatalog,
	}, nil
}
