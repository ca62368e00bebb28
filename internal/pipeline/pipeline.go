package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"umapembed/internal/clustering"
	"umapembed/internal/config"
	"umapembed/internal/core"
	"umapembed/internal/dataset"
	"umapembed/internal/embedding"
	"umapembed/internal/logger"
	"umapembed/internal/render"
	"umapembed/internal/store"
)

// Artifact names recorded on core.Run.Artifacts.
const (
	ArtifactPCAModel      = "pca_model"
	ArtifactUMAPParams    = "umap_params"
	ArtifactEmbedding     = "embedding"
	ArtifactFigure        = "figure"
	ArtifactClusterer     = "hdbscan_clusterer"
	ArtifactLabels        = "hdbscan_labels"
	ArtifactClusterFigure = "cluster_figure"
	ArtifactCatalog       = "catalog"
)

// Pipeline runs load, embed, plot and optional clustering for one tag
type Pipeline struct {
	config      *config.Config
	loader      DatasetLoader
	embedder    Embedder
	renderer    PlotRenderer
	clusterer   Clusterer
	openCatalog CatalogOpener // nil when the catalog is disabled
}

// Result contains the output of a completed run
type Result struct {
	Run        *core.Run
	Embedding  *embedding.Result
	Clustering *clustering.Result // nil when clustering was not requested
}

// Run executes the pipeline. Nothing is written if the dataset cannot be
// loaded. Once the catalog holds the run, a failure marks it failed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	cfg := p.config
	startedAt := time.Now().UTC()

	logger.Info("Loading dataset", "path", cfg.Dataset, "tag", cfg.Tag)
	ds, err := p.loader.Load(cfg.Dataset)
	if err != nil {
		return nil, err
	}
	rows, cols := ds.Dims()
	logger.Info("Dataset loaded", "observations", rows, "features", cols)

	run := &core.Run{
		Tag:          cfg.Tag,
		Dataset:      cfg.Dataset,
		Parameters:   Parameters(cfg),
		Observations: rows,
		Features:     cols,
		Artifacts:    map[string]string{},
		StartedAt:    startedAt,
	}

	var catalog RunCatalog
	if p.openCatalog != nil {
		catalog, err = p.openCatalog(cfg.Output.IntermediateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open run catalog: %w", err)
		}
		defer func() {
			if cerr := catalog.Close(); cerr != nil {
				logger.Warn("Failed to close run catalog", "error", cerr)
			}
		}()
		if err := catalog.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		run.Artifacts[ArtifactCatalog] = filepath.Join(cfg.Output.IntermediateDir, store.DBFileName)
		logger.Debug("Run recorded", "run_id", run.ID)
	}

	res, err := p.execute(ctx, ds, run)
	if err != nil {
		run.Status = core.RunFailed
		run.Error = err.Error()
		run.CompletedAt = time.Now().UTC()
		if catalog != nil {
			if ferr := catalog.FailRun(run.ID, err); ferr != nil {
				logger.Error("Failed to record run failure", ferr, "run_id", run.ID)
			}
		}
		return nil, err
	}

	if catalog != nil {
		if err := catalog.CompleteRun(run); err != nil {
			return nil, fmt.Errorf("failed to record run completion: %w", err)
		}
	} else {
		run.Status = core.RunCompleted
		run.CompletedAt = time.Now().UTC()
	}

	logger.Info("Run complete",
		"tag", run.Tag,
		"observations", run.Observations,
		"clusters", run.Clusters,
		"duration", run.Duration().Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, ds *dataset.Dataset, run *core.Run) (*Result, error) {
	cfg := p.config
	params := EmbeddingParams(cfg)

	logger.Info("Computing embedding",
		"pca_n_components", params.PCAComponents,
		"umap_n_neighbors", params.NNeighbors,
		"umap_min_dist", params.MinDist,
		"umap_init", params.Init)
	emb, err := p.embedder.Embed(ctx, ds, params)
	if err != nil {
		return nil, err
	}
	run.Artifacts[ArtifactPCAModel] = filepath.Join(params.EmbedDir, embedding.PCAModelFile)
	run.Artifacts[ArtifactUMAPParams] = filepath.Join(params.EmbedDir, embedding.UMAPParamsFile)
	run.Artifacts[ArtifactEmbedding] = filepath.Join(params.EmbedDir, embedding.EmbeddingFile)

	figure := cfg.FigurePath()
	opts := render.PlotOptions{
		Width:  cfg.Output.PlotWidth,
		Height: cfg.Output.PlotHeight,
		Title:  cfg.Tag,
	}
	if err := p.renderer.RenderEmbedding(emb.Coordinates, opts, figure); err != nil {
		return nil, fmt.Errorf("failed to render embedding: %w", err)
	}
	run.Artifacts[ArtifactFigure] = figure
	logger.Info("Embedding plot saved", "path", figure)

	res := &Result{Run: run, Embedding: emb}
	if !cfg.Clustering.ComputeHDBSCANClusters {
		logger.Debug("Skipping HDBSCAN clustering")
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clusters, err := p.clusterer.FitPredict(ctx, emb.Coordinates)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster embedding: %w", err)
	}
	if len(clusters.Labels) != emb.Len() {
		return nil, fmt.Errorf("clusterer returned %d labels for %d points", len(clusters.Labels), emb.Len())
	}
	if err := clusters.SaveClusterer(cfg.ClustererPath()); err != nil {
		return nil, err
	}
	if err := clusters.SaveLabels(cfg.LabelsPath()); err != nil {
		return nil, err
	}
	run.Artifacts[ArtifactClusterer] = cfg.ClustererPath()
	run.Artifacts[ArtifactLabels] = cfg.LabelsPath()
	run.Clusters = len(clusters.Clusters)
	run.Noise = clusters.NoiseCount
	res.Clustering = clusters

	if cfg.Output.PlotClusters {
		opts.Labels = clusters.Labels
		opts.Title = fmt.Sprintf("%s (%d clusters)", cfg.Tag, run.Clusters)
		path := cfg.ClusterFigurePath()
		if err := p.renderer.RenderEmbedding(emb.Coordinates, opts, path); err != nil {
			return nil, fmt.Errorf("failed to render clusters: %w", err)
		}
		run.Artifacts[ArtifactClusterFigure] = path
		logger.Info("Cluster plot saved", "path", path)
	}
	return res, nil
}

// EmbeddingParams maps the resolved configuration onto embedding.Params.
func EmbeddingParams(cfg *config.Config) embedding.Params {
	e := cfg.Embedding
	return embedding.Params{
		PCAComponents: e.PCANComponents,
		NNeighbors:    e.Neighbors(),
		MinDist:       e.UMAPMinDist,
		Spread:        e.UMAPSpread,
		Init:          e.UMAPInit,
		NComponents:   e.UMAPNComponents,
		NEpochs:       e.UMAPNEpochs,
		Seed:          e.RandomSeed,
		EmbedDir:      cfg.EmbedDir(),
	}
}

// Parameters returns the options recorded with a run in the catalog.
func Parameters(cfg *config.Config) map[string]any {
	e := cfg.Embedding
	return map[string]any{
		"pca_n_components":         e.PCANComponents,
		"umap_n_neighbors":         e.UMAPNNeighbors,
		"umap_min_dist":            e.UMAPMinDist,
		"umap_init":                e.UMAPInit,
		"umap_n_components":        e.UMAPNComponents,
		"umap_n_epochs":            e.UMAPNEpochs,
		"umap_spread":              e.UMAPSpread,
		"random_seed":              e.RandomSeed,
		"compute_hdbscan_clusters": cfg.Clustering.ComputeHDBSCANClusters,
		"hdbscan_min_cluster_size": cfg.Clustering.MinClusterSize,
		"plot_width":               cfg.Output.PlotWidth,
		"plot_height":              cfg.Output.PlotHeight,
	}
}
