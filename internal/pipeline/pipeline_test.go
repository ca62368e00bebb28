package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"umapembed/internal/clustering"
	"umapembed/internal/config"
	"umapembed/internal/core"
	"umapembed/internal/dataset"
	"umapembed/internal/embedding"
	"umapembed/internal/store"

	"github.com/spf13/viper"
)

// writeBlobs writes groups well separated gaussian blobs as a CSV with an
// index column and returns its path.
func writeBlobs(t *testing.T, dir string, groups, perGroup, dim int) string {
	t.Helper()
	rng := rand.New(rand.NewSource(7))

	var b strings.Builder
	b.WriteString("cell")
	for j := 0; j < dim; j++ {
		fmt.Fprintf(&b, ",f%d", j)
	}
	b.WriteString("\n")
	for g := 0; g < groups; g++ {
		for i := 0; i < perGroup; i++ {
			fmt.Fprintf(&b, "c%d_%d", g, i)
			for j := 0; j < dim; j++ {
				center := 0.0
				if j == g%dim {
					center = 50
				}
				fmt.Fprintf(&b, ",%.4f", center+rng.NormFloat64())
			}
			b.WriteString("\n")
		}
	}

	path := filepath.Join(dir, "blobs.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}
	return path
}

func testConfig(t *testing.T, root, datasetPath string, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	v.Set("dataset", datasetPath)
	v.Set("tag", "blobs")
	v.Set("intermediate_dir", filepath.Join(root, "intermediate_data"))
	v.Set("figures_dir", filepath.Join(root, "product", "figures"))
	for k, val := range overrides {
		v.Set(k, val)
	}
	cfg, err := config.Load(v, "")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

func build(t *testing.T, b *Builder) *Pipeline {
	t.Helper()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected %s to exist: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s not to exist", path)
	}
}

func TestRun_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, writeBlobs(t, root, 3, 15, 5), nil)

	res, err := build(t, NewBuilder(cfg)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Embedding.Len() != 45 {
		t.Errorf("Expected 45 embedded points, got %d", res.Embedding.Len())
	}
	if res.Embedding.UMAP.NNeighbors != config.DefaultNeighbors {
		t.Errorf("Expected %d neighbours, got %d", config.DefaultNeighbors, res.Embedding.UMAP.NNeighbors)
	}

	f, err := os.Open(cfg.FigurePath())
	if err != nil {
		t.Fatalf("Figure not written: %v", err)
	}
	defer f.Close()
	img, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Figure is not a PNG: %v", err)
	}
	if img.Width != 2000 || img.Height != 2000 {
		t.Errorf("Expected 2000x2000 figure, got %dx%d", img.Width, img.Height)
	}

	for _, name := range []string{embedding.PCAModelFile, embedding.UMAPParamsFile, embedding.EmbeddingFile} {
		assertExists(t, filepath.Join(cfg.EmbedDir(), name))
	}
	assertExists(t, cfg.ClustererPath())
	assertMissing(t, cfg.ClusterFigurePath())

	if res.Clustering == nil {
		t.Fatal("Clustering should run by default")
	}
	labels, err := clustering.LoadLabels(cfg.LabelsPath())
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	if len(labels) != 45 {
		t.Fatalf("Expected one label per observation, got %d", len(labels))
	}
	for i, l := range labels {
		if l < clustering.NoiseLabel || l >= len(res.Clustering.Clusters) {
			t.Errorf("Label %d of point %d out of range", l, i)
		}
	}

	s, err := store.NewStore(cfg.Output.IntermediateDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()
	got, err := s.GetRun(res.Run.ID)
	if err != nil || got == nil {
		t.Fatalf("Run not recorded: %v", err)
	}
	if got.Status != core.RunCompleted || got.Observations != 45 || got.Features != 5 {
		t.Errorf("Unexpected catalog entry %+v", got)
	}
	if got.Artifacts[ArtifactFigure] != cfg.FigurePath() {
		t.Errorf("Expected figure artifact %s, got %s", cfg.FigurePath(), got.Artifacts[ArtifactFigure])
	}
}

func TestRun_WithoutClustering(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, writeBlobs(t, root, 2, 10, 4), map[string]any{
		"compute_hdbscan_clusters": false,
		"plot_width":               400,
		"plot_height":              300,
		"umap_init":                "random",
	})

	res, err := build(t, NewBuilder(cfg)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Clustering != nil {
		t.Error("Clustering should be skipped")
	}
	if res.Run.Clusters != 0 {
		t.Errorf("Expected no clusters recorded, got %d", res.Run.Clusters)
	}
	assertExists(t, cfg.FigurePath())
	assertMissing(t, cfg.ClustererPath())
	assertMissing(t, cfg.LabelsPath())
}

func TestRun_ClusterPlot(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, writeBlobs(t, root, 3, 10, 4), map[string]any{
		"plot_clusters": true,
		"plot_width":    320,
		"plot_height":   240,
		"catalog":       false,
	})

	res, err := build(t, NewBuilder(cfg)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertExists(t, cfg.ClusterFigurePath())
	if res.Run.Artifacts[ArtifactClusterFigure] != cfg.ClusterFigurePath() {
		t.Errorf("Cluster figure not recorded: %v", res.Run.Artifacts)
	}
	if res.Run.Status != core.RunCompleted || res.Run.ID != "" {
		t.Errorf("Expected completed run without catalog ID, got %+v", res.Run)
	}
	assertMissing(t, filepath.Join(cfg.Output.IntermediateDir, store.DBFileName))
}

func TestRun_MissingDatasetWritesNothing(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, filepath.Join(root, "missing.csv"), nil)

	_, err := build(t, NewBuilder(cfg)).Run(context.Background())
	if err == nil {
		t.Fatal("Expected error for missing dataset")
	}
	assertMissing(t, cfg.Output.IntermediateDir)
	assertMissing(t, cfg.Output.FiguresDir)
}

func TestRun_UnsupportedFormat(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "table.parquet")
	if err := os.WriteFile(path, []byte("PAR1"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, root, path, nil)

	_, err := build(t, NewBuilder(cfg)).Run(context.Background())
	if !errors.Is(err, dataset.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
	assertMissing(t, cfg.Output.IntermediateDir)
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, *dataset.Dataset, embedding.Params) (*embedding.Result, error) {
	return nil, f.err
}

func TestRun_FailureIsRecorded(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, writeBlobs(t, root, 2, 5, 3), nil)
	boom := errors.New("UMAP failed: boom")

	_, err := build(t, NewBuilder(cfg).WithEmbedder(failingEmbedder{err: boom})).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Expected embedder error, got %v", err)
	}
	assertMissing(t, cfg.FigurePath())

	s, err := store.NewStore(cfg.Output.IntermediateDir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer s.Close()
	runs, err := s.ListRuns(cfg.Tag, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 recorded run, got %d", len(runs))
	}
	if runs[0].Status != core.RunFailed || runs[0].Error != boom.Error() {
		t.Errorf("Expected failed run, got %+v", runs[0])
	}
}

func TestRun_Cancelled(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root, writeBlobs(t, root, 2, 10, 3), map[string]any{"catalog": false})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := build(t, NewBuilder(cfg)).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := NewBuilder(nil).Build(); err == nil {
		t.Error("Expected error without config")
	}

	root := t.TempDir()
	cfg := testConfig(t, root, "data.csv", nil)
	if _, err := NewBuilder(cfg).WithClusterer(nil).Build(); err == nil {
		t.Error("Expected error when clustering is enabled without a clusterer")
	}
}

func TestEmbeddingParams(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), "data.csv", map[string]any{"umap_min_dist": 0.25, "random_seed": 9})
	p := EmbeddingParams(cfg)

	if p.NNeighbors != config.DefaultNeighbors {
		t.Errorf("Expected 0 neighbours to map to %d, got %d", config.DefaultNeighbors, p.NNeighbors)
	}
	if p.MinDist != 0.25 || p.Seed != 9 || p.PCAComponents != 20 {
		t.Errorf("Unexpected params %+v", p)
	}
	if p.EmbedDir != cfg.EmbedDir() {
		t.Errorf("Expected embed dir %s, got %s", cfg.EmbedDir(), p.EmbedDir)
	}
}
