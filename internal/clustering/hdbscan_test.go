package clustering

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// threeGroups mirrors the fixture the HDBSCAN extraction was first checked
// against: 3 tight groups of 5 plus 2 far outliers.
func threeGroups() [][]float64 {
	return [][]float64{
		{0.0, 0.0}, {0.1, 0.1}, {0.2, 0.2}, {-0.1, -0.1}, {0.15, 0.15},
		{10.0, 10.0}, {10.1, 10.1}, {10.2, 10.2}, {9.9, 9.9}, {10.15, 10.15},
		{20.0, 20.0}, {20.1, 20.1}, {20.2, 20.2}, {19.9, 19.9}, {20.15, 20.15},
		{100.0, 100.0}, {-50.0, -50.0},
	}
}

func TestFitPredict_LabelsEveryPoint(t *testing.T) {
	points := threeGroups()
	res, err := NewHDBSCANClusterer(3).FitPredict(context.Background(), points)
	if err != nil {
		t.Fatalf("FitPredict failed: %v", err)
	}

	if len(res.Labels) != len(points) {
		t.Fatalf("Expected %d labels, got %d", len(points), len(res.Labels))
	}
	for i, l := range res.Labels {
		if l != NoiseLabel && (l < 0 || l >= len(res.Clusters)) {
			t.Errorf("Point %d has label %d outside [0, %d) and not noise", i, l, len(res.Clusters))
		}
	}

	assigned := 0
	for id, c := range res.Clusters {
		if c.ID != id {
			t.Errorf("Cluster at position %d has id %d", id, c.ID)
		}
		if c.Size != len(c.Points) {
			t.Errorf("Cluster %d size %d does not match %d points", id, c.Size, len(c.Points))
		}
		for _, p := range c.Points {
			if res.Labels[p] != id {
				t.Errorf("Point %d listed in cluster %d but labelled %d", p, id, res.Labels[p])
			}
		}
		assigned += c.Size
	}
	if assigned+res.NoiseCount != len(points) {
		t.Errorf("Assigned %d + noise %d != %d points", assigned, res.NoiseCount, len(points))
	}
}

func TestFitPredict_ClusterIDsFollowFirstMember(t *testing.T) {
	res, err := NewHDBSCANClusterer(3).FitPredict(context.Background(), threeGroups())
	if err != nil {
		t.Fatalf("FitPredict failed: %v", err)
	}
	for i := 1; i < len(res.Clusters); i++ {
		if res.Clusters[i-1].Points[0] >= res.Clusters[i].Points[0] {
			t.Errorf("Cluster %d starts at %d, not after cluster %d at %d",
				i, res.Clusters[i].Points[0], i-1, res.Clusters[i-1].Points[0])
		}
	}
}

func TestFitPredict_TooFewPoints(t *testing.T) {
	res, err := NewHDBSCANClusterer(3).FitPredict(context.Background(), [][]float64{{0, 0}, {1, 1}})
	if err != nil {
		t.Fatalf("FitPredict failed: %v", err)
	}
	if res.NoiseCount != 2 || len(res.Clusters) != 0 {
		t.Errorf("Expected all noise, got %d clusters and %d noise", len(res.Clusters), res.NoiseCount)
	}
	for _, l := range res.Labels {
		if l != NoiseLabel {
			t.Errorf("Expected noise label, got %d", l)
		}
	}
}

func TestFitPredict_Errors(t *testing.T) {
	if _, err := NewHDBSCANClusterer(3).FitPredict(context.Background(), nil); err == nil {
		t.Error("Expected error for no points")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHDBSCANClusterer(3).FitPredict(ctx, threeGroups()); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestNewHDBSCANClusterer_Default(t *testing.T) {
	if got := NewHDBSCANClusterer(0).MinClusterSize; got != DefaultMinClusterSize {
		t.Errorf("Expected default min cluster size %d, got %d", DefaultMinClusterSize, got)
	}
}

func TestAssignLabels(t *testing.T) {
	points := [][]float64{{0}, {1}, {2}, {10}, {11}, {12}, {50}}
	data := []ClusterData{
		{Points: []int{5, 3, 4}},
		{Points: []int{2, 0, 1}, Centroid: []float64{1}},
	}
	labels := []int{NoiseLabel, NoiseLabel, NoiseLabel, NoiseLabel, NoiseLabel, NoiseLabel, NoiseLabel}

	clusters := assignLabels(data, points, labels)

	want := []int{0, 0, 0, 1, 1, 1, NoiseLabel}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("Point %d: expected label %d, got %d", i, want[i], labels[i])
		}
	}
	if len(clusters) != 2 {
		t.Fatalf("Expected 2 clusters, got %d", len(clusters))
	}
	if clusters[1].Centroid[0] != 11 {
		t.Errorf("Expected computed centroid 11, got %v", clusters[1].Centroid)
	}
	if clusters[0].Centroid[0] != 1 {
		t.Errorf("Expected library centroid 1 to be kept, got %v", clusters[0].Centroid)
	}
}

func TestSaveArtifacts(t *testing.T) {
	tmpDir := t.TempDir()
	res := &Result{
		MinClusterSize: 3,
		Distance:       "euclidean",
		NumPoints:      4,
		NoiseCount:     1,
		Clusters:       []Cluster{{ID: 0, Size: 3, Points: []int{0, 1, 2}, Centroid: []float64{1, 1}}},
		Labels:         []int{0, 0, 0, NoiseLabel},
	}

	clustererPath := filepath.Join(tmpDir, "tag", "hdbscan_clusterer.joblib")
	labelsPath := filepath.Join(tmpDir, "tag", "hdbscan_clustering.joblib")
	if err := res.SaveClusterer(clustererPath); err != nil {
		t.Fatalf("SaveClusterer failed: %v", err)
	}
	if err := res.SaveLabels(labelsPath); err != nil {
		t.Fatalf("SaveLabels failed: %v", err)
	}

	labels, err := LoadLabels(labelsPath)
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	if len(labels) != 4 || labels[3] != NoiseLabel {
		t.Errorf("Unexpected labels %v", labels)
	}

	raw, err := os.ReadFile(clustererPath)
	if err != nil {
		t.Fatalf("Failed to read clusterer: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Clusterer is not valid JSON: %v", err)
	}
	if decoded["min_cluster_size"] != float64(3) {
		t.Errorf("Expected min_cluster_size 3, got %v", decoded["min_cluster_size"])
	}
	if _, ok := decoded["Labels"]; ok {
		t.Error("Labels should not be embedded in the clusterer artifact")
	}
}
