package clustering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"umapembed/internal/logger"

	"github.com/humilityai/hdbscan"
	"gonum.org/v1/gonum/floats"
)

// NoiseLabel is assigned to points that belong to no cluster.
const NoiseLabel = -1

// DefaultMinClusterSize is the smallest group HDBSCAN reports as a cluster.
const DefaultMinClusterSize = 3

// Cluster is one group found by HDBSCAN
type Cluster struct {
	ID       int       `json:"id"`
	Size     int       `json:"size"`
	Points   []int     `json:"points"`
	Centroid []float64 `json:"centroid"`
}

// Result is a fitted clustering of a set of points
type Result struct {
	MinClusterSize int       `json:"min_cluster_size"`
	Distance       string    `json:"distance"`
	Score          string    `json:"score"`
	NumPoints      int       `json:"n_points"`
	NoiseCount     int       `json:"n_noise"`
	Clusters       []Cluster `json:"clusters"`
	Silhouette     float64   `json:"silhouette"`
	Labels         []int     `json:"-"`
}

// euclideanDistance is the metric UMAP layouts are meant to be read in.
func euclideanDistance(x1, x2 []float64) float64 {
	return floats.Distance(x1, x2, 2)
}

// HDBSCANClusterer implements HDBSCAN clustering for embedding coordinates
type HDBSCANClusterer struct {
	MinClusterSize int // Minimum number of points to form a cluster
}

// NewHDBSCANClusterer creates a new HDBSCAN clusterer; sizes below 2 fall
// back to DefaultMinClusterSize.
func NewHDBSCANClusterer(minClusterSize int) *HDBSCANClusterer {
	if minClusterSize < 2 {
		minClusterSize = DefaultMinClusterSize
	}
	return &HDBSCANClusterer{MinClusterSize: minClusterSize}
}

// FitPredict clusters points and returns one label per point. Clusters are
// numbered in order of their lowest member index; unassigned points get
// NoiseLabel.
func (h *HDBSCANClusterer) FitPredict(ctx context.Context, points [][]float64) (*Result, error) {
	if len(points) == 0 {
		return nil, errors.New("no points to cluster")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		MinClusterSize: h.MinClusterSize,
		Distance:       "euclidean",
		Score:          "variance",
		NumPoints:      len(points),
		Labels:         make([]int, len(points)),
	}
	for i := range res.Labels {
		res.Labels[i] = NoiseLabel
	}

	// Too few points for even one cluster: everything is noise
	if len(points) < h.MinClusterSize {
		res.NoiseCount = len(points)
		logger.Warn("Fewer points than the minimum cluster size, all marked as noise",
			"points", len(points), "min_cluster_size", h.MinClusterSize)
		return res, nil
	}

	clustering, err := hdbscan.NewClustering(points, h.MinClusterSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create HDBSCAN clusterer: %w", err)
	}
	clustering = clustering.OutlierDetection()

	if err := clustering.Run(euclideanDistance, hdbscan.VarianceScore, true); err != nil {
		return nil, fmt.Errorf("HDBSCAN clustering failed: %w", err)
	}

	res.Clusters = assignLabels(extractClusterData(clustering), points, res.Labels)
	for _, l := range res.Labels {
		if l == NoiseLabel {
			res.NoiseCount++
		}
	}
	if len(res.Clusters) >= 2 {
		res.Silhouette = PerformSilhouetteAnalysis(points, res.Labels).OverallScore
	}

	logger.Info("HDBSCAN clustering complete",
		"points", len(points),
		"clusters", len(res.Clusters),
		"noise", res.NoiseCount)
	for _, c := range res.Clusters {
		logger.Debug("Cluster", "id", c.ID, "size", c.Size)
	}
	return res, nil
}

// assignLabels writes cluster ids into labels and returns the clusters in id
// order. A point claimed by more than one cluster keeps its first id.
func assignLabels(data []ClusterData, points [][]float64, labels []int) []Cluster {
	sort.SliceStable(data, func(a, b int) bool {
		return minPoint(data[a].Points) < minPoint(data[b].Points)
	})

	clusters := make([]Cluster, 0, len(data))
	for _, cd := range data {
		id := len(clusters)
		var members []int
		for _, p := range cd.Points {
			if p < 0 || p >= len(labels) || labels[p] != NoiseLabel {
				continue
			}
			labels[p] = id
			members = append(members, p)
		}
		if len(members) == 0 {
			continue
		}
		sort.Ints(members)

		centroid := cd.Centroid
		if len(centroid) == 0 {
			centroid = calculateCentroid(points, members)
		}
		clusters = append(clusters, Cluster{
			ID:       id,
			Size:     len(members),
			Points:   members,
			Centroid: centroid,
		})
	}
	return clusters
}

func minPoint(points []int) int {
	m := int(^uint(0) >> 1)
	for _, p := range points {
		m = min(m, p)
	}
	return m
}

// calculateCentroid computes the mean of the given rows
func calculateCentroid(points [][]float64, members []int) []float64 {
	if len(members) == 0 {
		return nil
	}
	centroid := make([]float64, len(points[members[0]]))
	for _, m := range members {
		for i, v := range points[m] {
			centroid[i] += v
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(members))
	}
	return centroid
}

// ClusterData holds extracted cluster information from HDBSCAN
type ClusterData struct {
	Centroid []float64
	Points   []int
}

// extractClusterData uses reflection to extract cluster assignments from HDBSCAN Clustering
// Returns a slice of ClusterData, one for each cluster
func extractClusterData(clustering *hdbscan.Clustering) []ClusterData {
	v := reflect.ValueOf(clustering).Elem()
	clustersField := v.FieldByName("Clusters")
	if !clustersField.IsValid() {
		logger.Warn("Could not access HDBSCAN Clusters field")
		return []ClusterData{}
	}

	numClusters := clustersField.Len()
	result := make([]ClusterData, numClusters)

	for i := 0; i < numClusters; i++ {
		clusterPtr := clustersField.Index(i)
		if clusterPtr.Kind() == reflect.Ptr {
			if clusterPtr.IsNil() {
				continue
			}
			clusterPtr = clusterPtr.Elem()
		}

		centroidField := clusterPtr.FieldByName("Centroid")
		if centroidField.IsValid() && centroidField.Kind() == reflect.Slice {
			centroid := make([]float64, centroidField.Len())
			for j := 0; j < centroidField.Len(); j++ {
				centroid[j] = centroidField.Index(j).Float()
			}
			result[i].Centroid = centroid
		}

		pointsField := clusterPtr.FieldByName("Points")
		if pointsField.IsValid() && pointsField.Kind() == reflect.Slice {
			points := make([]int, pointsField.Len())
			for j := 0; j < pointsField.Len(); j++ {
				points[j] = int(pointsField.Index(j).Int())
			}
			result[i].Points = points
		}
	}

	return result
}

// SaveClusterer writes the clusterer parameters and clusters as JSON.
func (r *Result) SaveClusterer(path string) error {
	return writeJSON(path, r)
}

// SaveLabels writes the label sequence as a JSON array.
func (r *Result) SaveLabels(path string) error {
	return writeJSON(path, r.Labels)
}

// LoadLabels reads a label sequence written by SaveLabels.
func LoadLabels(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	var labels []int
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels: %w", err)
	}
	return labels, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
