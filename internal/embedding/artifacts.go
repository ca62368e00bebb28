package embedding

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Artifact file names written by Save.
const (
	PCAModelFile   = "pca_model.json"
	UMAPParamsFile = "umap_params.json"
	EmbeddingFile  = "embedding.csv"
)

// Save writes the PCA model, the UMAP parameters and the coordinates to dir.
func (r *Result) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create embedding directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, PCAModelFile), r.PCA); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, UMAPParamsFile), r.UMAP); err != nil {
		return err
	}
	return r.writeCoordinates(filepath.Join(dir, EmbeddingFile))
}

func (r *Result) writeCoordinates(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"index"}
	for d := 0; d < r.UMAP.NComponents; d++ {
		header = append(header, "UMAP_"+strconv.Itoa(d+1))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	rec := make([]string, len(header))
	for i, row := range r.Coordinates {
		rec[0] = r.Index[i]
		for d, v := range row {
			rec[d+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
