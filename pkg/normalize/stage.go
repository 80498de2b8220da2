package normalize

import (
	"fmt"
	"os"
	"path/filepath"

	"histotile/internal/models"
	"histotile/pkg/manifest"
)

// Tiles runs the normalization stage over a tiling manifest: each listed
// tile is normalized into resultPath/normalized_tiles and recorded in the
// normalized manifest. A tile that fails to load or decompose is recorded
// as a normalization-stage error and omitted from the output manifest;
// the remaining tiles are processed normally. One bad tile never aborts
// the batch.
func Tiles(manifestPath, resultPath string) (int, []models.ProcessingError, error) {
	tiles, err := manifest.Read(manifestPath)
	if err != nil {
		return 0, nil, err
	}

	dir := filepath.Join(resultPath, "normalized_tiles")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, nil, fmt.Errorf("failed to create normalized tiles directory: %w", err)
	}

	var records []models.Tile
	var errs []models.ProcessingError
	for _, t := range tiles {
		dst := filepath.Join(dir, t.FileName())
		if err := File(t.Path, dst); err != nil {
			errs = append(errs, models.ProcessingError{
				PatientID: t.PatientID,
				Path:      t.Path,
				Message:   err.Error(),
				Stage:     models.StageNormalization,
			})
			continue
		}
		t.Path = dst
		records = append(records, t)
	}

	if err := manifest.Write(filepath.Join(resultPath, manifest.NormalizedFile), records); err != nil {
		return 0, errs, err
	}
	return len(records), errs, nil
}
