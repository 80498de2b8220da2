package filter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"histotile/internal/models"
	"histotile/pkg/manifest"
)

// Tiles runs the blur-filter stage over a normalized manifest. In-focus
// tiles are saved under resultPath/infocus_tiles and recorded in the
// in-focus manifest; blurry tiles are saved under outfocus_tiles for
// auditing but left out of the manifest. Per-tile failures are recorded
// as blur-filter-stage errors and do not abort the batch. Returns the
// in-focus tile count.
func Tiles(manifestPath, resultPath string, threshold float64) (int, []models.ProcessingError, error) {
	tiles, err := manifest.Read(manifestPath)
	if err != nil {
		return 0, nil, err
	}

	focusDir := filepath.Join(resultPath, "infocus_tiles")
	blurryDir := filepath.Join(resultPath, "outfocus_tiles")
	for _, dir := range []string{focusDir, blurryDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, nil, fmt.Errorf("failed to create filter directory: %w", err)
		}
	}

	var records []models.Tile
	var errs []models.ProcessingError
	for _, t := range tiles {
		img, err := imaging.Open(t.Path)
		if err != nil {
			errs = append(errs, models.ProcessingError{
				PatientID: t.PatientID,
				Path:      t.Path,
				Message:   fmt.Sprintf("failed to load tile: %v", err),
				Stage:     models.StageBlurFilter,
			})
			continue
		}

		variance := LaplacianVariance(img)
		dir := blurryDir
		if InFocus(variance, threshold) {
			dir = focusDir
		}
		dst := filepath.Join(dir, t.FileName())
		if err := imaging.Save(img, dst); err != nil {
			errs = append(errs, models.ProcessingError{
				PatientID: t.PatientID,
				Path:      t.Path,
				Message:   fmt.Sprintf("failed to save tile: %v", err),
				Stage:     models.StageBlurFilter,
			})
			continue
		}

		if dir == focusDir {
			t.Path = dst
			records = append(records, t)
		}
	}

	if err := manifest.Write(filepath.Join(resultPath, manifest.InFocusFile), records); err != nil {
		return 0, errs, err
	}
	return len(records), errs, nil
}
