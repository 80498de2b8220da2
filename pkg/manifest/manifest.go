// Package manifest persists the per-stage tile manifests as CSV files.
// A manifest on disk is the checkpoint boundary of the pipeline: its
// presence signals that the stage producing it already completed for the
// slide, and the orchestrator re-reads its row count instead of
// recomputing the stage.
package manifest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"histotile/internal/models"
)

// Stage manifest filenames. Downstream consumers key on these names.
const (
	TilingFile     = "tile_information.csv"
	NormalizedFile = "normalized_tile_information.csv"
	InFocusFile    = "infocus_tile_information.csv"
)

// Columns is the fixed schema shared by all stage manifests.
var Columns = []string{"patient_id", "x", "y", "magnification", "size", "path_to_slide", "scale"}

// Exists reports whether a manifest file is present, i.e. whether the
// stage that writes it already completed.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Write persists the tile records to path with the fixed column schema.
// An empty record list still produces a valid manifest with a header row.
func Write(path string, tiles []models.Tile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	for _, t := range tiles {
		row := []string{
			t.PatientID,
			strconv.Itoa(t.X),
			strconv.Itoa(t.Y),
			models.FormatFloat(t.Magnification),
			strconv.Itoa(t.Size),
			t.Path,
			models.FormatFloat(t.Scale),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write manifest row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush manifest: %w", err)
	}
	return nil
}

// Read loads all tile records from a manifest file.
func Read(path string) ([]models.Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("manifest %s is empty, expected a header row", path)
	}

	tiles := make([]models.Tile, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(Columns) {
			return nil, fmt.Errorf("manifest %s row %d has %d columns, expected %d",
				path, i+1, len(row), len(Columns))
		}
		x, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("manifest %s row %d: bad x: %w", path, i+1, err)
		}
		y, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("manifest %s row %d: bad y: %w", path, i+1, err)
		}
		mag, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("manifest %s row %d: bad magnification: %w", path, i+1, err)
		}
		size, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, fmt.Errorf("manifest %s row %d: bad size: %w", path, i+1, err)
		}
		scale, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, fmt.Errorf("manifest %s row %d: bad scale: %w", path, i+1, err)
		}
		tiles = append(tiles, models.Tile{
			PatientID:     row[0],
			X:             x,
			Y:             y,
			Magnification: mag,
			Size:          size,
			Path:          row[5],
			Scale:         scale,
		})
	}
	return tiles, nil
}

// Count returns the number of tile rows in a manifest without retaining
// the records. Used by the checkpoint-skip path.
func Count(path string) (int, error) {
	tiles, err := Read(path)
	if err != nil {
		return 0, err
	}
	return len(tiles), nil
}
