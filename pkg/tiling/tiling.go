// Package tiling implements the tile selector: it walks the slide extent
// at a computed stride, keeps the candidate windows the tissue mask
// accepts, and saves them resized to the configured output size together
// with the tiling manifest.
package tiling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"histotile/internal/models"
	"histotile/pkg/manifest"
	"histotile/pkg/slide"
)

// ErrMagnificationTooLow is returned when the requested target
// magnification exceeds the slide's native magnification. The condition
// is unrecoverable for the slide and is surfaced as a tiling-stage error,
// never retried.
var ErrMagnificationTooLow = errors.New("desired magnification is greater than the slide magnification")

// TissueMask is the mask interface the selector consults per candidate.
type TissueMask interface {
	// RegionMask returns the mask cells covering a native-coordinate square
	RegionMask(x, y, size int) []bool

	// IsTissue reports whether a region mask meets the coverage threshold
	IsTissue(region []bool, threshold float64) bool
}

// Params configures one tiling run.
type Params struct {
	// OutputSize is the edge size of saved tiles in pixels
	OutputSize int

	// Magnification is the target magnification tiles are extracted at
	Magnification float64

	// Overlap is the inverse-density divisor: stride is OutputSize/Overlap
	// when nonzero, else the extraction size. Overlap of 1 yields a stride
	// equal to the output size.
	Overlap int

	// TissueThreshold is the minimum tissue coverage for acceptance
	TissueThreshold float64
}

// ExtractionSize returns the source window edge size that, resized to
// outputSize, yields tiles at the target magnification: a slide scanned
// at 40x tiled for a 20x target with output 256 extracts 512px windows.
func ExtractionSize(native, target float64, outputSize int) (int, error) {
	if target > native {
		return 0, ErrMagnificationTooLow
	}
	return int(float64(outputSize) * (native / target)), nil
}

// Stride returns the step between candidate origins for the literal
// overlap arithmetic: extractionSize when overlap is zero, else
// outputSize/overlap.
func Stride(extractionSize, outputSize, overlap int) int {
	if overlap != 0 {
		return outputSize / overlap
	}
	return extractionSize
}

// Tile walks the slide at the computed stride, accepts candidates whose
// mask region meets the tissue threshold, saves each accepted tile resized
// to the output size under resultPath/tiles, and writes the tiling
// manifest. It returns the number of accepted tiles. A slide with zero
// accepted tiles is a valid result with an empty manifest.
func Tile(s slide.Reader, m TissueMask, resultPath string, p Params) (int, error) {
	size, err := ExtractionSize(s.Magnification(), p.Magnification, p.OutputSize)
	if err != nil {
		return 0, err
	}

	tilesDir := filepath.Join(resultPath, "tiles")
	if err := os.MkdirAll(tilesDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create tiles directory: %w", err)
	}

	w, h := s.Dimensions()
	stride := Stride(size, p.OutputSize, p.Overlap)
	if stride < 1 {
		return 0, fmt.Errorf("overlap divisor %d yields a non-positive stride for output size %d",
			p.Overlap, p.OutputSize)
	}

	var records []models.Tile
	for x := 0; x+size <= w; x += stride {
		for y := 0; y+size <= h; y += stride {
			region := m.RegionMask(x, y, size)
			if !m.IsTissue(region, p.TissueThreshold) {
				continue
			}

			img, err := s.ReadRegion(x, y, 0, size, size)
			if err != nil {
				return 0, fmt.Errorf("failed to read region (%d,%d): %w", x, y, err)
			}
			tile := imaging.Resize(img, p.OutputSize, p.OutputSize, imaging.Lanczos)

			record := models.Tile{
				PatientID:     s.ID(),
				X:             x,
				Y:             y,
				Magnification: s.Magnification(),
				Size:          size,
				Scale:         s.Scale(),
			}
			record.Path = filepath.Join(tilesDir, record.FileName())
			if err := imaging.Save(tile, record.Path); err != nil {
				return 0, fmt.Errorf("failed to save tile (%d,%d): %w", x, y, err)
			}
			records = append(records, record)
		}
	}

	if err := manifest.Write(filepath.Join(resultPath, manifest.TilingFile), records); err != nil {
		return 0, err
	}
	return len(records), nil
}
