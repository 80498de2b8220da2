package filter

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"histotile/internal/models"
	"histotile/pkg/manifest"
)

// createFlatImage builds a uniform image with no edges at all
func createFlatImage(size int, v uint8) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// createStripeImage builds single-pixel vertical stripes, the sharpest
// pattern the Laplacian can see
func createStripeImage(size int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(0)
			if x%2 == 1 {
				v = 255
			}
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// TestInFocusBoundary verifies the inclusive decision boundary: a
// variance exactly at the threshold is classified in focus
func TestInFocusBoundary(t *testing.T) {
	if !InFocus(0.015, 0.015) {
		t.Error("Expected variance equal to threshold to be in focus")
	}
	if InFocus(0.0149, 0.015) {
		t.Error("Expected variance below threshold to be out of focus")
	}
	if !InFocus(0.016, 0.015) {
		t.Error("Expected variance above threshold to be in focus")
	}
}

// TestLaplacianVarianceFlat verifies that a uniform image has zero
// sharpness
func TestLaplacianVarianceFlat(t *testing.T) {
	v := LaplacianVariance(createFlatImage(32, 128))
	if v != 0 {
		t.Errorf("Expected zero variance for flat image, got %g", v)
	}
	if InFocus(v, DefaultThreshold) {
		t.Error("Expected flat image to be classified blurry")
	}
}

// TestLaplacianVarianceStripes verifies the response on alternating
// single-pixel stripes: the kernel yields +-8 everywhere, variance 64
func TestLaplacianVarianceStripes(t *testing.T) {
	v := LaplacianVariance(createStripeImage(8))
	if math.Abs(v-64) > 1e-9 {
		t.Errorf("Expected variance 64 for stripe image, got %g", v)
	}
	if !InFocus(v, DefaultThreshold) {
		t.Error("Expected stripe image to be classified in focus")
	}
}

// TestLaplacianVarianceDeterministic verifies that classification is
// stable across repeated runs on the same pixel buffer
func TestLaplacianVarianceDeterministic(t *testing.T) {
	img := createStripeImage(16)
	first := LaplacianVariance(img)
	for i := 0; i < 5; i++ {
		if got := LaplacianVariance(img); got != first {
			t.Fatalf("Variance changed between runs: %g vs %g", first, got)
		}
	}
}

// TestGrayscaleLuma checks the ITU-R 601 weighting
func TestGrayscaleLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	gray, w, h := Grayscale(img)
	if w != 1 || h != 1 {
		t.Fatalf("Expected 1x1 grayscale, got %dx%d", w, h)
	}
	if math.Abs(gray[0]-1.0) > 1e-9 {
		t.Errorf("Expected white luma 1.0, got %g", gray[0])
	}
}

// TestTilesPartition verifies the stage run: sharp tiles land in the
// in-focus directory and manifest, blurry ones are saved aside for
// auditing but excluded from the manifest
func TestTilesPartition(t *testing.T) {
	dir := t.TempDir()
	tilesDir := filepath.Join(dir, "tiles")
	if err := os.MkdirAll(tilesDir, 0755); err != nil {
		t.Fatalf("Failed to create tiles dir: %v", err)
	}

	sharp := models.Tile{PatientID: "P1", X: 0, Y: 0, Magnification: 40, Size: 512, Scale: 1}
	sharp.Path = filepath.Join(tilesDir, sharp.FileName())
	if err := imaging.Save(imaging.Clone(createStripeImage(16)), sharp.Path); err != nil {
		t.Fatalf("Failed to save sharp tile: %v", err)
	}

	blurry := models.Tile{PatientID: "P1", X: 0, Y: 512, Magnification: 40, Size: 512, Scale: 1}
	blurry.Path = filepath.Join(tilesDir, blurry.FileName())
	if err := imaging.Save(imaging.Clone(createFlatImage(16, 100)), blurry.Path); err != nil {
		t.Fatalf("Failed to save blurry tile: %v", err)
	}

	manifestPath := filepath.Join(dir, manifest.NormalizedFile)
	if err := manifest.Write(manifestPath, []models.Tile{sharp, blurry}); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	count, errs, err := Tiles(manifestPath, dir, DefaultThreshold)
	if err != nil {
		t.Fatalf("Filter stage failed: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("Expected no per-tile errors, got %v", errs)
	}
	if count != 1 {
		t.Fatalf("Expected 1 in-focus tile, got %d", count)
	}

	records, err := manifest.Read(filepath.Join(dir, manifest.InFocusFile))
	if err != nil {
		t.Fatalf("Failed to read in-focus manifest: %v", err)
	}
	if len(records) != 1 || records[0].Y != 0 {
		t.Fatalf("Expected only the sharp tile in the manifest, got %+v", records)
	}

	if _, err := os.Stat(filepath.Join(dir, "infocus_tiles", sharp.FileName())); err != nil {
		t.Errorf("Sharp tile not saved to infocus_tiles: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outfocus_tiles", blurry.FileName())); err != nil {
		t.Errorf("Blurry tile not saved to outfocus_tiles: %v", err)
	}
}

// TestTilesIsolation verifies that one unreadable tile is recorded as a
// blur-filter error while the rest of the batch proceeds
func TestTilesIsolation(t *testing.T) {
	dir := t.TempDir()
	tilesDir := filepath.Join(dir, "tiles")
	if err := os.MkdirAll(tilesDir, 0755); err != nil {
		t.Fatalf("Failed to create tiles dir: %v", err)
	}

	good := models.Tile{PatientID: "P1", X: 0, Y: 0, Magnification: 40, Size: 512, Scale: 1}
	good.Path = filepath.Join(tilesDir, good.FileName())
	if err := imaging.Save(imaging.Clone(createStripeImage(16)), good.Path); err != nil {
		t.Fatalf("Failed to save tile: %v", err)
	}

	missing := models.Tile{PatientID: "P1", X: 512, Y: 0, Magnification: 40, Size: 512, Scale: 1}
	missing.Path = filepath.Join(tilesDir, "does_not_exist.png")

	manifestPath := filepath.Join(dir, manifest.NormalizedFile)
	if err := manifest.Write(manifestPath, []models.Tile{good, missing}); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	count, errs, err := Tiles(manifestPath, dir, DefaultThreshold)
	if err != nil {
		t.Fatalf("Filter stage failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 surviving tile, got %d", count)
	}
	if len(errs) != 1 {
		t.Fatalf("Expected 1 error record, got %d", len(errs))
	}
	if errs[0].Stage != models.StageBlurFilter {
		t.Errorf("Expected stage %q, got %q", models.StageBlurFilter, errs[0].Stage)
	}
}
