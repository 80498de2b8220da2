// Package pipeline sequences the per-slide preprocessing stages: tile
// selection, stain normalization, and blur filtering. Each stage's
// manifest doubles as a checkpoint marker, so re-running over the same
// output directory re-reads completed manifests instead of recomputing,
// making the whole pipeline idempotent and restartable.
package pipeline

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"histotile/internal/models"
	"histotile/pkg/filter"
	"histotile/pkg/manifest"
	"histotile/pkg/mask"
	"histotile/pkg/normalize"
	"histotile/pkg/slide"
	"histotile/pkg/tiling"
)

// Config holds the pipeline parameters shared by all slides of a run.
type Config struct {
	// OutputSize is the edge size of saved tiles in pixels
	OutputSize int

	// Magnification is the target magnification for extraction
	Magnification float64

	// Overlap is the inverse-density stride divisor (0 = no overlap)
	Overlap int

	// TissueThreshold is the minimum tissue coverage for tile acceptance
	TissueThreshold float64

	// BlurThreshold is the Laplacian-variance decision threshold
	BlurThreshold float64

	// MaskDownsample is the ratio of native pixels per tissue-mask pixel
	MaskDownsample int
}

// Opener opens a slide file, the first possible failure point per slide.
type Opener func(path string) (slide.Reader, error)

// MaskBuilder produces the tissue mask consulted during tile selection.
type MaskBuilder func(s slide.Reader) (tiling.TissueMask, error)

// Encoder is the downstream feature-encoding contract: it consumes the
// in-focus manifest for one slide and produces an embedding artifact
// keyed by the slide id.
type Encoder interface {
	EncodeTiles(patientID, manifestPath string) error
}

// Pipeline drives the preprocessing stages for individual slides.
type Pipeline struct {
	cfg       Config
	open      Opener
	buildMask MaskBuilder
	encoder   Encoder
}

// New creates a pipeline. buildMask and encoder may be nil: the default
// mask builder is the Otsu-based provider from pkg/mask, and a nil
// encoder skips the downstream hand-off.
func New(cfg Config, open Opener, buildMask MaskBuilder, encoder Encoder) *Pipeline {
	if buildMask == nil {
		buildMask = func(s slide.Reader) (tiling.TissueMask, error) {
			return mask.Build(s, cfg.MaskDownsample)
		}
	}
	return &Pipeline{cfg: cfg, open: open, buildMask: buildMask, encoder: encoder}
}

// Process runs the full pipeline for one slide. It always returns an
// outcome record, with nil counts for stages that never ran, plus the
// error records accumulated along the way. Failures never propagate past
// this boundary: an unreadable slide or an impossible magnification
// request yields error records and skips the remaining stages, while a
// slide with zero accepted tiles is a valid zero-count outcome.
func (p *Pipeline) Process(patientID, slidePath, resultPath string) (models.Outcome, []models.ProcessingError) {
	runID := uuid.New().String()[:8]
	log.Printf("[%s] processing slide %s", runID, slidePath)

	outcome := models.Outcome{PatientID: patientID, SlidePath: slidePath}
	var errs []models.ProcessingError

	s, err := p.open(slidePath)
	if err != nil {
		errs = append(errs, models.ProcessingError{
			PatientID: patientID,
			Path:      slidePath,
			Message:   fmt.Sprintf("failed to open slide: %v", err),
			Stage:     models.StageSlideOpening,
		})
		return outcome, errs
	}
	defer s.Close()

	if p.cfg.Magnification > s.Magnification() {
		errs = append(errs, models.ProcessingError{
			PatientID: patientID,
			Path:      slidePath,
			Message:   tiling.ErrMagnificationTooLow.Error(),
			Stage:     models.StageTiling,
		})
		return outcome, errs
	}

	// Stage 1: tile selection, skipped when its manifest already exists.
	tileInf := filepath.Join(resultPath, manifest.TilingFile)
	if manifest.Exists(tileInf) {
		count, err := manifest.Count(tileInf)
		if err != nil {
			errs = append(errs, stageError(patientID, tileInf, err, models.StageTiling))
			return outcome, errs
		}
		log.Printf("[%s] tiling already complete, %d tiles", runID, count)
		outcome.TileCount = &count
	} else {
		m, err := p.buildMask(s)
		if err != nil {
			errs = append(errs, stageError(patientID, slidePath, err, models.StageTiling))
			return outcome, errs
		}
		count, err := tiling.Tile(s, m, resultPath, tiling.Params{
			OutputSize:      p.cfg.OutputSize,
			Magnification:   p.cfg.Magnification,
			Overlap:         p.cfg.Overlap,
			TissueThreshold: p.cfg.TissueThreshold,
		})
		if err != nil {
			errs = append(errs, stageError(patientID, slidePath, err, models.StageTiling))
			return outcome, errs
		}
		outcome.TileCount = &count
	}

	// Stage 2: stain normalization.
	normInf := filepath.Join(resultPath, manifest.NormalizedFile)
	if manifest.Exists(normInf) {
		log.Printf("[%s] normalization already complete", runID)
	} else {
		_, tileErrs, err := normalize.Tiles(tileInf, resultPath)
		errs = append(errs, tileErrs...)
		if err != nil {
			errs = append(errs, stageError(patientID, slidePath, err, models.StageNormalization))
			return outcome, errs
		}
	}

	// Stage 3: blur filtering.
	focusInf := filepath.Join(resultPath, manifest.InFocusFile)
	if manifest.Exists(focusInf) {
		count, err := manifest.Count(focusInf)
		if err != nil {
			errs = append(errs, stageError(patientID, focusInf, err, models.StageBlurFilter))
			return outcome, errs
		}
		log.Printf("[%s] blur filter already complete, %d in focus", runID, count)
		outcome.InFocusCount = &count
	} else {
		count, tileErrs, err := filter.Tiles(normInf, resultPath, p.cfg.BlurThreshold)
		errs = append(errs, tileErrs...)
		if err != nil {
			errs = append(errs, stageError(patientID, slidePath, err, models.StageBlurFilter))
			return outcome, errs
		}
		outcome.InFocusCount = &count
	}

	if p.encoder != nil {
		if err := p.encoder.EncodeTiles(patientID, focusInf); err != nil {
			log.Printf("[%s] warning: encoder failed for %s: %v", runID, patientID, err)
		}
	}

	log.Printf("[%s] done with slide %s", runID, patientID)
	return outcome, errs
}

func stageError(patientID, path string, err error, stage string) models.ProcessingError {
	return models.ProcessingError{
		PatientID: patientID,
		Path:      path,
		Message:   err.Error(),
		Stage:     stage,
	}
}
