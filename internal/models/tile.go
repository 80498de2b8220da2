package models

import (
	"fmt"
	"strconv"
)

// Stage names attached to error records. These appear verbatim in the
// error report so they must stay stable across releases.
const (
	StageSlideOpening  = "Slide Opening"
	StageTiling        = "Tiling"
	StageNormalization = "Normalization"
	StageBlurFilter    = "Blur filter"
)

// Tile is the unit of work flowing through the pipeline stages.
// A stage either passes a tile through with an updated Path or drops it;
// origin and magnification are never rewritten after extraction.
type Tile struct {
	// PatientID is the slide identifier the tile was extracted from
	PatientID string

	// X and Y are the tile origin in native slide pixel coordinates
	X int
	Y int

	// Magnification is the native magnification of the source slide
	Magnification float64

	// Size is the extraction edge size in pixels before resizing.
	// The saved image is always square at the configured output size.
	Size int

	// Path is the location of the stored tile image for this stage
	Path string

	// Scale is the scale factor inherited from the source slide
	Scale float64
}

// FileName returns the deterministic image filename for the tile.
// Later stages reconstruct no state beyond what the manifest and this
// name encode, so the pattern is load-bearing.
func (t Tile) FileName() string {
	return fmt.Sprintf("%s_tile_w%d_h%d_mag%s_size%d_scale%s.png",
		t.PatientID, t.X, t.Y,
		FormatFloat(t.Magnification), t.Size, FormatFloat(t.Scale))
}

// Outcome is the per-slide result returned by the pipeline.
// Counts are nil when the corresponding stage never ran for the slide.
type Outcome struct {
	// PatientID is the slide identifier
	PatientID string

	// SlidePath is the original slide file path
	SlidePath string

	// TileCount is the number of tiles accepted by the tile selector
	TileCount *int

	// InFocusCount is the number of tiles that passed the blur filter
	InFocusCount *int
}

// ProcessingError is a structured, slide-scoped error record. Stage is
// one of the Stage* constants.
type ProcessingError struct {
	PatientID string
	Path      string
	Message   string
	Stage     string
}

// FormatFloat renders magnification and scale values the way they appear
// in filenames and manifests: no exponent, no trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
