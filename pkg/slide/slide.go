// Package slide provides the boundary to whole-slide image readers.
// The pipeline only depends on the Reader interface; ImageSlide is the
// built-in implementation backed by ordinary raster files, which is enough
// for flat scans and for tests. Proprietary pyramidal formats plug in by
// satisfying Reader.
package slide

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Reader is the interface the pipeline requires from a slide decoder.
type Reader interface {
	// ID returns the slide identifier (patient id)
	ID() string

	// Path returns the original slide file path
	Path() string

	// Magnification returns the native magnification of the scan
	Magnification() float64

	// Dimensions returns the slide pixel size at level 0
	Dimensions() (width, height int)

	// Scale returns the factor relating storage resolution to the
	// reference resolution
	Scale() float64

	// ReadRegion returns pixel data for the axis-aligned rectangle with
	// the given origin and size at the given pyramid level
	ReadRegion(x, y, level, width, height int) (image.Image, error)

	// Close releases resources held by the reader
	Close() error
}

// slideExtensions lists the file extensions recognized as slides during
// discovery. Plain raster formats are included because ImageSlide can
// open them directly.
var slideExtensions = []string{
	".svs", ".tif", ".dcm", ".ndpi", ".vms", ".vmu", ".scn",
	".mrxs", ".tiff", ".svslide", ".bif", ".png", ".jpg", ".jpeg",
}

// IsSlideFile reports whether the filename has a recognized slide extension.
func IsSlideFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range slideExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IDFromPath derives the slide identifier from a file path: the base name
// up to the first dot. "TCGA-AB-0001.svs" yields "TCGA-AB-0001".
func IDFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// ImageSlide is a single-level slide backed by a decoded raster image.
// It treats the image as pyramid level 0; requests for deeper levels fail.
type ImageSlide struct {
	id            string
	path          string
	img           image.Image
	magnification float64
	scale         float64
}

// OpenImage opens a raster file as a single-level slide. The native
// magnification is not stored in plain image formats, so the caller
// supplies the magnification the scan was acquired at, along with the
// scale factor relating it to the reference resolution.
func OpenImage(path string, magnification, scale float64) (*ImageSlide, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open slide image %s: %w", path, err)
	}
	return NewImageSlide(img, IDFromPath(path), path, magnification, scale), nil
}

// NewImageSlide wraps an already-decoded image as a slide. Used by
// OpenImage and by tests that build synthetic slides in memory.
func NewImageSlide(img image.Image, id, path string, magnification, scale float64) *ImageSlide {
	return &ImageSlide{
		id:            id,
		path:          path,
		img:           img,
		magnification: magnification,
		scale:         scale,
	}
}

// ID returns the slide identifier.
func (s *ImageSlide) ID() string { return s.id }

// Path returns the original file path.
func (s *ImageSlide) Path() string { return s.path }

// Magnification returns the native magnification.
func (s *ImageSlide) Magnification() float64 { return s.magnification }

// Scale returns the storage-to-reference scale factor.
func (s *ImageSlide) Scale() float64 { return s.scale }

// Dimensions returns the pixel size of the backing image.
func (s *ImageSlide) Dimensions() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// ReadRegion returns a copy of the requested rectangle. Only level 0
// exists for a flat image.
func (s *ImageSlide) ReadRegion(x, y, level, width, height int) (image.Image, error) {
	if level != 0 {
		return nil, fmt.Errorf("level %d not available: image slides have a single level", level)
	}
	w, h := s.Dimensions()
	if x < 0 || y < 0 || x+width > w || y+height > h {
		return nil, fmt.Errorf("region (%d,%d)+%dx%d out of bounds for %dx%d slide",
			x, y, width, height, w, h)
	}
	b := s.img.Bounds()
	rect := image.Rect(b.Min.X+x, b.Min.Y+y, b.Min.X+x+width, b.Min.Y+y+height)
	return imaging.Crop(s.img, rect), nil
}

// Close releases the backing image.
func (s *ImageSlide) Close() error {
	s.img = nil
	return nil
}
