// Package mask builds and queries the binary tissue/background mask that
// drives tile selection. The mask is computed once per slide at a coarse
// resolution by Otsu thresholding of grayscale intensity: stained tissue
// is darker than the glass background, so pixels below the threshold are
// marked as tissue.
package mask

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"histotile/pkg/slide"
)

// DefaultDownsample is the default ratio of native pixels per mask pixel.
const DefaultDownsample = 32

// Mask is a low-resolution binary tissue map bound to one slide.
type Mask struct {
	tissue     []bool
	width      int
	height     int
	downsample int
}

// New wraps a precomputed tissue grid. External mask providers can use
// this to feed the pipeline a mask built elsewhere.
func New(tissue []bool, width, height, downsample int) *Mask {
	return &Mask{tissue: tissue, width: width, height: height, downsample: downsample}
}

// Build constructs the tissue mask for a slide by reading the full extent
// at level 0, downsampling, and Otsu-thresholding the grayscale image.
func Build(s slide.Reader, downsample int) (*Mask, error) {
	if downsample < 1 {
		downsample = DefaultDownsample
	}
	w, h := s.Dimensions()
	img, err := s.ReadRegion(0, 0, 0, w, h)
	if err != nil {
		return nil, fmt.Errorf("failed to read slide for mask: %w", err)
	}

	mw := (w + downsample - 1) / downsample
	mh := (h + downsample - 1) / downsample
	small := imaging.Resize(img, mw, mh, imaging.Box)
	gray := imaging.Grayscale(small)

	hist := grayHistogram(gray)
	threshold := otsuThreshold(hist)

	tissue := make([]bool, mw*mh)
	for y := 0; y < mh; y++ {
		for x := 0; x < mw; x++ {
			v := gray.NRGBAAt(x, y).R
			tissue[y*mw+x] = int(v) < threshold
		}
	}

	return &Mask{tissue: tissue, width: mw, height: mh, downsample: downsample}, nil
}

// Downsample returns the ratio of native pixels per mask pixel.
func (m *Mask) Downsample() int { return m.downsample }

// RegionMask returns the mask cells covering the native-coordinate square
// with the given origin and edge size. Cells outside the mask extent are
// not included.
func (m *Mask) RegionMask(x, y, size int) []bool {
	x0 := x / m.downsample
	y0 := y / m.downsample
	x1 := (x + size + m.downsample - 1) / m.downsample
	y1 := (y + size + m.downsample - 1) / m.downsample
	if x1 > m.width {
		x1 = m.width
	}
	if y1 > m.height {
		y1 = m.height
	}

	var region []bool
	for my := y0; my < y1; my++ {
		for mx := x0; mx < x1; mx++ {
			region = append(region, m.tissue[my*m.width+mx])
		}
	}
	return region
}

// IsTissue reports whether the tissue coverage of a region mask meets the
// threshold in [0,1]. An empty region is never tissue.
func (m *Mask) IsTissue(region []bool, threshold float64) bool {
	return len(region) > 0 && Coverage(region) >= threshold
}

// Coverage returns the fraction of cells marked as tissue.
func Coverage(region []bool) float64 {
	if len(region) == 0 {
		return 0
	}
	count := 0
	for _, t := range region {
		if t {
			count++
		}
	}
	return float64(count) / float64(len(region))
}

// grayHistogram counts grayscale intensities into 256 bins.
func grayHistogram(gray *image.NRGBA) [256]int {
	var hist [256]int
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[gray.NRGBAAt(x, y).R]++
		}
	}
	return hist
}

// otsuThreshold picks the intensity that maximizes the between-class
// variance of the histogram. Pixels strictly below the returned value
// belong to the dark (tissue) class.
func otsuThreshold(hist [256]int) int {
	total := 0
	sum := 0.0
	for v, c := range hist {
		total += c
		sum += float64(v) * float64(c)
	}
	if total == 0 {
		return 0
	}

	best := 0
	bestVariance := 0.0
	wB := 0
	sumB := 0.0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		variance := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if variance > bestVariance {
			bestVariance = variance
			best = t + 1
		}
	}
	return best
}
