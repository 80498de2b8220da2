// Package filter classifies tiles as in-focus or blurry. Sharpness is the
// variance of a 3x3 Laplacian response over the grayscale tile; a tile is
// in focus iff the variance meets the configured threshold.
package filter

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// DefaultThreshold is the default Laplacian-variance decision threshold.
const DefaultThreshold = 0.015

// laplacian3 is the 3x3 Laplacian aperture built from second-derivative
// Sobel kernels.
var laplacian3 = [3][3]float64{
	{2, 0, 2},
	{0, -8, 0},
	{2, 0, 2},
}

// InFocus reports the classification for a given sharpness variance. The
// boundary is inclusive: variance equal to the threshold is in focus.
func InFocus(variance, threshold float64) bool {
	return variance >= threshold
}

// Grayscale converts a tile to luma values in [0,1] using the ITU-R 601
// coefficients.
func Grayscale(img image.Image) ([]float64, int, int) {
	src := imaging.Clone(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := make([]float64, w*h)
	for i := 0; i < w*h; i++ {
		px := src.Pix[i*4 : i*4+3]
		gray[i] = (0.2125*float64(px[0]) + 0.7154*float64(px[1]) + 0.0721*float64(px[2])) / 255.0
	}
	return gray, w, h
}

// LaplacianVariance computes the sharpness statistic for a tile: the
// population variance of the 3x3 Laplacian response over the grayscale
// image, with reflected borders.
func LaplacianVariance(img image.Image) float64 {
	gray, w, h := Grayscale(img)
	if w == 0 || h == 0 {
		return 0
	}

	response := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					k := laplacian3[ky+1][kx+1]
					if k == 0 {
						continue
					}
					sum += k * gray[reflect(y+ky, h)*w+reflect(x+kx, w)]
				}
			}
			response[y*w+x] = sum
		}
	}
	return stat.PopVariance(response, nil)
}

// reflect mirrors an index into [0,n) without repeating the edge sample.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	if i < 0 {
		return -i
	}
	if i >= n {
		return 2*n - 2 - i
	}
	return i
}
