// Package normalize implements Macenko stain normalization: tiles are
// decomposed into hematoxylin/eosin concentrations in optical-density
// space and reconstructed against a canonical reference appearance, so
// tiles scanned under different conditions share one color distribution.
package normalize

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// transmittedLight is the assumed background intensity (Io)
	transmittedLight = 240.0

	// odThreshold (beta) discards near-transparent pixels from the stain
	// direction estimate
	odThreshold = 0.15

	// angularPercentile (alpha) trims the extreme projection angles when
	// picking the two stain directions
	angularPercentile = 0.01

	// concentrationPercentile is the robust per-stain maximum used to
	// rescale concentrations against the reference
	concentrationPercentile = 0.99
)

// Reference stain matrix (columns: hematoxylin, eosin) and the matching
// robust maximum concentrations, from Macenko et al.
var (
	referenceStains = []float64{
		0.5626, 0.2159,
		0.7201, 0.8012,
		0.4062, 0.5581,
	}
	referenceMaxConcentration = [2]float64{1.9705, 1.0308}
)

// ErrInsufficientStain is returned when a tile has too few stained pixels
// to estimate stain directions, e.g. an almost-blank tile.
var ErrInsufficientStain = errors.New("not enough stained pixels to estimate stain vectors")

// File loads the tile at srcPath, normalizes it, and saves the result to
// dstPath.
func File(srcPath, dstPath string) error {
	img, err := imaging.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to load tile %s: %w", srcPath, err)
	}
	norm, err := Normalize(img)
	if err != nil {
		return err
	}
	if err := imaging.Save(norm, dstPath); err != nil {
		return fmt.Errorf("failed to save normalized tile %s: %w", dstPath, err)
	}
	return nil
}

// Normalize maps the tile's color distribution onto the reference stain
// appearance. The steps follow the standard Macenko decomposition:
// optical density conversion, eigen-decomposition of the OD covariance,
// stain vectors from trimmed projection angles, least-squares
// concentrations, rescale against reference percentiles, reconstruction.
func Normalize(img image.Image) (*image.NRGBA, error) {
	src := imaging.Clone(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h
	if n == 0 {
		return nil, errors.New("empty tile")
	}

	// Optical density per pixel, one row per pixel, columns R,G,B.
	od := make([]float64, n*3)
	for i := 0; i < n; i++ {
		px := src.Pix[i*4 : i*4+3]
		for c := 0; c < 3; c++ {
			od[i*3+c] = -math.Log((float64(px[c]) + 1) / transmittedLight)
		}
	}

	// Keep pixels where every channel is above the transparency cutoff.
	var odHat []float64
	for i := 0; i < n; i++ {
		if od[i*3] >= odThreshold && od[i*3+1] >= odThreshold && od[i*3+2] >= odThreshold {
			odHat = append(odHat, od[i*3], od[i*3+1], od[i*3+2])
		}
	}
	if len(odHat)/3 < 2 {
		return nil, ErrInsufficientStain
	}
	nHat := len(odHat) / 3

	// Eigenvectors of the OD covariance. EigenSym returns eigenvalues in
	// ascending order, so columns 1 and 2 span the two dominant stains.
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, mat.NewDense(nHat, 3, odHat), nil)
	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return nil, errors.New("eigendecomposition of stain covariance failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	v1 := []float64{vecs.At(0, 1), vecs.At(1, 1), vecs.At(2, 1)}
	v2 := []float64{vecs.At(0, 2), vecs.At(1, 2), vecs.At(2, 2)}

	// Project stained pixels onto the dominant plane and find the extreme
	// directions via trimmed angular percentiles.
	phis := make([]float64, nHat)
	for i := 0; i < nHat; i++ {
		t1 := odHat[i*3]*v1[0] + odHat[i*3+1]*v1[1] + odHat[i*3+2]*v1[2]
		t2 := odHat[i*3]*v2[0] + odHat[i*3+1]*v2[1] + odHat[i*3+2]*v2[2]
		phis[i] = math.Atan2(t2, t1)
	}
	sort.Float64s(phis)
	minPhi := stat.Quantile(angularPercentile, stat.LinInterp, phis, nil)
	maxPhi := stat.Quantile(1-angularPercentile, stat.LinInterp, phis, nil)

	vMin := planeVector(v1, v2, minPhi)
	vMax := planeVector(v1, v2, maxPhi)

	// Hematoxylin first: it has the larger red component.
	he := mat.NewDense(3, 2, nil)
	first, second := vMin, vMax
	if vMax[0] > vMin[0] {
		first, second = vMax, vMin
	}
	for r := 0; r < 3; r++ {
		he.Set(r, 0, first[r])
		he.Set(r, 1, second[r])
	}

	// Least-squares concentrations for every pixel: HE * C = OD^T.
	odT := mat.NewDense(3, n, nil)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			odT.Set(c, i, od[i*3+c])
		}
	}
	var conc mat.Dense
	if err := conc.Solve(he, odT); err != nil {
		return nil, fmt.Errorf("failed to solve stain concentrations: %w", err)
	}

	// Rescale each stain's concentrations against the reference maxima.
	for s := 0; s < 2; s++ {
		row := make([]float64, n)
		copy(row, conc.RawRowView(s))
		sort.Float64s(row)
		maxC := stat.Quantile(concentrationPercentile, stat.LinInterp, row, nil)
		if maxC <= 0 {
			continue
		}
		factor := referenceMaxConcentration[s] / maxC
		for i := 0; i < n; i++ {
			conc.Set(s, i, conc.At(s, i)*factor)
		}
	}

	// Reconstruct RGB from the reference stain matrix.
	ref := mat.NewDense(3, 2, referenceStains)
	out := imaging.New(w, h, color.NRGBA{})
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			odOut := ref.At(c, 0)*conc.At(0, i) + ref.At(c, 1)*conc.At(1, i)
			v := transmittedLight * math.Exp(-odOut)
			if v > 255 {
				v = 255
			}
			if v < 0 {
				v = 0
			}
			out.Pix[i*4+c] = uint8(v)
		}
		out.Pix[i*4+3] = 255
	}
	return out, nil
}

// planeVector maps an angle in the dominant eigenplane back to a unit
// direction in OD space.
func planeVector(v1, v2 []float64, phi float64) []float64 {
	c, s := math.Cos(phi), math.Sin(phi)
	return []float64{
		v1[0]*c + v2[0]*s,
		v1[1]*c + v2[1]*s,
		v1[2]*c + v2[2]*s,
	}
}
