package drift

import (
	"math"

	"RevSight/internal/domain/models"
)

// freqFloor replaces zero bin frequencies so ln never sees zero.
const freqFloor = 1e-4

// BuildReference captures per-feature histograms of the training matrix.
// The bin edges are fixed at build time and reused for every production
// window, so reference and production always share the same binning.
func BuildReference(X [][]float64, names []string, bins int) models.ReferenceDistribution {
	ref := models.ReferenceDistribution{SampleCount: len(X)}
	if len(X) == 0 || bins < 2 {
		return ref
	}
	col := make([]float64, len(X))
	for j, name := range names {
		for i := range X {
			col[i] = X[i][j]
		}
		ref.Features = append(ref.Features, models.FeatureHistogram{
			Feature:  name,
			BinEdges: binEdges(col, bins),
			Freqs:    binFreqs(col, binEdges(col, bins)),
		})
	}
	return ref
}

// PSI measures the shift of prod against the reference histogram:
// sum over bins of (p_prod - p_ref) * ln(p_prod / p_ref).
func PSI(ref models.FeatureHistogram, prod []float64) float64 {
	if len(prod) == 0 || len(ref.Freqs) == 0 {
		return 0
	}
	prodFreqs := binFreqs(prod, ref.BinEdges)
	var psi float64
	for b := range ref.Freqs {
		p := math.Max(prodFreqs[b], freqFloor)
		q := math.Max(ref.Freqs[b], freqFloor)
		psi += (p - q) * math.Log(p/q)
	}
	return psi
}

// binEdges spans [min, max] with equal-width bins. A constant column gets a
// unit-width band around its value so everything lands in one bin.
func binEdges(col []float64, bins int) []float64 {
	lo, hi := col[0], col[0]
	for _, v := range col {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	edges := make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	edges[bins] = hi
	return edges
}

// binFreqs normalizes counts per bin. The outer bins are open-ended so
// production values outside the training range still land somewhere.
func binFreqs(col []float64, edges []float64) []float64 {
	bins := len(edges) - 1
	counts := make([]float64, bins)
	for _, v := range col {
		counts[bucketOf(v, edges)]++
	}
	freqs := make([]float64, bins)
	n := float64(len(col))
	for b := range counts {
		freqs[b] = counts[b] / n
	}
	return freqs
}

func bucketOf(v float64, edges []float64) int {
	bins := len(edges) - 1
	if v <= edges[0] {
		return 0
	}
	if v >= edges[bins] {
		return bins - 1
	}
	for b := 1; b <= bins; b++ {
		if v <= edges[b] {
			return b - 1
		}
	}
	return bins - 1
}
