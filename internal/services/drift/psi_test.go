package drift

import (
	"math"
	"testing"
)

func column(n int, gen func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = gen(i)
	}
	return out
}

func TestPSIIdenticalDistributions(t *testing.T) {
	col := column(500, func(i int) float64 { return math.Sin(float64(i) * 0.7) })
	X := make([][]float64, len(col))
	for i, v := range col {
		X[i] = []float64{v}
	}
	ref := BuildReference(X, []string{"f0"}, 10)
	if len(ref.Features) != 1 || ref.SampleCount != 500 {
		t.Fatalf("bad reference: %+v", ref)
	}
	psi := PSI(ref.Features[0], col)
	if math.Abs(psi) > 1e-9 {
		t.Fatalf("identical distributions should give PSI ~ 0, got %v", psi)
	}
}

func TestPSIShiftedDistribution(t *testing.T) {
	ref := column(500, func(i int) float64 { return math.Sin(float64(i) * 0.7) })
	X := make([][]float64, len(ref))
	for i, v := range ref {
		X[i] = []float64{v}
	}
	hist := BuildReference(X, []string{"f0"}, 10).Features[0]

	shifted := column(500, func(i int) float64 { return 5 + math.Sin(float64(i)*0.7) })
	psi := PSI(hist, shifted)
	if psi <= 0.25 {
		t.Fatalf("fully shifted distribution should register significant PSI, got %v", psi)
	}
}

func TestPSIOutOfRangeValuesLandInOuterBins(t *testing.T) {
	ref := column(100, func(i int) float64 { return float64(i % 10) })
	X := make([][]float64, len(ref))
	for i, v := range ref {
		X[i] = []float64{v}
	}
	hist := BuildReference(X, []string{"f0"}, 10).Features[0]

	// values far outside the training range must not panic
	psi := PSI(hist, []float64{-1000, 1000, 5})
	if math.IsNaN(psi) || math.IsInf(psi, 0) {
		t.Fatalf("PSI not finite: %v", psi)
	}
}

func TestBuildReferenceConstantFeature(t *testing.T) {
	X := [][]float64{{7}, {7}, {7}, {7}}
	ref := BuildReference(X, []string{"const"}, 10)
	h := ref.Features[0]
	if len(h.BinEdges) != 11 || len(h.Freqs) != 10 {
		t.Fatalf("bad histogram shape: %d edges, %d freqs", len(h.BinEdges), len(h.Freqs))
	}
	var total float64
	for _, f := range h.Freqs {
		total += f
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("frequencies sum to %v", total)
	}
	if psi := PSI(h, []float64{7, 7, 7}); math.Abs(psi) > 1e-9 {
		t.Fatalf("constant feature against itself drifted: %v", psi)
	}
}

func TestPSIEmptyProduction(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	hist := BuildReference(X, []string{"f0"}, 10).Features[0]
	if psi := PSI(hist, nil); psi != 0 {
		t.Fatalf("empty production window should give 0, got %v", psi)
	}
}
