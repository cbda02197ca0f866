package training

import (
	"math"
	"testing"
)

func TestScalerFitCentersAndScales(t *testing.T) {
	X := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
		{4, 40},
		{5, 1000}, // outlier must not blow up the scale
	}
	s := &RobustScaler{}
	if err := s.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if s.Medians[0] != 3 {
		t.Fatalf("median[0] = %v, want 3", s.Medians[0])
	}
	out := s.TransformVec([]float64{3, 30})
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("median row should scale to zero, got %v", out)
	}
	// IQR of column 1 stays modest despite the outlier
	if s.Scales[1] > 100 {
		t.Fatalf("outlier dominated scale: %v", s.Scales[1])
	}
}

func TestScalerConstantFeature(t *testing.T) {
	X := [][]float64{{7, 1}, {7, 2}, {7, 3}}
	s := &RobustScaler{}
	if err := s.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if s.Scales[0] != 1 {
		t.Fatalf("constant feature scale = %v, want 1", s.Scales[0])
	}
	if v := s.TransformVec([]float64{7, 2})[0]; v != 0 {
		t.Fatalf("constant feature should center to zero, got %v", v)
	}
}

func TestScalerTransformLeavesInputUntouched(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	s := &RobustScaler{}
	if err := s.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}
	_ = s.Transform(X)
	if X[0][0] != 1 || X[2][1] != 6 {
		t.Fatalf("input mutated: %v", X)
	}
}

func TestScalerEmptyMatrix(t *testing.T) {
	s := &RobustScaler{}
	if err := s.Fit(nil); err == nil {
		t.Fatalf("expected error on empty matrix")
	}
}

func TestScalerRoundTripParams(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 6}, {3, 7}, {4, 8}}
	s := &RobustScaler{}
	if err := s.Fit(X); err != nil {
		t.Fatalf("fit: %v", err)
	}
	restored := NewScalerFromParams(s.Params())
	a := s.TransformVec([]float64{2.5, 6.5})
	b := restored.TransformVec([]float64{2.5, 6.5})
	for j := range a {
		if math.Abs(a[j]-b[j]) > 1e-12 {
			t.Fatalf("restored scaler diverges at %d: %v vs %v", j, a[j], b[j])
		}
	}
}
