package training

import (
	"fmt"
	"sort"

	"RevSight/internal/domain/models"
)

// RobustScaler centers by the median and scales by the interquartile range,
// which keeps outlier candles from dominating the scale. Fit only on the
// training partition; the fitted parameters travel with the model bundle and
// are reused unchanged at inference time.
type RobustScaler struct {
	Medians []float64
	Scales  []float64
}

// NewScalerFromParams rebuilds a fitted scaler from persisted parameters.
func NewScalerFromParams(p models.ScalerParams) *RobustScaler {
	return &RobustScaler{Medians: p.Medians, Scales: p.Scales}
}

// Params exposes the fitted parameters for persistence.
func (s *RobustScaler) Params() models.ScalerParams {
	return models.ScalerParams{Medians: s.Medians, Scales: s.Scales}
}

// Fit computes per-feature medians and IQRs over X.
func (s *RobustScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("fit scaler: empty matrix")
	}
	d := len(X[0])
	s.Medians = make([]float64, d)
	s.Scales = make([]float64, d)

	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		sort.Float64s(col)
		s.Medians[j] = quantileSorted(col, 0.5)
		iqr := quantileSorted(col, 0.75) - quantileSorted(col, 0.25)
		if iqr == 0 {
			// constant feature: leave values centered but unscaled
			iqr = 1
		}
		s.Scales[j] = iqr
	}
	return nil
}

// Transform returns a new scaled matrix; the input is left untouched.
func (s *RobustScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i := range X {
		out[i] = s.TransformVec(X[i])
	}
	return out
}

// TransformVec scales a single feature vector.
func (s *RobustScaler) TransformVec(x []float64) []float64 {
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Medians[j]) / s.Scales[j]
	}
	return out
}

// quantileSorted interpolates quantile q over an ascending slice.
func quantileSorted(xs []float64, q float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return xs[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	if lo >= n-1 {
		return xs[n-1]
	}
	frac := pos - float64(lo)
	return xs[lo]*(1-frac) + xs[lo+1]*frac
}
