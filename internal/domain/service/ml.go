package service

import (
	"context"

	"RevSight/internal/domain/models"
)

// Scorer is the uniform contract every trained model variant satisfies.
// Callers never depend on a specific variant's internals.
type Scorer interface {
	// PredictProba returns the reversal probability for one scaled feature vector.
	PredictProba(features []float64) float64
	Kind() models.ModelKind
	Name() string
}

// Candidate is one fitted model plus everything recorded while fitting it.
type Candidate struct {
	Name    string
	Kind    models.ModelKind
	Scorer  Scorer
	History TrainHistory
}

// TrainHistory captures per-round losses for iterative learners. Empty for
// non-iterative candidates; the validator treats missing history as neutral.
type TrainHistory struct {
	TrainLoss []float64
	ValLoss   []float64
}

// Trainer fits the candidate set over a frozen training matrix.
type Trainer interface {
	// Fit trains every candidate on (X, y, w). Cancellation is cooperative,
	// checked between candidate boundaries.
	Fit(ctx context.Context, X [][]float64, y []int, w []float64, valX [][]float64, valY []int) ([]Candidate, error)
	// FitOne refits a single candidate kind, used by walk-forward cross-validation.
	FitOne(ctx context.Context, kind models.ModelKind, X [][]float64, y []int, w []float64) (Scorer, error)
}
