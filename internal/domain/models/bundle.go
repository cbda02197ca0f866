package models

import (
	"encoding/json"
	"time"
)

// ModelKind identifies one variant of the trained-model tagged union.
type ModelKind string

const (
	KindGradient      ModelKind = "gradient_ensemble"
	KindBagged        ModelKind = "bagged_ensemble"
	KindBoostedStumps ModelKind = "boosted_stumps"
	KindLinear        ModelKind = "linear_baseline"
	KindVoting        ModelKind = "voting_ensemble"
)

// ScalerParams holds fitted robust-scaler parameters (per feature).
type ScalerParams struct {
	Medians []float64 `json:"medians"`
	Scales  []float64 `json:"scales"` // IQR per feature; 1.0 where IQR was zero
}

// EvalMetrics are the canonical classification metrics for one partition.
type EvalMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// CVMetrics summarizes walk-forward cross-validation accuracy across folds.
type CVMetrics struct {
	FoldAccuracies []float64 `json:"fold_accuracies"`
	Mean           float64   `json:"mean"`
	Std            float64   `json:"std"`
}

// OverfitReport is the 0-100 composite overfitting score with its
// per-indicator breakdown.
type OverfitReport struct {
	Score            float64 `json:"score"`
	GapComponent     float64 `json:"gap_component"`
	LossTrend        float64 `json:"loss_trend_component"`
	FoldVariance     float64 `json:"fold_variance_component"`
	EarlyStopSignal  float64 `json:"early_stop_component"`
	TrainAccuracy    float64 `json:"train_accuracy"`
	ValAccuracy      float64 `json:"val_accuracy"`
	RoundsSinceBest  int     `json:"rounds_since_best"`
	ExceedsThreshold bool    `json:"exceeds_threshold"`
}

// CandidateReport carries everything the validator measured for one candidate.
type CandidateReport struct {
	Name       string        `json:"name"`
	Kind       ModelKind     `json:"kind"`
	Train      EvalMetrics   `json:"train"`
	Validation EvalMetrics   `json:"validation"`
	CrossVal   CVMetrics     `json:"cross_validation"`
	Overfit    OverfitReport `json:"overfit"`
	Selected   bool          `json:"selected"`
}

// FeatureHistogram is one feature's reference distribution: fixed bin edges
// plus normalized frequencies captured from the training set.
type FeatureHistogram struct {
	Feature  string    `json:"feature"`
	BinEdges []float64 `json:"bin_edges"` // len = bins+1
	Freqs    []float64 `json:"freqs"`     // len = bins, sums to ~1
}

// ReferenceDistribution is the training-time snapshot the drift monitor
// compares production data against. Owned by its ModelBundle, read-only after.
type ReferenceDistribution struct {
	Features    []FeatureHistogram `json:"features"`
	SampleCount int                `json:"sample_count"`
}

// BundleMetrics are the metrics persisted with a bundle.
type BundleMetrics struct {
	Selected   string            `json:"selected"`
	Candidates []CandidateReport `json:"candidates"`
	TrainRows  int               `json:"train_rows"`
	ValRows    int               `json:"val_rows"`
}

// ModelBundle is the immutable, versioned training artifact.
// Created once on validation acceptance, never mutated.
type ModelBundle struct {
	VersionID       string                       `json:"version_id"`
	CreatedAt       time.Time                    `json:"created_at"`
	FeatureSchema   []string                     `json:"feature_schema"`
	Symbols         []string                     `json:"symbols"`
	Hyperparameters map[string]float64           `json:"hyperparameters"`
	Scaler          ScalerParams                 `json:"scaler"`
	SelectedModel   string                       `json:"selected_model"`
	Artifacts       map[string]json.RawMessage   `json:"artifacts"` // sub-model name -> serialized parameters
	Metrics         BundleMetrics                `json:"metrics"`
	Reference       ReferenceDistribution        `json:"reference"`
}
