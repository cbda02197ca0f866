package models

import "time"

// Drift report status values.
const (
	DriftStatusOK               = "ok"
	DriftStatusInsufficientData = "insufficient_data"
	DriftStatusNoReference      = "no_reference"
)

// Recommended actions emitted with a DriftReport.
const (
	ActionNone       = "none"
	ActionMonitor    = "monitor"
	ActionRetrainNow = "retrain now"
)

// DriftWindow bounds the production sample a drift check evaluates.
type DriftWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// DriftReport is the structured result of one drift check. History is
// append-only; reports are never mutated after creation.
type DriftReport struct {
	ModelVersion      string             `json:"model_version"`
	ComputedAt        time.Time          `json:"computed_at"`
	Window            DriftWindow        `json:"window"`
	Status            string             `json:"status"`
	SampleCount       int                `json:"sample_count"`
	PerFeaturePSI     map[string]float64 `json:"per_feature_psi"`
	OverallDriftScore float64            `json:"overall_drift_score"`
	TrainAccuracy     float64            `json:"train_accuracy"`
	ProdAccuracy      float64            `json:"prod_accuracy"`
	MaturedOutcomes   int                `json:"matured_outcomes"`
	AccuracyDrop      float64            `json:"accuracy_drop"`
	IsDrifting        bool               `json:"is_drifting"`
	RecommendedAction string             `json:"recommended_action"`
}

// PredictionRecord is one inference event logged at prediction time.
// Outcome arrives later, once the label has matured.
type PredictionRecord struct {
	ModelVersion string    `json:"model_version"`
	Symbol       string    `json:"symbol"`
	Bucket       time.Time `json:"bucket"`
	Features     []float64 `json:"features"`
	Proba        float64   `json:"proba"`
}

// ScoredOutcome joins a logged prediction with its realized label.
type ScoredOutcome struct {
	Proba   float64 `json:"proba"`
	Outcome int     `json:"outcome"` // 1 = reversal happened, 0 = it did not
}
