package models

import "time"

// TrainingResult is the structured outcome of one training run. Returned for
// rejected runs too, so callers always see which candidate won or why none
// did.
type TrainingResult struct {
	VersionID       string            `json:"version_id,omitempty"`
	Accepted        bool              `json:"accepted"`
	Promoted        bool              `json:"promoted"`
	SelectedModel   string            `json:"selected_model,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Symbols         []string          `json:"symbols"`
	Examples        int               `json:"examples"`
	TrainRows       int               `json:"train_rows"`
	ValRows         int               `json:"val_rows"`
	Candidates      []CandidateReport `json:"candidates"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// VersionSummary is the list/compare view of a stored bundle.
type VersionSummary struct {
	VersionID     string      `json:"version_id"`
	CreatedAt     time.Time   `json:"created_at"`
	SelectedModel string      `json:"selected_model"`
	Symbols       []string    `json:"symbols"`
	Validation    EvalMetrics `json:"validation"`
	OverfitScore  float64     `json:"overfit_score"`
	Current       bool        `json:"current"`
}

// ModelComparison contrasts two stored versions on their validation metrics.
type ModelComparison struct {
	A             VersionSummary `json:"a"`
	B             VersionSummary `json:"b"`
	AccuracyDelta float64        `json:"accuracy_delta"` // b minus a
	F1Delta       float64        `json:"f1_delta"`
	OverfitDelta  float64        `json:"overfit_delta"`
	Preferred     string         `json:"preferred"`
}
