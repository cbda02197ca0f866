package repository

import (
	"context"
	"errors"
	"time"

	"RevSight/internal/domain/models"
)

// CurrentVersion is the symbolic name the registry resolves to the promoted
// bundle at read time.
const CurrentVersion = "current"

var (
	// ErrVersionNotFound is returned when a version id does not exist in the registry.
	ErrVersionNotFound = errors.New("model version not found")
	// ErrNoCurrentVersion is returned when "current" is requested but nothing was promoted yet.
	ErrNoCurrentVersion = errors.New("no current model version")
)

// CandleSource supplies ordered candle sequences for a symbol and time range.
// An empty result means "no data", not an error.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
}

// InferenceLog records production inference traffic and serves it back to the
// drift monitor. Predictions are logged immediately; outcomes arrive once the
// label has matured.
type InferenceLog interface {
	AppendPrediction(ctx context.Context, rec *models.PredictionRecord) error
	AppendOutcome(ctx context.Context, symbol string, bucket time.Time, outcome int) error
	// Features returns the raw feature vectors logged for a model version
	// inside the window, in bucket order.
	Features(ctx context.Context, version string, w models.DriftWindow) ([][]float64, error)
	// MaturedOutcomes returns prediction/outcome pairs whose outcome arrived
	// at least maturity after the prediction bucket.
	MaturedOutcomes(ctx context.Context, version string, w models.DriftWindow, maturity time.Duration) ([]models.ScoredOutcome, error)
	// AppendDriftReport appends a report to the drift audit trail.
	AppendDriftReport(ctx context.Context, report *models.DriftReport) error
}

// ModelRegistry persists immutable model bundles under timestamped versions
// with a single movable "current" pointer.
type ModelRegistry interface {
	// Save persists a complete bundle and returns its version id. Partially
	// written bundles are never visible to Load or ListVersions.
	Save(ctx context.Context, bundle *models.ModelBundle) (string, error)
	// Load resolves a version id or CurrentVersion.
	Load(ctx context.Context, version string) (*models.ModelBundle, error)
	// Promote atomically moves the current pointer. It fails with
	// ErrVersionNotFound if the version does not exist; on failure the
	// previous pointer is left intact.
	Promote(ctx context.Context, version string) error
	// Current returns the promoted version id, or ErrNoCurrentVersion.
	Current(ctx context.Context) (string, error)
	// ListVersions returns all version ids in ascending creation order.
	ListVersions(ctx context.Context) ([]string, error)
	// Prune removes versions older than keepDays, always keeping the promoted
	// version and the keepMax most recent ones. Returns removed count.
	Prune(ctx context.Context, keepDays, keepMax int) (int, error)
}

// ReportPublisher broadcasts drift reports to downstream consumers.
type ReportPublisher interface {
	PublishDriftReport(ctx context.Context, report *models.DriftReport) error
}

// Metrics records operational metrics for training and drift monitoring.
type Metrics interface {
	RecordTrainingRun(outcome string)
	RecordTrainingDuration(seconds float64)
	RecordDriftCheck(version string, drifting bool)
	RecordDriftScore(version string, score float64)
	RecordAccuracyDrop(version string, drop float64)
	RecordPromotion(version string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
