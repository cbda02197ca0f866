package drift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/repository"
	"RevSight/pkg/logger"
)

// ErrNoReference is returned when the requested bundle carries no stored
// reference distribution. Fatal to the caller: there is nothing to compare
// production data against.
var ErrNoReference = errors.New("model version has no reference distribution")

// Config bounds one drift check.
type Config struct {
	Bins              int
	MinSamples        int
	MinOutcomes       int
	PSIModerate       float64
	PSISignificant    float64
	AccuracyDropLimit float64
	Maturity          time.Duration
}

func DefaultConfig() Config {
	return Config{
		Bins:              10,
		MinSamples:        30,
		MinOutcomes:       20,
		PSIModerate:       0.10,
		PSISignificant:    0.25,
		AccuracyDropLimit: 0.05,
		Maturity:          time.Hour,
	}
}

// Monitor computes drift reports for a model version over a production
// window. It only reads the registry and the inference log; reports are
// idempotent per (version, window) apart from the computed_at stamp.
type Monitor struct {
	cfg      Config
	registry repository.ModelRegistry
	ilog     repository.InferenceLog
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time
}

func NewMonitor(cfg Config, registry repository.ModelRegistry, ilog repository.InferenceLog, metrics repository.Metrics, log *logger.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		registry: registry,
		ilog:     ilog,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock, used by tests and the scheduler.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Compute runs one drift check of version (or "current") over window.
func (m *Monitor) Compute(ctx context.Context, version string, window models.DriftWindow) (*models.DriftReport, error) {
	bundle, err := m.registry.Load(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", version, err)
	}
	if len(bundle.Reference.Features) == 0 {
		return nil, fmt.Errorf("version %s: %w", bundle.VersionID, ErrNoReference)
	}

	report := &models.DriftReport{
		ModelVersion:      bundle.VersionID,
		ComputedAt:        m.now().UTC(),
		Window:            window,
		PerFeaturePSI:     map[string]float64{},
		RecommendedAction: models.ActionNone,
	}

	logged, err := m.ilog.Features(ctx, bundle.VersionID, window)
	if err != nil {
		return nil, fmt.Errorf("load production features: %w", err)
	}
	// vectors whose width disagrees with the reference schema are logged by
	// a different feature version; they are skipped, never indexed
	width := len(bundle.Reference.Features)
	feats := make([][]float64, 0, len(logged))
	for _, f := range logged {
		if len(f) != width {
			continue
		}
		feats = append(feats, f)
	}
	if skipped := len(logged) - len(feats); skipped > 0 {
		m.metrics.RecordError("drift_feature_width")
		m.log.Warn("production vectors skipped, width differs from reference schema",
			logger.String("version", bundle.VersionID),
			logger.Int("skipped", skipped),
			logger.Int("width", width),
		)
	}
	report.SampleCount = len(feats)
	if len(feats) < m.cfg.MinSamples {
		report.Status = models.DriftStatusInsufficientData
		m.log.Warn("drift check skipped, not enough production data",
			logger.String("version", bundle.VersionID),
			logger.Int("samples", len(feats)),
			logger.Int("required", m.cfg.MinSamples),
		)
		return report, nil
	}

	col := make([]float64, len(feats))
	var total float64
	for j, hist := range bundle.Reference.Features {
		for i := range feats {
			col[i] = feats[i][j]
		}
		psi := PSI(hist, col)
		report.PerFeaturePSI[hist.Feature] = psi
		total += psi
	}
	report.OverallDriftScore = total / float64(len(bundle.Reference.Features))

	report.TrainAccuracy = selectedValAccuracy(bundle)
	outcomes, err := m.ilog.MaturedOutcomes(ctx, bundle.VersionID, window, m.cfg.Maturity)
	if err != nil {
		return nil, fmt.Errorf("load matured outcomes: %w", err)
	}
	report.MaturedOutcomes = len(outcomes)
	if len(outcomes) >= m.cfg.MinOutcomes {
		report.ProdAccuracy = outcomeAccuracy(outcomes)
		report.AccuracyDrop = report.TrainAccuracy - report.ProdAccuracy
	}

	report.Status = models.DriftStatusOK
	report.IsDrifting = report.OverallDriftScore > m.cfg.PSISignificant ||
		report.AccuracyDrop > m.cfg.AccuracyDropLimit
	switch {
	case report.IsDrifting:
		report.RecommendedAction = models.ActionRetrainNow
	case report.OverallDriftScore >= m.cfg.PSIModerate:
		report.RecommendedAction = models.ActionMonitor
	}

	m.metrics.RecordDriftCheck(bundle.VersionID, report.IsDrifting)
	m.metrics.RecordDriftScore(bundle.VersionID, report.OverallDriftScore)
	m.metrics.RecordAccuracyDrop(bundle.VersionID, report.AccuracyDrop)
	m.log.Info("drift check complete",
		logger.String("version", bundle.VersionID),
		logger.Any("score", report.OverallDriftScore),
		logger.Any("accuracy_drop", report.AccuracyDrop),
		logger.Bool("drifting", report.IsDrifting),
		logger.String("action", report.RecommendedAction),
	)
	return report, nil
}

// selectedValAccuracy digs the promoted candidate's validation accuracy out
// of the bundle metrics.
func selectedValAccuracy(b *models.ModelBundle) float64 {
	for _, c := range b.Metrics.Candidates {
		if c.Name == b.SelectedModel {
			return c.Validation.Accuracy
		}
	}
	return 0
}

func outcomeAccuracy(outcomes []models.ScoredOutcome) float64 {
	correct := 0
	for _, o := range outcomes {
		pred := 0
		if o.Proba >= 0.5 {
			pred = 1
		}
		if pred == o.Outcome {
			correct++
		}
	}
	return float64(correct) / float64(len(outcomes))
}
