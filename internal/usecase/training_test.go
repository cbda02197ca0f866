package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"RevSight/internal/domain/models"
	domrepo "RevSight/internal/domain/repository"
	"RevSight/internal/services/features"
	"RevSight/internal/services/labeling"
	"RevSight/internal/services/training"
	"RevSight/internal/services/validation"
	"RevSight/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// fakeCandleSource serves a fixed candle history regardless of range.
type fakeCandleSource struct {
	candles []models.Candle
}

func (f *fakeCandleSource) GetCandles(_ context.Context, symbol string, _, _ time.Time, _ domrepo.Timeframe) ([]models.Candle, error) {
	out := make([]models.Candle, len(f.candles))
	copy(out, f.candles)
	for i := range out {
		out[i].Symbol = symbol
	}
	return out, nil
}

// memRegistry is an in-memory ModelRegistry for pipeline tests.
type memRegistry struct {
	mu      sync.Mutex
	bundles map[string]*models.ModelBundle
	order   []string
	current string
}

func newMemRegistry() *memRegistry {
	return &memRegistry{bundles: map[string]*models.ModelBundle{}}
}

func (r *memRegistry) Save(_ context.Context, b *models.ModelBundle) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := fmt.Sprintf("v%03d", len(r.order)+1)
	cp := *b
	cp.VersionID = v
	r.bundles[v] = &cp
	r.order = append(r.order, v)
	return v, nil
}

func (r *memRegistry) Load(_ context.Context, version string) (*models.ModelBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version == domrepo.CurrentVersion {
		if r.current == "" {
			return nil, domrepo.ErrNoCurrentVersion
		}
		version = r.current
	}
	b, ok := r.bundles[version]
	if !ok {
		return nil, domrepo.ErrVersionNotFound
	}
	return b, nil
}

func (r *memRegistry) Promote(_ context.Context, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bundles[version]; !ok {
		return domrepo.ErrVersionNotFound
	}
	r.current = version
	return nil
}

func (r *memRegistry) Current(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == "" {
		return "", domrepo.ErrNoCurrentVersion
	}
	return r.current, nil
}

func (r *memRegistry) ListVersions(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out, nil
}

func (r *memRegistry) Prune(_ context.Context, _, _ int) (int, error) { return 0, nil }

// recordingMetrics counts what the pipeline reports.
type recordingMetrics struct {
	mu         sync.Mutex
	runs       []string
	promotions []string
	errs       []string
}

func (m *recordingMetrics) RecordTrainingRun(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, outcome)
}

func (m *recordingMetrics) RecordPromotion(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promotions = append(m.promotions, version)
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, kind)
}

func (m *recordingMetrics) RecordTrainingDuration(float64)      {}
func (m *recordingMetrics) RecordDriftCheck(string, bool)       {}
func (m *recordingMetrics) RecordDriftScore(string, float64)    {}
func (m *recordingMetrics) RecordAccuracyDrop(string, float64)  {}
func (m *recordingMetrics) RecordLatency(string, float64)       {}

func (m *recordingMetrics) lastRun() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return ""
	}
	return m.runs[len(m.runs)-1]
}

// spikeCandles builds a history where every 25-candle cycle holds one sharp
// peak and one sharp trough, both clearing the extremum rule's threshold.
// Everything else is a small ripple that never fires a label.
func spikeCandles(n int) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + 0.2*math.Sin(float64(i)/3)
		switch i % 25 {
		case 12:
			price = 103.5
		case 24:
			price = 96.5
		}
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * 5 * time.Minute),
			Symbol: "BTCUSDT",
			Open:   price * 0.999,
			High:   price * 1.001,
			Low:    price * 0.998,
			Close:  price,
			Volume: 1000 + 10*math.Cos(float64(i)/5),
		}
	}
	return out
}

// flatCandles rise so slowly that no index is ever labeled a reversal.
func flatCandles(n int) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + 0.001*float64(i)
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * 5 * time.Minute),
			Symbol: "BTCUSDT",
			Open:   price,
			High:   price * 1.0005,
			Low:    price * 0.9995,
			Close:  price,
			Volume: 1000,
		}
	}
	return out
}

func smallHyperparameters() training.Hyperparameters {
	hp := training.DefaultHyperparameters()
	hp.GBRounds = 20
	hp.RFTrees = 15
	hp.AdaRounds = 10
	hp.LinIterations = 100
	hp.MinSamplesSplit = 4
	hp.MinSamplesLeaf = 2
	return hp
}

func newTestTrainingUseCase(t *testing.T, source domrepo.CandleSource, reg *memRegistry, m *recordingMetrics, cfg TrainingConfig) *TrainingUseCase {
	t.Helper()
	log := testLogger(t)
	eng := features.NewEngineer(0)
	lbl := labeling.New(labeling.DefaultConfig(), eng)
	hp := smallHyperparameters()
	trainer := training.NewModelTrainer(hp, log)
	vcfg := validation.DefaultConfig()
	validator := validation.NewValidator(vcfg, trainer, log)
	return NewTrainingUseCase(cfg, source, eng, lbl, trainer, validator, hp, vcfg, reg, m, log)
}

func TestTrainAcceptsAndPromotes(t *testing.T) {
	source := &fakeCandleSource{candles: spikeCandles(1000)}
	reg := newMemRegistry()
	m := &recordingMetrics{}
	uc := newTestTrainingUseCase(t, source, reg, m, TrainingConfig{
		Symbols:      []string{"BTCUSDT"},
		LookbackDays: 7,
		Timeframe:    domrepo.TF5m,
	})

	result, err := uc.Train(context.Background(), TrainParams{Promote: true})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !result.Accepted {
		t.Fatalf("run rejected: %s", result.Reason)
	}
	if result.VersionID == "" || result.SelectedModel == "" {
		t.Fatalf("incomplete result: %+v", result)
	}
	if !result.Promoted {
		t.Fatalf("expected promotion")
	}
	if m.lastRun() != "accepted" {
		t.Fatalf("expected accepted run, got %q", m.lastRun())
	}

	current, err := reg.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != result.VersionID {
		t.Fatalf("current = %s, want %s", current, result.VersionID)
	}

	bundle, err := reg.Load(context.Background(), result.VersionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bundle.FeatureSchema) != len(features.Schema()) {
		t.Fatalf("schema length = %d, want %d", len(bundle.FeatureSchema), len(features.Schema()))
	}
	if len(bundle.Reference.Features) != len(features.Schema()) {
		t.Fatalf("reference covers %d features, want %d", len(bundle.Reference.Features), len(features.Schema()))
	}
	if bundle.Reference.SampleCount == 0 {
		t.Fatalf("reference built on zero samples")
	}
	if _, ok := bundle.Artifacts[bundle.SelectedModel]; !ok {
		t.Fatalf("selected model %q missing from artifacts", bundle.SelectedModel)
	}
	if result.TrainRows+result.ValRows != result.Examples {
		t.Fatalf("split %d+%d does not cover %d examples", result.TrainRows, result.ValRows, result.Examples)
	}
}

func TestTrainInsufficientData(t *testing.T) {
	source := &fakeCandleSource{candles: spikeCandles(100)}
	reg := newMemRegistry()
	m := &recordingMetrics{}
	uc := newTestTrainingUseCase(t, source, reg, m, TrainingConfig{
		Symbols:      []string{"BTCUSDT"},
		LookbackDays: 7,
		Timeframe:    domrepo.TF5m,
	})

	result, err := uc.Train(context.Background(), TrainParams{})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if result.Accepted {
		t.Fatalf("expected structured refusal")
	}
	if result.Reason == "" {
		t.Fatalf("expected a reason for the refusal")
	}
	if m.lastRun() != "insufficient_data" {
		t.Fatalf("expected insufficient_data run, got %q", m.lastRun())
	}
	versions, _ := reg.ListVersions(context.Background())
	if len(versions) != 0 {
		t.Fatalf("no bundle should be saved, got %v", versions)
	}
}

func TestTrainSingleClassRefused(t *testing.T) {
	source := &fakeCandleSource{candles: flatCandles(1000)}
	reg := newMemRegistry()
	m := &recordingMetrics{}
	uc := newTestTrainingUseCase(t, source, reg, m, TrainingConfig{
		Symbols:      []string{"BTCUSDT"},
		LookbackDays: 7,
		Timeframe:    domrepo.TF5m,
	})

	result, err := uc.Train(context.Background(), TrainParams{})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if result.Accepted {
		t.Fatalf("single-class data must not produce a model")
	}
	if m.lastRun() != "insufficient_data" {
		t.Fatalf("expected insufficient_data run, got %q", m.lastRun())
	}
}

func TestTrainNoSymbolsConfigured(t *testing.T) {
	source := &fakeCandleSource{}
	reg := newMemRegistry()
	m := &recordingMetrics{}
	uc := newTestTrainingUseCase(t, source, reg, m, TrainingConfig{Timeframe: domrepo.TF5m})

	if _, err := uc.Train(context.Background(), TrainParams{}); err == nil {
		t.Fatalf("expected error without symbols")
	}
}
