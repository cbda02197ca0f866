package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/services/drift"
	"RevSight/pkg/cache"
)

// fakeInferenceLog serves canned production data and records audit appends.
type fakeInferenceLog struct {
	mu          sync.Mutex
	features    [][]float64
	outcomes    []models.ScoredOutcome
	reports     []*models.DriftReport
	failReports bool
}

func (f *fakeInferenceLog) AppendPrediction(_ context.Context, _ *models.PredictionRecord) error {
	return nil
}

func (f *fakeInferenceLog) AppendOutcome(_ context.Context, _ string, _ time.Time, _ int) error {
	return nil
}

func (f *fakeInferenceLog) Features(_ context.Context, _ string, _ models.DriftWindow) ([][]float64, error) {
	return f.features, nil
}

func (f *fakeInferenceLog) MaturedOutcomes(_ context.Context, _ string, _ models.DriftWindow, _ time.Duration) ([]models.ScoredOutcome, error) {
	return f.outcomes, nil
}

func (f *fakeInferenceLog) AppendDriftReport(_ context.Context, r *models.DriftReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReports {
		return errors.New("audit store down")
	}
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeInferenceLog) auditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

type fakePublisher struct {
	mu      sync.Mutex
	reports []*models.DriftReport
}

func (p *fakePublisher) PublishDriftReport(_ context.Context, r *models.DriftReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reports)
}

// jsonCache is a minimal in-memory cache.Service that round-trips values
// through JSON, matching the Redis cache's behavior.
type jsonCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newJSONCache() *jsonCache { return &jsonCache{data: map[string][]byte{}} }

func (c *jsonCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *jsonCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *jsonCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *jsonCache) DeleteByPattern(context.Context, string) error { return nil }

func (c *jsonCache) Exists(_ context.Context, keys ...string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *jsonCache) Increment(context.Context, string) (int64, error) { return 0, nil }

func (c *jsonCache) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (c *jsonCache) MSet(context.Context, map[string]interface{}, time.Duration) error { return nil }

func (c *jsonCache) MGet(context.Context, ...string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (c *jsonCache) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (c *jsonCache) Unlock(context.Context, string) error                         { return nil }

// referenceMatrix is a deterministic two-feature training snapshot.
func referenceMatrix(n int) [][]float64 {
	X := make([][]float64, n)
	for i := 0; i < n; i++ {
		X[i] = []float64{
			0.5 + 0.4*math.Sin(float64(i)*0.7),
			float64(i%100) / 100,
		}
	}
	return X
}

func driftTestBundle(refX [][]float64) *models.ModelBundle {
	return &models.ModelBundle{
		CreatedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FeatureSchema: []string{"f0", "f1"},
		SelectedModel: "gradient_ensemble",
		Metrics: models.BundleMetrics{
			Selected: "gradient_ensemble",
			Candidates: []models.CandidateReport{
				{
					Name:       "gradient_ensemble",
					Validation: models.EvalMetrics{Accuracy: 0.9, F1: 0.9},
					Selected:   true,
				},
			},
		},
		Reference: drift.BuildReference(refX, []string{"f0", "f1"}, 10),
	}
}

func balancedOutcomes(n int, accuracy float64) []models.ScoredOutcome {
	correct := int(accuracy * float64(n))
	out := make([]models.ScoredOutcome, 0, n)
	for i := 0; i < n; i++ {
		if i < correct {
			out = append(out, models.ScoredOutcome{Proba: 0.9, Outcome: 1})
		} else {
			out = append(out, models.ScoredOutcome{Proba: 0.9, Outcome: 0})
		}
	}
	return out
}

func newDriftTestUseCase(t *testing.T, ilog *fakeInferenceLog, pub *fakePublisher, c cache.Service) (*DriftUseCase, *memRegistry, string) {
	t.Helper()
	refX := referenceMatrix(300)
	reg := newMemRegistry()
	version, err := reg.Save(context.Background(), driftTestBundle(refX))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	m := &recordingMetrics{}
	monitor := drift.NewMonitor(drift.DefaultConfig(), reg, ilog, m, testLogger(t))
	return NewDriftUseCase(monitor, ilog, pub, c, testLogger(t)), reg, version
}

func TestDriftCheckAuditsAndPublishes(t *testing.T) {
	// production window shifted far outside the reference range
	prod := make([][]float64, 100)
	for i := range prod {
		prod[i] = []float64{5 + float64(i%7), 5 + float64(i%11)}
	}
	ilog := &fakeInferenceLog{features: prod, outcomes: balancedOutcomes(30, 0.9)}
	pub := &fakePublisher{}
	uc, _, version := newDriftTestUseCase(t, ilog, pub, newJSONCache())

	w := models.DriftWindow{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC),
	}
	report, err := uc.Check(context.Background(), version, w)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.IsDrifting {
		t.Fatalf("shifted distribution must drift, score=%f", report.OverallDriftScore)
	}
	if report.RecommendedAction != models.ActionRetrainNow {
		t.Fatalf("action = %q", report.RecommendedAction)
	}
	if ilog.auditCount() != 1 {
		t.Fatalf("audit appends = %d, want 1", ilog.auditCount())
	}
	if pub.count() != 1 {
		t.Fatalf("published reports = %d, want 1", pub.count())
	}
}

func TestDriftCheckServesCachedReport(t *testing.T) {
	refX := referenceMatrix(300)
	prod := make([][]float64, 100)
	copy(prod, refX[:100])
	ilog := &fakeInferenceLog{features: prod, outcomes: balancedOutcomes(30, 0.9)}
	pub := &fakePublisher{}
	uc, _, version := newDriftTestUseCase(t, ilog, pub, newJSONCache())

	w := models.DriftWindow{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC),
	}
	first, err := uc.Check(context.Background(), version, w)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if first.IsDrifting {
		t.Fatalf("same distribution should not drift, score=%f", first.OverallDriftScore)
	}
	second, err := uc.Check(context.Background(), version, w)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if ilog.auditCount() != 1 {
		t.Fatalf("cached read must not re-append, audit appends = %d", ilog.auditCount())
	}
	if pub.count() != 1 {
		t.Fatalf("cached read must not re-publish, published = %d", pub.count())
	}
	if second.ModelVersion != first.ModelVersion || second.Status != first.Status {
		t.Fatalf("cached report differs: %+v vs %+v", second, first)
	}
}

func TestDriftCheckSurvivesAuditFailure(t *testing.T) {
	prod := referenceMatrix(100)
	ilog := &fakeInferenceLog{features: prod, failReports: true}
	pub := &fakePublisher{}
	uc, _, version := newDriftTestUseCase(t, ilog, pub, nil)

	w := models.DriftWindow{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC),
	}
	report, err := uc.Check(context.Background(), version, w)
	if err != nil {
		t.Fatalf("audit failure must not fail the check: %v", err)
	}
	if report == nil || report.Status != models.DriftStatusOK {
		t.Fatalf("unexpected report: %+v", report)
	}
	if pub.count() != 1 {
		t.Fatalf("report must still be published, got %d", pub.count())
	}
}

func TestCheckCurrentResolvesPromotedVersion(t *testing.T) {
	prod := referenceMatrix(100)
	ilog := &fakeInferenceLog{features: prod}
	pub := &fakePublisher{}
	uc, reg, version := newDriftTestUseCase(t, ilog, pub, nil)
	if err := reg.Promote(context.Background(), version); err != nil {
		t.Fatalf("promote: %v", err)
	}

	w := models.DriftWindow{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC),
	}
	report, err := uc.CheckCurrent(context.Background(), w)
	if err != nil {
		t.Fatalf("check current: %v", err)
	}
	if report.ModelVersion != version {
		t.Fatalf("report version = %s, want %s", report.ModelVersion, version)
	}
}
