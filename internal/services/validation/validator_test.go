package validation

import (
	"context"
	"math"
	"testing"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
	"RevSight/internal/services/training"
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

// cleanSet is a learnable, time-ordered set: the label follows the sign of
// the two features with a wide margin and mild deterministic jitter.
func cleanSet(n int) ([][]float64, []int) {
	X := make([][]float64, 0, n)
	y := make([]int, 0, n)
	for i := 0; i < n; i++ {
		jitter := 0.1 * math.Sin(float64(i)*1.9)
		if i%2 == 0 {
			X = append(X, []float64{1 + jitter, 0.8 - jitter})
			y = append(y, 1)
		} else {
			X = append(X, []float64{-1 + jitter, -0.8 - jitter})
			y = append(y, 0)
		}
	}
	return X, y
}

func smallTrainer(t *testing.T) *training.ModelTrainer {
	hp := training.DefaultHyperparameters()
	hp.GBRounds = 20
	hp.RFTrees = 10
	hp.AdaRounds = 8
	hp.LinIterations = 80
	hp.MinSamplesSplit = 4
	hp.MinSamplesLeaf = 2
	return training.NewModelTrainer(hp, testLogger(t))
}

func TestValidateCleanTrend(t *testing.T) {
	X, y := cleanSet(300)
	w := training.SampleWeights(y)
	trainer := smallTrainer(t)
	ctx := context.Background()

	trainX, trainY, trainW, valX, valY, _ := Split(X, y, w, 0.8)
	cands, err := trainer.Fit(ctx, trainX, trainY, trainW, valX, valY)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	v := NewValidator(DefaultConfig(), trainer, testLogger(t))
	res, err := v.Validate(ctx, cands, X, y, w)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.Report.Selected {
		t.Fatalf("selected report not flagged")
	}
	if res.Report.Overfit.Score >= 20 {
		t.Fatalf("clean data scored as overfit: %.1f", res.Report.Overfit.Score)
	}
	if res.Report.Validation.F1 <= 0.9 {
		t.Fatalf("clean data should validate well, F1 = %.3f", res.Report.Validation.F1)
	}
	if res.TrainRows != 240 || res.ValRows != 60 {
		t.Fatalf("unexpected split sizes %d/%d", res.TrainRows, res.ValRows)
	}
	if len(res.Candidates) != len(cands) {
		t.Fatalf("expected a report per candidate")
	}
}

// memorizedScorer perfectly recalls training rows and guesses on everything
// after the cut, mimicking a model that memorized its training set.
type memorizedScorer struct {
	labels map[float64]int
	cut    float64
}

func (m *memorizedScorer) PredictProba(x []float64) float64 {
	if x[0] < m.cut {
		return float64(m.labels[x[0]])
	}
	return 1 // always calls reversal on unseen data
}
func (m *memorizedScorer) Kind() models.ModelKind { return models.KindGradient }
func (m *memorizedScorer) Name() string           { return "memorized" }

// constantTrainer satisfies the Trainer port for tests that only exercise
// selection logic.
type constantTrainer struct{}

func (constantTrainer) Fit(ctx context.Context, X [][]float64, y []int, w []float64, valX [][]float64, valY []int) ([]service.Candidate, error) {
	return nil, nil
}
func (constantTrainer) FitOne(ctx context.Context, kind models.ModelKind, X [][]float64, y []int, w []float64) (service.Scorer, error) {
	return &constantScorer{}, nil
}

type constantScorer struct{}

func (constantScorer) PredictProba([]float64) float64 { return 0.5 }
func (constantScorer) Kind() models.ModelKind         { return models.KindLinear }
func (constantScorer) Name() string                   { return "constant" }

func TestValidateRejectsMemorizedCandidate(t *testing.T) {
	n := 200
	X := make([][]float64, n)
	y := make([]int, n)
	labels := make(map[float64]int, n)
	for i := 0; i < n; i++ {
		X[i] = []float64{float64(i)}
		y[i] = i % 2
	}
	cut := int(0.8 * float64(n))
	for i := 0; i < cut; i++ {
		labels[X[i][0]] = y[i]
	}
	w := training.SampleWeights(y)

	cand := service.Candidate{
		Name:   "memorized",
		Kind:   models.KindGradient,
		Scorer: &memorizedScorer{labels: labels, cut: float64(cut)},
	}

	v := NewValidator(DefaultConfig(), constantTrainer{}, testLogger(t))
	_, err := v.Validate(context.Background(), []service.Candidate{cand}, X, y, w)
	if err == nil {
		t.Fatalf("memorized candidate must be rejected")
	}
	rej, ok := err.(*RejectionError)
	if !ok {
		t.Fatalf("expected RejectionError, got %T: %v", err, err)
	}
	if len(rej.Candidates) != 1 {
		t.Fatalf("expected one candidate breakdown")
	}
	r := rej.Candidates[0].Overfit
	if r.Score <= 40 {
		t.Fatalf("memorized candidate overfit score %.1f, want > 40", r.Score)
	}
	if !r.ExceedsThreshold {
		t.Fatalf("threshold flag not set")
	}
	if r.TrainAccuracy < 0.95 || r.ValAccuracy > 0.7 {
		t.Fatalf("memorization setup broken: train %.2f val %.2f", r.TrainAccuracy, r.ValAccuracy)
	}
}

func TestSplitIsChronological(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9}}
	y := []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
	w := make([]float64, 10)
	trainX, _, _, valX, _, _ := Split(X, y, w, 0.8)
	if len(trainX) != 8 || len(valX) != 2 {
		t.Fatalf("split sizes %d/%d", len(trainX), len(valX))
	}
	if trainX[7][0] != 7 || valX[0][0] != 8 {
		t.Fatalf("split reordered data")
	}
}

func TestEvaluateMetrics(t *testing.T) {
	// scorer predicts 1 for x >= 0
	s := &thresholdScorer{}
	X := [][]float64{{1}, {1}, {-1}, {-1}, {1}, {-1}}
	y := []int{1, 1, 0, 0, 0, 1} // one FP, one FN
	m := Evaluate(s, X, y)
	if math.Abs(m.Accuracy-4.0/6.0) > 1e-12 {
		t.Fatalf("accuracy %.3f", m.Accuracy)
	}
	if math.Abs(m.Precision-2.0/3.0) > 1e-12 {
		t.Fatalf("precision %.3f", m.Precision)
	}
	if math.Abs(m.Recall-2.0/3.0) > 1e-12 {
		t.Fatalf("recall %.3f", m.Recall)
	}
	if math.Abs(m.F1-2.0/3.0) > 1e-12 {
		t.Fatalf("f1 %.3f", m.F1)
	}
}

type thresholdScorer struct{}

func (thresholdScorer) PredictProba(x []float64) float64 {
	if x[0] >= 0 {
		return 0.9
	}
	return 0.1
}
func (thresholdScorer) Kind() models.ModelKind { return models.KindLinear }
func (thresholdScorer) Name() string           { return "threshold" }

func TestLossTrendPenalty(t *testing.T) {
	diverging := service.TrainHistory{
		TrainLoss: []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0.05},
		ValLoss:   []float64{1.0, 0.9, 0.85, 0.9, 0.95, 1.0, 1.05, 1.1, 1.15, 1.2, 1.25},
	}
	p := lossTrendPenalty(diverging, 10)
	if p < 15 {
		t.Fatalf("diverging losses under-penalized: %.1f", p)
	}
	healthy := service.TrainHistory{
		TrainLoss: []float64{1.0, 0.8, 0.6, 0.5, 0.45},
		ValLoss:   []float64{1.0, 0.85, 0.7, 0.6, 0.55},
	}
	if p := lossTrendPenalty(healthy, 10); p != 0 {
		t.Fatalf("healthy losses penalized: %.1f", p)
	}
	if p := lossTrendPenalty(service.TrainHistory{}, 10); p != 0 {
		t.Fatalf("empty history penalized: %.1f", p)
	}
}

func TestEarlyStopPenalty(t *testing.T) {
	// best at round 0, 20 rounds of stall
	stalled := make([]float64, 21)
	for i := range stalled {
		stalled[i] = 0.5 + float64(i)*0.01
	}
	p, since := earlyStopPenalty(stalled, 10)
	if since != 20 {
		t.Fatalf("rounds since best = %d", since)
	}
	if p != 15 {
		t.Fatalf("stall penalty %.1f, want capped 15", p)
	}
	improving := []float64{0.9, 0.8, 0.7, 0.6}
	if p, _ := earlyStopPenalty(improving, 10); p != 0 {
		t.Fatalf("improving run penalized: %.1f", p)
	}
}

func TestValidateTooFewExamples(t *testing.T) {
	v := NewValidator(DefaultConfig(), constantTrainer{}, testLogger(t))
	X := [][]float64{{1}, {2}, {3}}
	cand := []service.Candidate{{Name: "c", Kind: models.KindLinear, Scorer: constantScorer{}}}
	if _, err := v.Validate(context.Background(), cand, X, []int{0, 1, 0}, []float64{1, 1, 1}); err == nil {
		t.Fatalf("expected error on tiny dataset")
	}
}
