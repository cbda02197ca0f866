package training

import (
	"context"
	"math"
	"testing"

	"RevSight/internal/domain/models"
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

// separableSet builds a deterministic two-feature set where the classes are
// split by x0 + x1 with a clear margin.
func separableSet(n int) ([][]float64, []int) {
	X := make([][]float64, 0, n)
	y := make([]int, 0, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		jitterA := 0.1 * math.Sin(float64(i)*1.7)
		jitterB := 0.1 * math.Cos(float64(i)*2.3)
		if i%2 == 0 {
			X = append(X, []float64{1 + t + jitterA, 1 - t + jitterB})
			y = append(y, 1)
		} else {
			X = append(X, []float64{-1 - t + jitterA, -1 + t + jitterB})
			y = append(y, 0)
		}
	}
	return X, y
}

func smallHyperparameters() Hyperparameters {
	hp := DefaultHyperparameters()
	hp.GBRounds = 20
	hp.RFTrees = 15
	hp.AdaRounds = 10
	hp.LinIterations = 100
	hp.MinSamplesSplit = 4
	hp.MinSamplesLeaf = 2
	return hp
}

func trainAccuracy(s interface{ PredictProba([]float64) float64 }, X [][]float64, y []int) float64 {
	correct := 0
	for i := range X {
		pred := 0
		if s.PredictProba(X[i]) >= 0.5 {
			pred = 1
		}
		if pred == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(X))
}

func TestFitProducesAllCandidates(t *testing.T) {
	X, y := separableSet(200)
	w := SampleWeights(y)
	tr := NewModelTrainer(smallHyperparameters(), testLogger(t))

	cands, err := tr.Fit(context.Background(), X, y, w, nil, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(cands) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(cands))
	}
	seen := map[models.ModelKind]bool{}
	for _, c := range cands {
		seen[c.Kind] = true
		if acc := trainAccuracy(c.Scorer, X, y); acc < 0.9 {
			t.Fatalf("%s failed to separate easy data: accuracy %.3f", c.Name, acc)
		}
	}
	for _, k := range []models.ModelKind{models.KindGradient, models.KindBagged, models.KindBoostedStumps, models.KindLinear, models.KindVoting} {
		if !seen[k] {
			t.Fatalf("missing candidate kind %q", k)
		}
	}
}

func TestFitRecordsValidationHistory(t *testing.T) {
	X, y := separableSet(200)
	w := SampleWeights(y)
	valX, valY := separableSet(60)
	tr := NewModelTrainer(smallHyperparameters(), testLogger(t))

	cands, err := tr.Fit(context.Background(), X, y, w, valX, valY)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	for _, c := range cands {
		if c.Kind != models.KindGradient {
			continue
		}
		if len(c.History.TrainLoss) == 0 || len(c.History.ValLoss) == 0 {
			t.Fatalf("gradient candidate missing loss history")
		}
		if len(c.History.TrainLoss) != len(c.History.ValLoss) {
			t.Fatalf("loss histories diverge: %d vs %d", len(c.History.TrainLoss), len(c.History.ValLoss))
		}
		first, last := c.History.TrainLoss[0], c.History.TrainLoss[len(c.History.TrainLoss)-1]
		if last >= first {
			t.Fatalf("train loss did not decrease: %.4f -> %.4f", first, last)
		}
	}
}

func TestFitIsDeterministic(t *testing.T) {
	X, y := separableSet(120)
	w := SampleWeights(y)
	hp := smallHyperparameters()

	a, err := NewModelTrainer(hp, testLogger(t)).Fit(context.Background(), X, y, w, nil, nil)
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	b, err := NewModelTrainer(hp, testLogger(t)).Fit(context.Background(), X, y, w, nil, nil)
	if err != nil {
		t.Fatalf("second fit: %v", err)
	}
	probe := []float64{0.5, 0.5}
	for i := range a {
		pa := a[i].Scorer.PredictProba(probe)
		pb := b[i].Scorer.PredictProba(probe)
		if pa != pb {
			t.Fatalf("%s not deterministic: %v vs %v", a[i].Name, pa, pb)
		}
	}
}

func TestFitRejectsBadInput(t *testing.T) {
	tr := NewModelTrainer(smallHyperparameters(), testLogger(t))
	ctx := context.Background()

	if _, err := tr.Fit(ctx, nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error on empty matrix")
	}
	X := [][]float64{{1}, {2}, {3}}
	if _, err := tr.Fit(ctx, X, []int{1, 1, 1}, []float64{1, 1, 1}, nil, nil); err == nil {
		t.Fatalf("expected error on single-class labels")
	}
	if _, err := tr.Fit(ctx, X, []int{0, 1}, []float64{1, 1, 1}, nil, nil); err == nil {
		t.Fatalf("expected error on length mismatch")
	}
}

func TestFitHonorsCancellation(t *testing.T) {
	X, y := separableSet(60)
	w := SampleWeights(y)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewModelTrainer(smallHyperparameters(), testLogger(t))
	if _, err := tr.Fit(ctx, X, y, w, nil, nil); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestSampleWeightsBalanceClasses(t *testing.T) {
	y := []int{1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	w := SampleWeights(y)
	if w[0] != 5 {
		t.Fatalf("minority weight = %v, want 5", w[0])
	}
	if math.Abs(w[1]-10.0/18.0) > 1e-12 {
		t.Fatalf("majority weight = %v, want %v", w[1], 10.0/18.0)
	}
	var pos, neg float64
	for i, v := range y {
		if v == 1 {
			pos += w[i]
		} else {
			neg += w[i]
		}
	}
	if math.Abs(pos-neg) > 1e-9 {
		t.Fatalf("weighted class mass unbalanced: %v vs %v", pos, neg)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	X, y := separableSet(120)
	w := SampleWeights(y)
	tr := NewModelTrainer(smallHyperparameters(), testLogger(t))

	cands, err := tr.Fit(context.Background(), X, y, w, nil, nil)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	artifacts, err := EncodeCandidates(cands)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	probe := []float64{1.2, 0.8}
	for _, c := range cands {
		restored, err := DecodeScorer(c.Name, artifacts)
		if err != nil {
			t.Fatalf("decode %s: %v", c.Name, err)
		}
		if restored.Kind() != c.Kind {
			t.Fatalf("kind changed: %q -> %q", c.Kind, restored.Kind())
		}
		want := c.Scorer.PredictProba(probe)
		got := restored.PredictProba(probe)
		if math.Abs(want-got) > 1e-12 {
			t.Fatalf("%s prediction drifted after round trip: %v vs %v", c.Name, want, got)
		}
	}
}

func TestDecodeScorerMissingArtifact(t *testing.T) {
	if _, err := DecodeScorer("nope", nil); err == nil {
		t.Fatalf("expected missing-artifact error")
	}
}

func TestFitOneVotingRefitsMembers(t *testing.T) {
	X, y := separableSet(120)
	w := SampleWeights(y)
	tr := NewModelTrainer(smallHyperparameters(), testLogger(t))

	s, err := tr.FitOne(context.Background(), models.KindVoting, X, y, w)
	if err != nil {
		t.Fatalf("fit one: %v", err)
	}
	v, ok := s.(*VotingEnsemble)
	if !ok {
		t.Fatalf("expected voting ensemble, got %T", s)
	}
	if len(v.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(v.Members))
	}
	if acc := trainAccuracy(v, X, y); acc < 0.9 {
		t.Fatalf("voting ensemble accuracy %.3f", acc)
	}
}
