package training

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
	"RevSight/pkg/logger"
)

// Hyperparameters configure every candidate in the ensemble. They are
// persisted with the bundle so a loaded model reports exactly what produced
// it.
type Hyperparameters struct {
	GBRounds       int
	GBMaxDepth     int
	GBLearningRate float64
	GBSubsample    float64

	RFTrees    int
	RFMaxDepth int

	AdaRounds       int
	AdaMaxDepth     int
	AdaLearningRate float64

	LinIterations   int
	LinLearningRate float64
	LinL2           float64

	MinSamplesSplit int
	MinSamplesLeaf  int

	Seed int64
}

// DefaultHyperparameters are tuned for generalization over training-set fit:
// shallow trees, subsampling, and populated leaves.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		GBRounds:        100,
		GBMaxDepth:      4,
		GBLearningRate:  0.05,
		GBSubsample:     0.7,
		RFTrees:         100,
		RFMaxDepth:      10,
		AdaRounds:       50,
		AdaMaxDepth:     3,
		AdaLearningRate: 0.5,
		LinIterations:   300,
		LinLearningRate: 0.1,
		LinL2:           0.01,
		MinSamplesSplit: 20,
		MinSamplesLeaf:  10,
		Seed:            17,
	}
}

// Map flattens the hyperparameters for bundle persistence.
func (hp Hyperparameters) Map() map[string]float64 {
	return map[string]float64{
		"gb_rounds":         float64(hp.GBRounds),
		"gb_max_depth":      float64(hp.GBMaxDepth),
		"gb_learning_rate":  hp.GBLearningRate,
		"gb_subsample":      hp.GBSubsample,
		"rf_trees":          float64(hp.RFTrees),
		"rf_max_depth":      float64(hp.RFMaxDepth),
		"ada_rounds":        float64(hp.AdaRounds),
		"ada_max_depth":     float64(hp.AdaMaxDepth),
		"ada_learning_rate": hp.AdaLearningRate,
		"lin_iterations":    float64(hp.LinIterations),
		"lin_learning_rate": hp.LinLearningRate,
		"lin_l2":            hp.LinL2,
		"min_samples_split": float64(hp.MinSamplesSplit),
		"min_samples_leaf":  float64(hp.MinSamplesLeaf),
		"seed":              float64(hp.Seed),
	}
}

// SampleWeights balances classes the sklearn way: n / (n_classes * count).
// A class absent from y gets no weight entries, so the caller must ensure
// both classes are present before training.
func SampleWeights(y []int) []float64 {
	counts := [2]float64{}
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	w := make([]float64, len(y))
	for i, v := range y {
		w[i] = n / (2 * counts[v])
	}
	return w
}

// ModelTrainer fits the full candidate set. Base candidates train in
// parallel; the soft-voting ensemble is assembled from the fitted members.
type ModelTrainer struct {
	hp  Hyperparameters
	log *logger.Logger
}

func NewModelTrainer(hp Hyperparameters, log *logger.Logger) *ModelTrainer {
	return &ModelTrainer{hp: hp, log: log}
}

var _ service.Trainer = (*ModelTrainer)(nil)

func (t *ModelTrainer) Fit(ctx context.Context, X [][]float64, y []int, w []float64, valX [][]float64, valY []int) ([]service.Candidate, error) {
	if err := checkMatrix(X, y, w); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kinds := []models.ModelKind{
		models.KindGradient,
		models.KindBagged,
		models.KindBoostedStumps,
		models.KindLinear,
	}

	fitted := make([]service.Candidate, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(slot int, kind models.ModelKind) {
			defer wg.Done()
			start := time.Now()
			scorer, hist := t.fitKind(kind, X, y, w, valX, valY)
			fitted[slot] = service.Candidate{
				Name:    scorer.Name(),
				Kind:    kind,
				Scorer:  scorer,
				History: hist,
			}
			t.log.Info("candidate fitted",
				logger.String("model", scorer.Name()),
				logger.Int("samples", len(X)),
				logger.Duration("took", time.Since(start)),
			)
		}(i, kind)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	voting := &VotingEnsemble{}
	for _, c := range fitted {
		voting.Members = append(voting.Members, c.Scorer)
	}
	fitted = append(fitted, service.Candidate{
		Name:   voting.Name(),
		Kind:   models.KindVoting,
		Scorer: voting,
	})
	return fitted, nil
}

func (t *ModelTrainer) FitOne(ctx context.Context, kind models.ModelKind, X [][]float64, y []int, w []float64) (service.Scorer, error) {
	if err := checkMatrix(X, y, w); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == models.KindVoting {
		voting := &VotingEnsemble{}
		for _, k := range []models.ModelKind{models.KindGradient, models.KindBagged, models.KindBoostedStumps, models.KindLinear} {
			m, err := t.FitOne(ctx, k, X, y, w)
			if err != nil {
				return nil, err
			}
			voting.Members = append(voting.Members, m)
		}
		return voting, nil
	}
	scorer, _ := t.fitKind(kind, X, y, w, nil, nil)
	return scorer, nil
}

// fitKind dispatches to the kind-specific fitter. Each kind gets its own
// seeded source so parallel fits stay deterministic.
func (t *ModelTrainer) fitKind(kind models.ModelKind, X [][]float64, y []int, w []float64, valX [][]float64, valY []int) (service.Scorer, service.TrainHistory) {
	rng := rand.New(rand.NewSource(t.hp.Seed + int64(len(kind))*31))
	switch kind {
	case models.KindGradient:
		return fitGradient(X, y, w, valX, valY, t.hp, rng)
	case models.KindBagged:
		return fitBagged(X, y, w, t.hp, rng), service.TrainHistory{}
	case models.KindBoostedStumps:
		return fitAdaBoost(X, y, w, valX, valY, t.hp, rng)
	case models.KindLinear:
		return fitLinear(X, y, w, valX, valY, t.hp)
	default:
		panic(fmt.Sprintf("unknown model kind %q", kind))
	}
}

func checkMatrix(X [][]float64, y []int, w []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("train: empty feature matrix")
	}
	if len(X) != len(y) || len(X) != len(w) {
		return fmt.Errorf("train: matrix/label/weight length mismatch (%d/%d/%d)", len(X), len(y), len(w))
	}
	var pos int
	for _, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("train: label out of range: %d", v)
		}
		pos += v
	}
	if pos == 0 || pos == len(y) {
		return fmt.Errorf("train: single-class label set (%d positives of %d)", pos, len(y))
	}
	return nil
}
