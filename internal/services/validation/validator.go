package validation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
	"RevSight/pkg/logger"
)

// Config bounds the validation pass. Lambda makes the overfit score dominate
// F1 once the score passes roughly 30; Ceiling is the hard rejection line.
type Config struct {
	SplitRatio  float64
	Folds       int
	Lambda      float64
	Ceiling     float64
	TrendWindow int
	Patience    int
}

func DefaultConfig() Config {
	return Config{
		SplitRatio:  0.8,
		Folds:       5,
		Lambda:      0.02,
		Ceiling:     40,
		TrendWindow: 10,
		Patience:    10,
	}
}

// Result is what validation hands back on acceptance.
type Result struct {
	Selected   service.Candidate
	Report     models.CandidateReport
	Candidates []models.CandidateReport
	TrainRows  int
	ValRows    int
}

// RejectionError is returned when no candidate clears the overfit ceiling.
// It carries the full per-candidate breakdown so callers can report why.
type RejectionError struct {
	Ceiling    float64
	Candidates []models.CandidateReport
}

func (e *RejectionError) Error() string {
	parts := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		parts[i] = fmt.Sprintf("%s overfit=%.1f (gap=%.1f trend=%.1f folds=%.1f stall=%.1f)",
			c.Name, c.Overfit.Score, c.Overfit.GapComponent, c.Overfit.LossTrend,
			c.Overfit.FoldVariance, c.Overfit.EarlyStopSignal)
	}
	return fmt.Sprintf("validation failed: every candidate exceeds overfit ceiling %.0f: %s",
		e.Ceiling, strings.Join(parts, "; "))
}

// Split cuts a chronologically ordered matrix at the configured ratio.
// Never shuffles: history must not leak backward.
func Split(X [][]float64, y []int, w []float64, ratio float64) (trainX [][]float64, trainY []int, trainW []float64, valX [][]float64, valY []int, valW []float64) {
	cut := int(float64(len(X)) * ratio)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(X) {
		cut = len(X) - 1
	}
	return X[:cut], y[:cut], w[:cut], X[cut:], y[cut:], w[cut:]
}

// Validator measures fitted candidates against held-out history and picks
// the one to promote, or rejects the whole run.
type Validator struct {
	cfg     Config
	trainer service.Trainer
	log     *logger.Logger
}

func NewValidator(cfg Config, trainer service.Trainer, log *logger.Logger) *Validator {
	return &Validator{cfg: cfg, trainer: trainer, log: log}
}

// Validate scores each candidate on the chronological split of (X, y, w),
// runs walk-forward cross-validation, computes overfit scores, and selects
// the candidate maximizing F1 - lambda*overfit among those under the
// ceiling. X must be the full matrix in time order, already scaled; the
// candidates must have been fitted on the same split's training partition.
func (v *Validator) Validate(ctx context.Context, candidates []service.Candidate, X [][]float64, y []int, w []float64) (*Result, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("validate: no candidates")
	}
	if len(X) < v.cfg.Folds+1 || len(X) < 10 {
		return nil, fmt.Errorf("validate: %d examples is too few", len(X))
	}

	trainX, trainY, _, valX, valY, _ := Split(X, y, w, v.cfg.SplitRatio)

	reports := make([]models.CandidateReport, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cv, err := v.crossValidate(ctx, c.Kind, X, y, w)
		if err != nil {
			return nil, fmt.Errorf("cross-validate %s: %w", c.Name, err)
		}
		train := Evaluate(c.Scorer, trainX, trainY)
		val := Evaluate(c.Scorer, valX, valY)
		reports[i] = models.CandidateReport{
			Name:       c.Name,
			Kind:       c.Kind,
			Train:      train,
			Validation: val,
			CrossVal:   cv,
			Overfit:    overfitReport(train.Accuracy, val.Accuracy, c.History, cv, v.cfg),
		}
		v.log.Info("candidate validated",
			logger.String("model", c.Name),
			logger.Any("val_f1", val.F1),
			logger.Any("overfit", reports[i].Overfit.Score),
		)
	}

	best := -1
	bestScore := math.Inf(-1)
	for i, r := range reports {
		if r.Overfit.ExceedsThreshold {
			continue
		}
		score := r.Validation.F1 - v.cfg.Lambda*r.Overfit.Score
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return nil, &RejectionError{Ceiling: v.cfg.Ceiling, Candidates: reports}
	}
	reports[best].Selected = true

	return &Result{
		Selected:   candidates[best],
		Report:     reports[best],
		Candidates: reports,
		TrainRows:  len(trainX),
		ValRows:    len(valX),
	}, nil
}

// crossValidate splits the time-ordered matrix into folds+1 contiguous
// blocks; each fold refits the candidate kind on all blocks strictly before
// it and scores accuracy on the fold itself.
func (v *Validator) crossValidate(ctx context.Context, kind models.ModelKind, X [][]float64, y []int, w []float64) (models.CVMetrics, error) {
	blocks := v.cfg.Folds + 1
	size := len(X) / blocks
	if size < 2 {
		return models.CVMetrics{}, fmt.Errorf("too few examples for %d folds", v.cfg.Folds)
	}

	var accs []float64
	for fold := 1; fold <= v.cfg.Folds; fold++ {
		if err := ctx.Err(); err != nil {
			return models.CVMetrics{}, err
		}
		trainEnd := fold * size
		testEnd := trainEnd + size
		if fold == v.cfg.Folds {
			testEnd = len(X)
		}
		if singleClass(y[:trainEnd]) {
			// early history can be all one class; the fold carries no signal
			continue
		}
		scorer, err := v.trainer.FitOne(ctx, kind, X[:trainEnd], y[:trainEnd], w[:trainEnd])
		if err != nil {
			return models.CVMetrics{}, err
		}
		accs = append(accs, Evaluate(scorer, X[trainEnd:testEnd], y[trainEnd:testEnd]).Accuracy)
	}
	if len(accs) == 0 {
		return models.CVMetrics{}, fmt.Errorf("no usable folds")
	}
	return models.CVMetrics{
		FoldAccuracies: accs,
		Mean:           mean(accs),
		Std:            stddev(accs),
	}, nil
}

// Evaluate computes classification metrics at the 0.5 threshold.
func Evaluate(s service.Scorer, X [][]float64, y []int) models.EvalMetrics {
	var tp, fp, tn, fn float64
	for i := range X {
		pred := 0
		if s.PredictProba(X[i]) >= 0.5 {
			pred = 1
		}
		switch {
		case pred == 1 && y[i] == 1:
			tp++
		case pred == 1 && y[i] == 0:
			fp++
		case pred == 0 && y[i] == 0:
			tn++
		default:
			fn++
		}
	}
	m := models.EvalMetrics{}
	total := tp + fp + tn + fn
	if total > 0 {
		m.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func singleClass(y []int) bool {
	if len(y) == 0 {
		return true
	}
	first := y[0]
	for _, v := range y {
		if v != first {
			return false
		}
	}
	return true
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var s float64
	for _, x := range xs {
		s += (x - m) * (x - m)
	}
	return math.Sqrt(s / float64(len(xs)))
}
