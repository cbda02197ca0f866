package validation

import (
	"math"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
)

// overfitReport combines four indicators into the 0-100 composite score:
// train/validation accuracy gap, validation-loss trend, fold variance, and
// the early-stopping signal. The gap dominates: a memorized model clears the
// rejection ceiling on the gap alone.
func overfitReport(trainAcc, valAcc float64, hist service.TrainHistory, cv models.CVMetrics, cfg Config) models.OverfitReport {
	r := models.OverfitReport{
		TrainAccuracy: trainAcc,
		ValAccuracy:   valAcc,
	}

	gap := trainAcc - valAcc
	if gap < 0 {
		gap = 0
	}
	r.GapComponent = math.Min(50, gap*250)

	r.LossTrend = lossTrendPenalty(hist, cfg.TrendWindow)
	r.FoldVariance = foldVariancePenalty(cv)
	r.EarlyStopSignal, r.RoundsSinceBest = earlyStopPenalty(hist.ValLoss, cfg.Patience)

	r.Score = math.Min(100, r.GapComponent+r.LossTrend+r.FoldVariance+r.EarlyStopSignal)
	r.ExceedsThreshold = r.Score >= cfg.Ceiling
	return r
}

// lossTrendPenalty charges up to 20 points for the fraction of the last
// window rounds where validation loss rose while training loss kept falling.
func lossTrendPenalty(hist service.TrainHistory, window int) float64 {
	n := len(hist.ValLoss)
	if n < 2 || len(hist.TrainLoss) != n {
		return 0
	}
	start := n - window
	if start < 1 {
		start = 1
	}
	diverging, total := 0, 0
	for i := start; i < n; i++ {
		total++
		if hist.ValLoss[i] > hist.ValLoss[i-1] && hist.TrainLoss[i] < hist.TrainLoss[i-1] {
			diverging++
		}
	}
	if total == 0 {
		return 0
	}
	return 20 * float64(diverging) / float64(total)
}

// foldVariancePenalty charges up to 15 points proportional to the
// coefficient of variation of fold accuracies. Unstable folds mean the model
// depends on which slice of history it saw.
func foldVariancePenalty(cv models.CVMetrics) float64 {
	if len(cv.FoldAccuracies) < 2 || cv.Mean <= 0 {
		return 0
	}
	return math.Min(15, 100*cv.Std/cv.Mean)
}

// earlyStopPenalty charges up to 15 points once validation loss has not
// improved for more than patience rounds.
func earlyStopPenalty(valLoss []float64, patience int) (float64, int) {
	if len(valLoss) == 0 {
		return 0, 0
	}
	best := 0
	for i, v := range valLoss {
		if v < valLoss[best] {
			best = i
		}
	}
	since := len(valLoss) - 1 - best
	if since <= patience {
		return 0, since
	}
	return math.Min(15, 1.5*float64(since-patience)), since
}
