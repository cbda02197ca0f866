package training

import (
	"math"
	"math/rand"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
)

// BoostedStumps is an AdaBoost ensemble of depth-limited weak learners.
type BoostedStumps struct {
	Alphas []float64  `json:"alphas"`
	Stumps []*regTree `json:"stumps"`
}

func (a *BoostedStumps) Kind() models.ModelKind { return models.KindBoostedStumps }
func (a *BoostedStumps) Name() string           { return "adaboost" }

// PredictProba squashes the weighted vote margin into a probability.
func (a *BoostedStumps) PredictProba(x []float64) float64 {
	var margin float64
	for m, t := range a.Stumps {
		margin += a.Alphas[m] * stumpSign(t, x)
	}
	return sigmoid(2 * margin)
}

func stumpSign(t *regTree, x []float64) float64 {
	if t.Predict(x) >= 0.5 {
		return 1
	}
	return -1
}

// fitAdaBoost runs the classic reweighting loop: each round fits a weak tree
// on the current distribution, then boosts the weight of the examples it got
// wrong. Stops early if a round is no better than chance.
func fitAdaBoost(X [][]float64, y []int, w []float64, valX [][]float64, valY []int, hp Hyperparameters, rng *rand.Rand) (*BoostedStumps, service.TrainHistory) {
	n := len(X)
	d := len(X[0])
	target := make([]float64, n)
	ysign := make([]float64, n)
	for i, v := range y {
		target[i] = float64(v)
		if v == 1 {
			ysign[i] = 1
		} else {
			ysign[i] = -1
		}
	}

	// start from the class-balancing weights, normalized
	dist := make([]float64, n)
	var tot float64
	for i := range w {
		tot += w[i]
	}
	for i := range dist {
		dist[i] = w[i] / tot
	}

	params := treeParams{
		MaxDepth:        hp.AdaMaxDepth,
		MinSamplesSplit: hp.MinSamplesSplit,
		MinSamplesLeaf:  hp.MinSamplesLeaf,
		MaxFeatures:     sqrtFeatures(d),
	}

	a := &BoostedStumps{}
	hist := service.TrainHistory{}
	trainMargin := make([]float64, n)
	valMargin := make([]float64, len(valX))

	for round := 0; round < hp.AdaRounds; round++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		tree := fitTree(X, target, dist, idx, params, rng)

		var err float64
		for i := 0; i < n; i++ {
			if stumpSign(tree, X[i]) != ysign[i] {
				err += dist[i]
			}
		}
		if err >= 0.5 || err <= 1e-10 {
			if err <= 1e-10 && len(a.Stumps) == 0 {
				// perfect single learner; keep it with a capped weight
				a.Stumps = append(a.Stumps, tree)
				a.Alphas = append(a.Alphas, hp.AdaLearningRate*5)
			}
			break
		}
		alpha := hp.AdaLearningRate * 0.5 * math.Log((1-err)/err)
		a.Stumps = append(a.Stumps, tree)
		a.Alphas = append(a.Alphas, alpha)

		var z float64
		for i := 0; i < n; i++ {
			dist[i] *= math.Exp(-alpha * ysign[i] * stumpSign(tree, X[i]))
			z += dist[i]
		}
		for i := range dist {
			dist[i] /= z
		}

		for i := 0; i < n; i++ {
			trainMargin[i] += alpha * stumpSign(tree, X[i])
		}
		hist.TrainLoss = append(hist.TrainLoss, marginLoss(trainMargin, ysign))
		if len(valX) > 0 {
			for i := range valX {
				valMargin[i] += alpha * stumpSign(tree, valX[i])
			}
			vs := make([]float64, len(valY))
			for i, v := range valY {
				if v == 1 {
					vs[i] = 1
				} else {
					vs[i] = -1
				}
			}
			hist.ValLoss = append(hist.ValLoss, marginLoss(valMargin, vs))
		}
	}
	return a, hist
}

// marginLoss is the exponential loss AdaBoost minimizes.
func marginLoss(margin, ysign []float64) float64 {
	if len(margin) == 0 {
		return 0
	}
	var loss float64
	for i := range margin {
		loss += math.Exp(-ysign[i] * margin[i])
	}
	return loss / float64(len(margin))
}
