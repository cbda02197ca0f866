package training

import (
	"math"
	"math/rand"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
)

// GradientEnsemble is a regularized boosted ensemble of shallow regression
// trees on the logistic loss.
type GradientEnsemble struct {
	InitScore    float64    `json:"init_score"`
	LearningRate float64    `json:"learning_rate"`
	Trees        []*regTree `json:"trees"`
}

func (g *GradientEnsemble) Kind() models.ModelKind { return models.KindGradient }
func (g *GradientEnsemble) Name() string           { return "gradient_boosting" }

func (g *GradientEnsemble) PredictProba(x []float64) float64 {
	f := g.InitScore
	for _, t := range g.Trees {
		f += g.LearningRate * t.Predict(x)
	}
	return sigmoid(f)
}

// fitGradient boosts rounds of subsampled shallow trees against the residual
// y - p. When a validation set is supplied, per-round losses are recorded so
// the validator can score loss trends and early-stopping signals.
func fitGradient(X [][]float64, y []int, w []float64, valX [][]float64, valY []int, hp Hyperparameters, rng *rand.Rand) (*GradientEnsemble, service.TrainHistory) {
	n := len(X)
	d := len(X[0])
	g := &GradientEnsemble{
		LearningRate: hp.GBLearningRate,
		Trees:        make([]*regTree, 0, hp.GBRounds),
	}
	g.InitScore = logOdds(baseRate(y, w))

	params := treeParams{
		MaxDepth:        hp.GBMaxDepth,
		MinSamplesSplit: hp.MinSamplesSplit,
		MinSamplesLeaf:  hp.MinSamplesLeaf,
		MaxFeatures:     sqrtFeatures(d),
	}

	f := make([]float64, n)
	for i := range f {
		f[i] = g.InitScore
	}
	valF := make([]float64, len(valX))
	for i := range valF {
		valF[i] = g.InitScore
	}

	residual := make([]float64, n)
	hist := service.TrainHistory{}
	subsample := hp.GBSubsample
	if subsample <= 0 || subsample > 1 {
		subsample = 1
	}

	for round := 0; round < hp.GBRounds; round++ {
		for i := 0; i < n; i++ {
			residual[i] = float64(y[i]) - sigmoid(f[i])
		}

		idx := sampleRows(n, subsample, rng)
		tree := fitTree(X, residual, w, idx, params, rng)
		g.Trees = append(g.Trees, tree)

		for i := 0; i < n; i++ {
			f[i] += g.LearningRate * tree.Predict(X[i])
		}
		hist.TrainLoss = append(hist.TrainLoss, logLossScores(f, y, w))

		if len(valX) > 0 {
			for i := range valX {
				valF[i] += g.LearningRate * tree.Predict(valX[i])
			}
			hist.ValLoss = append(hist.ValLoss, logLossScores(valF, valY, nil))
		}
	}
	return g, hist
}

func sampleRows(n int, frac float64, rng *rand.Rand) []int {
	k := int(float64(n) * frac)
	if k < 1 {
		k = n
	}
	if k >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	return rng.Perm(n)[:k]
}

func baseRate(y []int, w []float64) float64 {
	var pos, tot float64
	for i, v := range y {
		wt := 1.0
		if w != nil {
			wt = w[i]
		}
		tot += wt
		if v == 1 {
			pos += wt
		}
	}
	if tot == 0 {
		return 0.5
	}
	return clampProb(pos / tot)
}

func logOdds(p float64) float64 {
	p = clampProb(p)
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clampProb(p float64) float64 {
	const eps = 1e-7
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// logLossScores is the (weighted) logistic loss given raw scores f.
func logLossScores(f []float64, y []int, w []float64) float64 {
	var loss, tot float64
	for i := range f {
		wt := 1.0
		if w != nil {
			wt = w[i]
		}
		p := clampProb(sigmoid(f[i]))
		if y[i] == 1 {
			loss -= wt * math.Log(p)
		} else {
			loss -= wt * math.Log(1-p)
		}
		tot += wt
	}
	if tot == 0 {
		return 0
	}
	return loss / tot
}
