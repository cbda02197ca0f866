package training

import (
	"math/rand"

	"RevSight/internal/domain/models"
)

// BaggedEnsemble is a random forest: bootstrap-sampled trees over random
// feature subsets, averaged into a soft probability.
type BaggedEnsemble struct {
	Trees []*regTree `json:"trees"`
}

func (b *BaggedEnsemble) Kind() models.ModelKind { return models.KindBagged }
func (b *BaggedEnsemble) Name() string           { return "random_forest" }

func (b *BaggedEnsemble) PredictProba(x []float64) float64 {
	if len(b.Trees) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, t := range b.Trees {
		sum += t.Predict(x)
	}
	p := sum / float64(len(b.Trees))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func fitBagged(X [][]float64, y []int, w []float64, hp Hyperparameters, rng *rand.Rand) *BaggedEnsemble {
	n := len(X)
	d := len(X[0])
	target := make([]float64, n)
	for i, v := range y {
		target[i] = float64(v)
	}
	params := treeParams{
		MaxDepth:        hp.RFMaxDepth,
		MinSamplesSplit: hp.MinSamplesSplit,
		MinSamplesLeaf:  hp.MinSamplesLeaf,
		MaxFeatures:     sqrtFeatures(d),
	}

	b := &BaggedEnsemble{Trees: make([]*regTree, 0, hp.RFTrees)}
	for t := 0; t < hp.RFTrees; t++ {
		// bootstrap with replacement; class balance comes from sample weights
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		b.Trees = append(b.Trees, fitTree(X, target, w, idx, params, rng))
	}
	return b
}
