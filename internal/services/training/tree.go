package training

import (
	"math"
	"math/rand"
	"sort"
)

// treeParams bound tree growth. The floors and subsampling are deliberately
// conservative: shallow, well-populated leaves generalize; deep memorizing
// trees were the documented failure mode this trainer replaces.
type treeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features sampled per split; 0 means all
}

// treeNode is one node of a fitted regression tree. Leaves carry the
// weighted mean of their targets.
type treeNode struct {
	Leaf      bool      `json:"leaf"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Value     float64   `json:"value,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

type regTree struct {
	Root *treeNode `json:"root"`
}

// fitTree grows a weighted regression tree on X[idx] against target[idx],
// minimizing weighted squared error.
func fitTree(X [][]float64, target, w []float64, idx []int, p treeParams, rng *rand.Rand) *regTree {
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	return &regTree{Root: growNode(X, target, w, idx, p, rng, 0)}
}

func growNode(X [][]float64, target, w []float64, idx []int, p treeParams, rng *rand.Rand, depth int) *treeNode {
	if len(idx) == 0 {
		return &treeNode{Leaf: true}
	}
	mean := weightedMean(target, w, idx)
	if depth >= p.MaxDepth || len(idx) < p.MinSamplesSplit {
		return &treeNode{Leaf: true, Value: mean}
	}

	feat, thr, ok := bestSplit(X, target, w, idx, p, rng)
	if !ok {
		return &treeNode{Leaf: true, Value: mean}
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < p.MinSamplesLeaf || len(right) < p.MinSamplesLeaf {
		return &treeNode{Leaf: true, Value: mean}
	}

	return &treeNode{
		Feature:   feat,
		Threshold: thr,
		Left:      growNode(X, target, w, left, p, rng, depth+1),
		Right:     growNode(X, target, w, right, p, rng, depth+1),
	}
}

// bestSplit scans a random feature subset for the split with the largest
// weighted SSE reduction.
func bestSplit(X [][]float64, target, w []float64, idx []int, p treeParams, rng *rand.Rand) (int, float64, bool) {
	d := len(X[idx[0]])
	feats := featureSubset(d, p.MaxFeatures, rng)

	var totW, totS float64
	for _, i := range idx {
		totW += w[i]
		totS += w[i] * target[i]
	}
	if totW == 0 {
		return 0, 0, false
	}
	parentScore := totS * totS / totW

	bestGain := 0.0
	bestFeat, bestThr := -1, 0.0

	order := make([]int, len(idx))
	for _, f := range feats {
		copy(order, idx)
		sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		var lw, ls float64
		for k := 0; k < len(order)-1; k++ {
			i := order[k]
			lw += w[i]
			ls += w[i] * target[i]
			// split only between distinct values
			if X[order[k]][f] == X[order[k+1]][f] {
				continue
			}
			if k+1 < p.MinSamplesLeaf || len(order)-k-1 < p.MinSamplesLeaf {
				continue
			}
			rw := totW - lw
			rs := totS - ls
			if lw <= 0 || rw <= 0 {
				continue
			}
			gain := ls*ls/lw + rs*rs/rw - parentScore
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeat = f
				bestThr = (X[order[k]][f] + X[order[k+1]][f]) / 2
			}
		}
	}
	if bestFeat < 0 {
		return 0, 0, false
	}
	return bestFeat, bestThr, true
}

func featureSubset(d, max int, rng *rand.Rand) []int {
	if max <= 0 || max >= d {
		all := make([]int, d)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rng.Perm(d)[:max]
}

func weightedMean(target, w []float64, idx []int) float64 {
	var sw, s float64
	for _, i := range idx {
		sw += w[i]
		s += w[i] * target[i]
	}
	if sw == 0 {
		return 0
	}
	return s / sw
}

func (t *regTree) Predict(x []float64) float64 {
	n := t.Root
	for n != nil && !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	if n == nil {
		return 0
	}
	return n.Value
}

// sqrtFeatures is the usual max_features heuristic for tree ensembles.
func sqrtFeatures(d int) int {
	if d <= 1 {
		return d
	}
	return int(math.Ceil(math.Sqrt(float64(d))))
}
