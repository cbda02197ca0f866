package training

import (
	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
)

// LinearBaseline is a weighted logistic regression fitted by gradient
// descent. It anchors the ensemble: a tree model that cannot beat it is not
// learning structure, just noise.
type LinearBaseline struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (l *LinearBaseline) Kind() models.ModelKind { return models.KindLinear }
func (l *LinearBaseline) Name() string           { return "logistic_regression" }

func (l *LinearBaseline) PredictProba(x []float64) float64 {
	z := l.Bias
	for j, wj := range l.Weights {
		z += wj * x[j]
	}
	return sigmoid(z)
}

func fitLinear(X [][]float64, y []int, w []float64, valX [][]float64, valY []int, hp Hyperparameters) (*LinearBaseline, service.TrainHistory) {
	n := len(X)
	d := len(X[0])
	l := &LinearBaseline{Weights: make([]float64, d)}

	var totW float64
	for _, wi := range w {
		totW += wi
	}
	if totW == 0 {
		totW = 1
	}

	grad := make([]float64, d)
	hist := service.TrainHistory{}
	recordEvery := hp.LinIterations / 20
	if recordEvery < 1 {
		recordEvery = 1
	}

	for it := 0; it < hp.LinIterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradB float64
		for i := 0; i < n; i++ {
			err := l.PredictProba(X[i]) - float64(y[i])
			scaled := w[i] * err
			for j := 0; j < d; j++ {
				grad[j] += scaled * X[i][j]
			}
			gradB += scaled
		}
		for j := 0; j < d; j++ {
			grad[j] = grad[j]/totW + hp.LinL2*l.Weights[j]
			l.Weights[j] -= hp.LinLearningRate * grad[j]
		}
		l.Bias -= hp.LinLearningRate * gradB / totW

		if (it+1)%recordEvery == 0 {
			hist.TrainLoss = append(hist.TrainLoss, linearLoss(l, X, y, w))
			if len(valX) > 0 {
				hist.ValLoss = append(hist.ValLoss, linearLoss(l, valX, valY, nil))
			}
		}
	}
	return l, hist
}

func linearLoss(l *LinearBaseline, X [][]float64, y []int, w []float64) float64 {
	f := make([]float64, len(X))
	for i := range X {
		z := l.Bias
		for j, wj := range l.Weights {
			z += wj * X[i][j]
		}
		f[i] = z
	}
	return logLossScores(f, y, w)
}
