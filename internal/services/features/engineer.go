package features

import (
	"math"

	"RevSight/internal/domain/models"
)

// MinLookback is the longest rolling window any feature needs. Compute
// returns not-ok for indices with fewer prior candles.
const MinLookback = 50

// SchemaVersion changes whenever a feature is added, removed or reordered.
// A schema change requires a new model version.
const SchemaVersion = "v2"

// schema is the fixed, ordered feature list. Compute emits values in exactly
// this order.
var schema = []string{
	// price action
	"price_change", "range", "body_size", "wick_up", "wick_down", "close_position",
	// moving averages
	"sma_5", "sma_10", "sma_20", "sma_50", "ema_5", "ema_20",
	"price_vs_sma5", "price_vs_sma20",
	// oscillators
	"rsi", "rsi_sma", "macd", "macd_signal", "macd_hist",
	// momentum
	"momentum_3", "momentum_5", "momentum_10", "roc_5", "roc_10",
	// volatility
	"volatility_3", "volatility_5", "volatility_10", "volatility_20", "atr",
	// volume
	"volume_ratio", "volume_change",
	// patterns
	"consecutive_up", "consecutive_down", "bullish_divergence", "bearish_divergence",
	"trend_strength",
	// crosses
	"sma_cross", "macd_cross",
}

// Schema returns the canonical ordered feature names.
func Schema() []string {
	out := make([]string, len(schema))
	copy(out, schema)
	return out
}

// Engineer turns candle sequences into fixed-width feature vectors.
type Engineer struct {
	epsilon float64
}

// NewEngineer creates a feature engineer. epsilon guards divisions by
// zero-valued rolling denominators.
func NewEngineer(epsilon float64) *Engineer {
	if epsilon <= 0 {
		epsilon = 1e-10
	}
	return &Engineer{epsilon: epsilon}
}

// Compute returns the feature vector for candles[index], or ok=false when
// fewer than MinLookback candles precede index. Only candles at or before
// index are read.
func (e *Engineer) Compute(candles []models.Candle, index int) ([]float64, bool) {
	if index < MinLookback || index >= len(candles) {
		return nil, false
	}

	// trailing window including the current candle
	win := candles[index-MinLookback : index+1]
	n := len(win)
	closes := make([]float64, n)
	vols := make([]float64, n)
	for i, c := range win {
		closes[i] = c.Close
		vols[i] = c.Volume
	}
	cur := win[n-1]
	prev := win[n-2]
	eps := e.epsilon

	out := make([]float64, 0, len(schema))

	// price action
	out = append(out, pctChange(closes, 1))
	rng := cur.High - cur.Low
	out = append(out, rng)
	out = append(out, math.Abs(cur.Close-cur.Open))
	out = append(out, cur.High-math.Max(cur.Open, cur.Close))
	out = append(out, math.Min(cur.Open, cur.Close)-cur.Low)
	out = append(out, (cur.Close-cur.Low)/(rng+eps))

	// moving averages
	sma5 := sma(closes, 5)
	sma10 := sma(closes, 10)
	sma20 := sma(closes, 20)
	sma50 := sma(closes, 50)
	ema5 := ema(closes, 5)
	ema20 := ema(closes, 20)
	out = append(out, sma5, sma10, sma20, sma50, ema5, ema20)
	out = append(out, (cur.Close-sma5)/(sma5+eps))
	out = append(out, (cur.Close-sma20)/(sma20+eps))

	// oscillators
	rsis := rsiSeries(closes, 14, eps)
	rsiNow := last(rsis)
	out = append(out, rsiNow)
	out = append(out, sma(rsis, 14))
	macdLine, signal := macdSeries(closes, 12, 26, 9)
	macdNow := last(macdLine)
	signalNow := last(signal)
	out = append(out, macdNow, signalNow, macdNow-signalNow)

	// momentum
	out = append(out, pctChange(closes, 3))
	out = append(out, pctChange(closes, 5))
	out = append(out, pctChange(closes, 10))
	out = append(out, pctChange(closes, 5)*100)
	out = append(out, pctChange(closes, 10)*100)

	// volatility
	out = append(out, rollingStd(closes, 3))
	out = append(out, rollingStd(closes, 5))
	out = append(out, rollingStd(closes, 10))
	out = append(out, rollingStd(closes, 20))
	out = append(out, atr(win, 14))

	// volume: a zero rolling average must not blow up the ratio
	volSMA := sma(vols, 20)
	out = append(out, cur.Volume/(volSMA+eps))
	out = append(out, safeRatioChange(prev.Volume, cur.Volume, eps))

	// patterns
	up, down := consecutive(closes, 5)
	out = append(out, float64(up), float64(down))
	bull, bear := divergence(closes, rsis, 5)
	out = append(out, bull, bear)
	out = append(out, math.Abs(slope(closes, 20)))

	// crosses
	out = append(out, signOf(sma5-sma20))
	out = append(out, signOf(macdNow-signalNow))

	return out, true
}

// ComputeAll computes feature vectors for every index with enough lookback.
// The returned slice is indexed from MinLookback; offsets map 1:1 to candles.
func (e *Engineer) ComputeAll(candles []models.Candle) ([][]float64, int) {
	if len(candles) <= MinLookback {
		return nil, MinLookback
	}
	out := make([][]float64, 0, len(candles)-MinLookback)
	for i := MinLookback; i < len(candles); i++ {
		v, ok := e.Compute(candles, i)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out, MinLookback
}

// RSIAt exposes the relative-strength oscillator for the labeler's
// divergence rule, using the same window arithmetic as Compute.
func (e *Engineer) RSIAt(candles []models.Candle, index int) (float64, bool) {
	if index < MinLookback || index >= len(candles) {
		return 0, false
	}
	win := candles[index-MinLookback : index+1]
	closes := make([]float64, len(win))
	for i, c := range win {
		closes[i] = c.Close
	}
	return last(rsiSeries(closes, 14, e.epsilon)), true
}

// --- window helpers (all operate on the trailing end of their input) ---

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

func sma(xs []float64, n int) float64 {
	if n <= 0 || len(xs) < n {
		return 0
	}
	sum := 0.0
	for _, v := range xs[len(xs)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// ema computes a recursive exponential average over the whole slice, seeded
// with the first value.
func ema(xs []float64, span int) float64 {
	s := emaSeries(xs, span)
	return last(s)
}

func emaSeries(xs []float64, span int) []float64 {
	if len(xs) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(xs))
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

func pctChange(xs []float64, n int) float64 {
	if len(xs) <= n {
		return 0
	}
	base := xs[len(xs)-1-n]
	if base == 0 {
		return 0
	}
	return (xs[len(xs)-1] - base) / base
}

func rollingStd(xs []float64, n int) float64 {
	if n <= 1 || len(xs) < n {
		return 0
	}
	w := xs[len(xs)-n:]
	mean := 0.0
	for _, v := range w {
		mean += v
	}
	mean /= float64(n)
	ss := 0.0
	for _, v := range w {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func atr(win []models.Candle, n int) float64 {
	if len(win) < n {
		return 0
	}
	sum := 0.0
	for _, c := range win[len(win)-n:] {
		sum += c.High - c.Low
	}
	return sum / float64(n)
}

// rsiSeries returns the RSI for every position that has period deltas behind it.
func rsiSeries(closes []float64, period int, eps float64) []float64 {
	if len(closes) <= period {
		return nil
	}
	deltas := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas[i-1] = closes[i] - closes[i-1]
	}
	out := make([]float64, 0, len(deltas)-period+1)
	for i := period; i <= len(deltas); i++ {
		gain, loss := 0.0, 0.0
		for _, d := range deltas[i-period : i] {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		gain /= float64(period)
		loss /= float64(period)
		rs := gain / (loss + eps)
		out = append(out, 100-100/(1+rs))
	}
	return out
}

func macdSeries(closes []float64, fast, slow, signalSpan int) (macd, signal []float64) {
	if len(closes) == 0 {
		return nil, nil
	}
	emaFast := emaSeries(closes, fast)
	emaSlow := emaSeries(closes, slow)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signal = emaSeries(macd, signalSpan)
	return macd, signal
}

func safeRatioChange(prev, cur, eps float64) float64 {
	return (cur - prev) / (prev + eps)
}

func consecutive(closes []float64, n int) (up, down int) {
	if len(closes) < n+1 {
		return 0, 0
	}
	for i := len(closes) - n; i < len(closes); i++ {
		if closes[i] > closes[i-1] {
			up++
		} else if closes[i] < closes[i-1] {
			down++
		}
	}
	return up, down
}

// divergence flags price/oscillator disagreement over the last lag candles.
func divergence(closes, rsis []float64, lag int) (bull, bear float64) {
	if len(closes) <= lag || len(rsis) <= lag {
		return 0, 0
	}
	priceNow, pricePrev := closes[len(closes)-1], closes[len(closes)-1-lag]
	rsiNow, rsiPrev := rsis[len(rsis)-1], rsis[len(rsis)-1-lag]
	if priceNow < pricePrev && rsiNow > rsiPrev {
		bull = 1
	}
	if priceNow > pricePrev && rsiNow < rsiPrev {
		bear = 1
	}
	return bull, bear
}

// slope is the least-squares slope over the last n points.
func slope(xs []float64, n int) float64 {
	if len(xs) < n || n < 2 {
		return 0
	}
	w := xs[len(xs)-n:]
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range w {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / den
}

func signOf(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
