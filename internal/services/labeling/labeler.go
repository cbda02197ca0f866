package labeling

import (
	"RevSight/internal/domain/models"
	"RevSight/internal/services/features"
)

// Config holds the labeling rules' thresholds.
type Config struct {
	FutureWindow   int     // candles ahead/behind for the extremum rule
	PriceThreshold float64 // round-trip move fraction, e.g. 0.02
	Oversold       float64 // RSI floor for bullish divergence
	Overbought     float64 // RSI ceiling for bearish divergence
	DivergenceLag  int     // candles back for the divergence comparison
}

// DefaultConfig mirrors the production labeling thresholds.
func DefaultConfig() Config {
	return Config{
		FutureWindow:   10,
		PriceThreshold: 0.02,
		Oversold:       30,
		Overbought:     70,
		DivergenceLag:  5,
	}
}

// Labeler assigns binary reversal labels from price extrema and
// oscillator divergence. Two rules vote; either firing marks a reversal.
type Labeler struct {
	cfg Config
	eng *features.Engineer
}

func New(cfg Config, eng *features.Engineer) *Labeler {
	if cfg.FutureWindow <= 0 {
		cfg.FutureWindow = 10
	}
	if cfg.DivergenceLag <= 0 {
		cfg.DivergenceLag = 5
	}
	return &Labeler{cfg: cfg, eng: eng}
}

// Label computes the label for candles[index]. ok=false when index lacks a
// complete future window (or past window); those indices are excluded from
// training and metrics, never silently mislabeled.
func (l *Labeler) Label(candles []models.Candle, index int) (models.Label, bool) {
	w := l.cfg.FutureWindow
	if index < w || index+w >= len(candles) {
		return models.Label{}, false
	}

	lbl := models.Label{CandleIndex: index, Direction: models.DirectionNone}

	if dir, hit := l.extremum(candles, index); hit {
		lbl.IsReversal = true
		lbl.Direction = dir
	}
	if dir, hit := l.divergence(candles, index); hit {
		lbl.IsReversal = true
		if lbl.Direction == models.DirectionNone {
			lbl.Direction = dir
		}
	}
	return lbl, true
}

// LabelAll labels every index with complete context. The trailing
// FutureWindow indices are always absent from the result.
func (l *Labeler) LabelAll(candles []models.Candle) []models.Label {
	out := make([]models.Label, 0, len(candles))
	for i := range candles {
		if lbl, ok := l.Label(candles, i); ok {
			out = append(out, lbl)
		}
	}
	return out
}

// extremum fires when index is a local peak or trough within FutureWindow on
// both sides and the move clears PriceThreshold.
func (l *Labeler) extremum(candles []models.Candle, index int) (models.Direction, bool) {
	w := l.cfg.FutureWindow
	p := l.cfg.PriceThreshold
	cur := candles[index].Close

	maxPrev, minPrev := minmaxClose(candles[index-w : index])
	maxNext, minNext := minmaxClose(candles[index+1 : index+1+w])

	// peak: price reverses downward after index
	if cur > maxPrev*(1+p) && cur > maxNext*(1+p) {
		return models.DirectionDown, true
	}
	// trough: price reverses upward after index
	if cur < minPrev*(1-p) && cur < minNext*(1-p) {
		return models.DirectionUp, true
	}
	return models.DirectionNone, false
}

// divergence fires when the oscillator and price disagree at an extreme:
// bullish when RSI is oversold, price makes a lower low but RSI a higher low;
// bearish is the mirror at the overbought threshold.
func (l *Labeler) divergence(candles []models.Candle, index int) (models.Direction, bool) {
	lag := l.cfg.DivergenceLag
	if index < features.MinLookback+lag {
		return models.DirectionNone, false
	}
	rsiNow, ok := l.eng.RSIAt(candles, index)
	if !ok {
		return models.DirectionNone, false
	}
	rsiPrev, ok := l.eng.RSIAt(candles, index-lag)
	if !ok {
		return models.DirectionNone, false
	}
	priceNow := candles[index].Close
	pricePrev := candles[index-lag].Close

	if rsiNow < l.cfg.Oversold && priceNow < pricePrev && rsiNow > rsiPrev {
		return models.DirectionUp, true
	}
	if rsiNow > l.cfg.Overbought && priceNow > pricePrev && rsiNow < rsiPrev {
		return models.DirectionDown, true
	}
	return models.DirectionNone, false
}

func minmaxClose(cs []models.Candle) (max, min float64) {
	if len(cs) == 0 {
		return 0, 0
	}
	max, min = cs[0].Close, cs[0].Close
	for _, c := range cs[1:] {
		if c.Close > max {
			max = c.Close
		}
		if c.Close < min {
			min = c.Close
		}
	}
	return max, min
}
