package labeling

import (
	"testing"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/services/features"
)

func flatCandles(n int, price float64) []models.Candle {
	base := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * time.Minute),
			Symbol: "ETH-USD",
			Open:   price, High: price + 0.1, Low: price - 0.1, Close: price,
			Volume: 100,
		}
	}
	return out
}

func newTestLabeler() *Labeler {
	return New(DefaultConfig(), features.NewEngineer(1e-10))
}

func TestLabelExcludesTrailingWindow(t *testing.T) {
	l := newTestLabeler()
	candles := flatCandles(100, 50)
	w := DefaultConfig().FutureWindow
	for i := len(candles) - w; i < len(candles); i++ {
		if _, ok := l.Label(candles, i); ok {
			t.Fatalf("index %d inside trailing future window must not be labeled", i)
		}
	}
	labels := l.LabelAll(candles)
	for _, lbl := range labels {
		if lbl.CandleIndex >= len(candles)-w {
			t.Fatalf("LabelAll produced label inside trailing window: %d", lbl.CandleIndex)
		}
		if lbl.CandleIndex < w {
			t.Fatalf("LabelAll produced label without past window: %d", lbl.CandleIndex)
		}
	}
}

func TestExtremumPeakLabel(t *testing.T) {
	l := newTestLabeler()
	candles := flatCandles(100, 50)
	// a spike well above both neighborhoods
	peak := 60
	candles[peak].Close = 55
	candles[peak].High = 55.1
	lbl, ok := l.Label(candles, peak)
	if !ok {
		t.Fatalf("expected label at peak index")
	}
	if !lbl.IsReversal {
		t.Fatalf("spike of 10%% over flat 50 must be a reversal")
	}
	if lbl.Direction != models.DirectionDown {
		t.Fatalf("peak should reverse down, got %s", lbl.Direction)
	}
}

func TestExtremumTroughLabel(t *testing.T) {
	l := newTestLabeler()
	candles := flatCandles(100, 50)
	trough := 40
	candles[trough].Close = 45
	candles[trough].Low = 44.9
	lbl, ok := l.Label(candles, trough)
	if !ok {
		t.Fatalf("expected label at trough index")
	}
	if !lbl.IsReversal || lbl.Direction != models.DirectionUp {
		t.Fatalf("trough should reverse up, got %+v", lbl)
	}
}

func TestSmallMoveBelowThresholdIsNotReversal(t *testing.T) {
	l := newTestLabeler()
	candles := flatCandles(100, 50)
	// 1% spike, below the 2% threshold
	candles[60].Close = 50.5
	candles[60].High = 50.6
	lbl, ok := l.Label(candles, 60)
	if !ok {
		t.Fatalf("expected label result")
	}
	if lbl.IsReversal {
		t.Fatalf("sub-threshold move must not label as reversal")
	}
}
