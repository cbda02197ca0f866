package features

import (
	"math"
	"testing"
	"time"

	"RevSight/internal/domain/models"
)

func genCandles(n int, seed float64) []models.Candle {
	out := make([]models.Candle, n)
	base := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	for i := 0; i < n; i++ {
		// deterministic pseudo-noise, no rand dependency
		drift := math.Sin(float64(i)*0.7+seed) * 0.8
		price += drift
		high := price + 0.5
		low := price - 0.5
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * 5 * time.Minute),
			Symbol: "BTC-USD",
			Open:   price - drift/2,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 1000 + 50*math.Cos(float64(i)),
		}
	}
	return out
}

func TestComputeInsufficientLookback(t *testing.T) {
	e := NewEngineer(1e-10)
	candles := genCandles(MinLookback+10, 0)
	for i := 0; i < MinLookback; i++ {
		if _, ok := e.Compute(candles, i); ok {
			t.Fatalf("expected not-ok at index %d", i)
		}
	}
	for i := MinLookback; i < len(candles); i++ {
		if _, ok := e.Compute(candles, i); !ok {
			t.Fatalf("expected ok at index %d", i)
		}
	}
	if _, ok := e.Compute(candles, len(candles)); ok {
		t.Fatalf("expected not-ok past the end")
	}
}

func TestComputeMatchesSchema(t *testing.T) {
	e := NewEngineer(1e-10)
	candles := genCandles(MinLookback+5, 1)
	v, ok := e.Compute(candles, MinLookback)
	if !ok {
		t.Fatalf("expected ok")
	}
	if len(v) != len(Schema()) {
		t.Fatalf("vector length %d != schema length %d", len(v), len(Schema()))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("feature %s is not finite: %v", Schema()[i], x)
		}
	}
}

func TestComputeNoLookAhead(t *testing.T) {
	e := NewEngineer(1e-10)
	candles := genCandles(200, 2)
	idx := 120
	got, ok := e.Compute(candles, idx)
	if !ok {
		t.Fatalf("expected ok")
	}
	// truncating all future candles must not change the vector
	trimmed, ok := e.Compute(candles[:idx+1], idx)
	if !ok {
		t.Fatalf("expected ok on trimmed slice")
	}
	for i := range got {
		if got[i] != trimmed[i] {
			t.Fatalf("feature %s depends on future candles: %v vs %v", Schema()[i], got[i], trimmed[i])
		}
	}
}

func TestComputeZeroVolume(t *testing.T) {
	e := NewEngineer(1e-10)
	candles := genCandles(MinLookback+2, 3)
	for i := range candles {
		candles[i].Volume = 0
	}
	v, ok := e.Compute(candles, MinLookback+1)
	if !ok {
		t.Fatalf("expected ok")
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			t.Fatalf("feature %s not finite with zero volume: %v", Schema()[i], x)
		}
	}
}

func TestSchemaIsACopy(t *testing.T) {
	s := Schema()
	s[0] = "mutated"
	if Schema()[0] == "mutated" {
		t.Fatalf("Schema must return a defensive copy")
	}
}

func TestComputeAllCoversEveryIndexWithLookback(t *testing.T) {
	candles := genCandles(120, 1.0)
	eng := NewEngineer(0)

	vecs, offset := eng.ComputeAll(candles)
	if offset != MinLookback {
		t.Fatalf("offset = %d, want %d", offset, MinLookback)
	}
	if len(vecs) != len(candles)-MinLookback {
		t.Fatalf("vectors = %d, want %d", len(vecs), len(candles)-MinLookback)
	}
	for k, vec := range vecs {
		want, ok := eng.Compute(candles, offset+k)
		if !ok {
			t.Fatalf("compute at %d not ok", offset+k)
		}
		if len(vec) != len(want) {
			t.Fatalf("vector %d width %d, want %d", k, len(vec), len(want))
		}
		for j := range vec {
			if vec[j] != want[j] {
				t.Fatalf("vector %d feature %d: %v != %v", k, j, vec[j], want[j])
			}
		}
	}
}

func TestComputeAllShortSeries(t *testing.T) {
	vecs, offset := NewEngineer(0).ComputeAll(genCandles(MinLookback, 1.0))
	if vecs != nil {
		t.Fatalf("expected no vectors, got %d", len(vecs))
	}
	if offset != MinLookback {
		t.Fatalf("offset = %d", offset)
	}
}
