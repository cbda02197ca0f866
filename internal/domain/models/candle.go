package models

import "time"

// Candle represents an immutable OHLCV record.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Valid reports whether the candle satisfies the OHLCV invariants:
// low <= open,close <= high and volume >= 0.
func (c Candle) Valid() bool {
	if c.Volume < 0 {
		return false
	}
	if c.Low > c.High {
		return false
	}
	if c.Open < c.Low || c.Open > c.High {
		return false
	}
	if c.Close < c.Low || c.Close > c.High {
		return false
	}
	return true
}

// Direction classifies a reversal event.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionNone Direction = "none"
)

// Label is the binary reversal label derived for a single candle index.
type Label struct {
	CandleIndex int
	IsReversal  bool
	Direction   Direction
}

// TrainingExample pairs an engineered feature vector with its label and a
// class-balancing sample weight.
type TrainingExample struct {
	Bucket   time.Time
	Symbol   string
	Features []float64 // ordered per the bundle's feature schema
	Label    Label
	Weight   float64
}
