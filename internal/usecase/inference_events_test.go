package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"RevSight/internal/domain/models"
)

// capturingInferenceLog records appended predictions and outcomes.
type capturingInferenceLog struct {
	fakeInferenceLog
	preds    []*models.PredictionRecord
	outcomes int
}

func (c *capturingInferenceLog) AppendPrediction(_ context.Context, r *models.PredictionRecord) error {
	c.preds = append(c.preds, r)
	return nil
}

func (c *capturingInferenceLog) AppendOutcome(_ context.Context, _ string, _ time.Time, _ int) error {
	c.outcomes++
	return nil
}

func inferenceEventJSON(t *testing.T, ev map[string]interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func TestInferenceEventsAppendsPrediction(t *testing.T) {
	ilog := &capturingInferenceLog{}
	m := &recordingMetrics{}
	h := NewInferenceEventsHandler("events", ilog, m)

	msg := inferenceEventJSON(t, map[string]interface{}{
		"type":          "prediction",
		"model_version": "20260801_120000",
		"symbol":        "BTCUSDT",
		"bucket":        1755690000,
		"features":      []float64{0.1, 0.2, 0.3},
		"proba":         0.71,
	})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(ilog.preds) != 1 {
		t.Fatalf("predictions appended = %d", len(ilog.preds))
	}
	rec := ilog.preds[0]
	if rec.Symbol != "BTCUSDT" || rec.Proba != 0.71 || len(rec.Features) != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestInferenceEventsPredictionWithoutFeaturesRejected(t *testing.T) {
	ilog := &capturingInferenceLog{}
	m := &recordingMetrics{}
	h := NewInferenceEventsHandler("events", ilog, m)

	msg := inferenceEventJSON(t, map[string]interface{}{
		"type":   "prediction",
		"symbol": "BTCUSDT",
		"bucket": 1755690000,
		"proba":  0.5,
	})
	if err := h.Handle(context.Background(), msg); err == nil {
		t.Fatalf("prediction without features must be rejected")
	}
	if len(ilog.preds) != 0 {
		t.Fatalf("rejected prediction was appended")
	}
	found := false
	for _, kind := range m.errs {
		if kind == "inference_event_invalid" {
			found = true
		}
	}
	if !found {
		t.Fatalf("invalid event not counted, errs=%v", m.errs)
	}
}

func TestInferenceEventsAppendsOutcome(t *testing.T) {
	ilog := &capturingInferenceLog{}
	h := NewInferenceEventsHandler("events", ilog, &recordingMetrics{})

	msg := inferenceEventJSON(t, map[string]interface{}{
		"type":    "outcome",
		"symbol":  "BTCUSDT",
		"bucket":  1755690000,
		"outcome": 1,
	})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ilog.outcomes != 1 {
		t.Fatalf("outcomes appended = %d", ilog.outcomes)
	}
}
