package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"RevSight/internal/domain/models"
	domrepo "RevSight/internal/domain/repository"
	pkgkafka "RevSight/pkg/kafka"
)

// InferenceEventsHandler consumes the inference-events topic and appends
// predictions and matured outcomes to the inference log. The drift monitor
// reads this log back when scoring production windows.
type InferenceEventsHandler struct {
	topic   string
	ilog    domrepo.InferenceLog
	metrics domrepo.Metrics
}

func NewInferenceEventsHandler(topic string, ilog domrepo.InferenceLog, metrics domrepo.Metrics) *InferenceEventsHandler {
	return &InferenceEventsHandler{topic: topic, ilog: ilog, metrics: metrics}
}

func (h *InferenceEventsHandler) Topic() string { return h.topic }

// inferenceEvent is the wire schema. Type "prediction" carries features and
// proba; type "outcome" carries the realized label for an earlier bucket.
type inferenceEvent struct {
	Type         string    `json:"type"`
	ModelVersion string    `json:"model_version,omitempty"`
	Symbol       string    `json:"symbol"`
	Bucket       int64     `json:"bucket"` // unix seconds
	Features     []float64 `json:"features,omitempty"`
	Proba        float64   `json:"proba,omitempty"`
	Outcome      int       `json:"outcome,omitempty"`
}

func (h *InferenceEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev inferenceEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("inference_event_unmarshal")
		return err
	}
	if ev.Symbol == "" || ev.Bucket == 0 {
		h.metrics.RecordError("inference_event_invalid")
		return fmt.Errorf("inference event missing symbol or bucket")
	}
	bucket := time.Unix(ev.Bucket, 0).UTC()

	start := time.Now()
	var err error
	switch ev.Type {
	case "prediction":
		if len(ev.Features) == 0 {
			h.metrics.RecordError("inference_event_invalid")
			return fmt.Errorf("prediction event missing features")
		}
		err = h.ilog.AppendPrediction(ctx, &models.PredictionRecord{
			ModelVersion: ev.ModelVersion,
			Symbol:       ev.Symbol,
			Bucket:       bucket,
			Features:     ev.Features,
			Proba:        ev.Proba,
		})
	case "outcome":
		err = h.ilog.AppendOutcome(ctx, ev.Symbol, bucket, ev.Outcome)
	default:
		h.metrics.RecordError("inference_event_type")
		return fmt.Errorf("unknown inference event type %q", ev.Type)
	}
	h.metrics.RecordLatency("inference_log_append_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("inference_event_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*InferenceEventsHandler)(nil)
