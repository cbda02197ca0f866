package usecase

import (
	"context"

	"RevSight/internal/domain/models"
	"RevSight/pkg/logger"
	"RevSight/pkg/queue"
)

// RetrainJobType is the queue message type the drift scheduler enqueues.
const RetrainJobType = "model.retrain"

// RetrainPayload is the queued request. Empty fields fall back to the
// training defaults.
type RetrainPayload struct {
	Symbols      []string `json:"symbols,omitempty"`
	LookbackDays int      `json:"lookback_days,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Promote      bool     `json:"promote"`
}

// RetrainJob consumes retrain requests off the Redis queue and runs the
// training pipeline. Drift-triggered and manually enqueued retrains share
// this path.
type RetrainJob struct {
	training *TrainingUseCase
	log      *logger.Logger
}

func NewRetrainJob(training *TrainingUseCase, log *logger.Logger) *RetrainJob {
	return &RetrainJob{training: training, log: log}
}

func (j *RetrainJob) Name() string { return "retrain_model" }
func (j *RetrainJob) Type() string { return RetrainJobType }

func (j *RetrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[RetrainPayload](payload)
	if err != nil {
		return err
	}
	j.log.Info("retrain job started",
		logger.Strings("symbols", p.Symbols),
		logger.String("reason", p.Reason),
	)
	result, err := j.training.Train(ctx, TrainParams{
		Symbols:      p.Symbols,
		LookbackDays: p.LookbackDays,
		Promote:      p.Promote,
	})
	if err != nil {
		return err
	}
	if !result.Accepted {
		// rejection is a valid outcome; the job succeeded, the model did not
		j.log.Warn("retrain produced no promotable model", logger.String("reason", result.Reason))
		return nil
	}
	j.log.Info("retrain job finished",
		logger.String("version", result.VersionID),
		logger.String("selected", result.SelectedModel),
		logger.Bool("promoted", result.Promoted),
	)
	return nil
}

var _ queue.Job = (*RetrainJob)(nil)

// EnqueueRetrainOnDrift adapts the queue publisher into the drift
// scheduler's handler: a drifting report becomes a queued retrain.
func EnqueueRetrainOnDrift(q queue.QueueService, promote bool, log *logger.Logger) func(ctx context.Context, report *models.DriftReport) error {
	return func(ctx context.Context, report *models.DriftReport) error {
		log.Warn("drift detected, enqueueing retrain",
			logger.String("version", report.ModelVersion),
			logger.Any("score", report.OverallDriftScore),
			logger.Any("accuracy_drop", report.AccuracyDrop),
		)
		return q.PublishMessage(ctx, RetrainJobType, RetrainPayload{
			Reason:  "drift: " + report.RecommendedAction,
			Promote: promote,
		})
	}
}
