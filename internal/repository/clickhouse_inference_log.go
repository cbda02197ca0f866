package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/repository"
	pkgch "RevSight/pkg/clickhouse"
	pkgkafka "RevSight/pkg/kafka"
	applogger "RevSight/pkg/logger"
)

// CHInferenceLog implements InferenceLog backed by ClickHouse. Predictions
// and outcomes land in separate append-only tables and are joined at drift
// time once outcomes have matured.
type CHInferenceLog struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHInferenceLog(ch *pkgch.Client) *CHInferenceLog {
	return &CHInferenceLog{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHInferenceLog) SetLogger(l *applogger.Logger) { s.l = l }

var _ repository.InferenceLog = (*CHInferenceLog)(nil)

func (s *CHInferenceLog) AppendPrediction(ctx context.Context, rec *models.PredictionRecord) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	const q = `INSERT INTO revsight.rt_inferences (bucket, symbol, model_version, features, proba) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, rec.Bucket, rec.Symbol, rec.ModelVersion, string(features), rec.Proba); err != nil {
		return fmt.Errorf("append prediction: %w", err)
	}
	return nil
}

func (s *CHInferenceLog) AppendOutcome(ctx context.Context, symbol string, bucket time.Time, outcome int) error {
	const q = `INSERT INTO revsight.rt_outcomes (bucket, symbol, outcome, observed_at) VALUES (?, ?, ?, now())`
	if _, err := s.db.ExecContext(ctx, q, bucket, symbol, uint8(outcome)); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

func (s *CHInferenceLog) Features(ctx context.Context, version string, w models.DriftWindow) ([][]float64, error) {
	start := time.Now()
	const q = `
        SELECT features
        FROM revsight.rt_inferences
        WHERE model_version = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	rows, err := s.db.QueryContext(ctx, q, version, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("load inference features: %w", err)
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan features: %w", err)
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("decode features: %w", err)
		}
		out = append(out, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("inference features loaded",
			applogger.String("version", version),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHInferenceLog) MaturedOutcomes(ctx context.Context, version string, w models.DriftWindow, maturity time.Duration) ([]models.ScoredOutcome, error) {
	const q = `
        SELECT i.proba, o.outcome
        FROM revsight.rt_inferences AS i
        INNER JOIN revsight.rt_outcomes AS o
            ON o.symbol = i.symbol AND o.bucket = i.bucket
        WHERE i.model_version = ?
          AND i.bucket >= ? AND i.bucket <= ?
          AND o.observed_at >= addSeconds(i.bucket, ?)
    `
	rows, err := s.db.QueryContext(ctx, q, version, w.From, w.To, int64(maturity.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("load matured outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredOutcome
	for rows.Next() {
		var so models.ScoredOutcome
		var outcome uint8
		if err := rows.Scan(&so.Proba, &outcome); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		so.Outcome = int(outcome)
		out = append(out, so)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHInferenceLog) AppendDriftReport(ctx context.Context, report *models.DriftReport) error {
	psi, err := json.Marshal(report.PerFeaturePSI)
	if err != nil {
		return fmt.Errorf("encode psi map: %w", err)
	}
	drifting := uint8(0)
	if report.IsDrifting {
		drifting = 1
	}
	const q = `
        INSERT INTO revsight.drift_reports
            (model_version, computed_at, window_from, window_to, status, sample_count,
             per_feature_psi, overall_drift_score, train_accuracy, prod_accuracy,
             matured_outcomes, accuracy_drop, is_drifting, recommended_action)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q,
		report.ModelVersion,
		report.ComputedAt,
		report.Window.From,
		report.Window.To,
		report.Status,
		uint32(report.SampleCount),
		string(psi),
		report.OverallDriftScore,
		report.TrainAccuracy,
		report.ProdAccuracy,
		uint32(report.MaturedOutcomes),
		report.AccuracyDrop,
		drifting,
		report.RecommendedAction,
	); err != nil {
		return fmt.Errorf("append drift report: %w", err)
	}
	return nil
}

func (s *CHInferenceLog) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// KafkaDriftPublisher implements ReportPublisher over the drift-reports
// topic so downstream alerting consumes checks in real time.
type KafkaDriftPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaDriftPublisher(producer *pkgkafka.Producer, topic string) repository.ReportPublisher {
	return &KafkaDriftPublisher{producer: producer, topic: topic}
}

func (p *KafkaDriftPublisher) PublishDriftReport(ctx context.Context, report *models.DriftReport) error {
	return p.producer.Publish(ctx, p.topic, []byte(report.ModelVersion), report)
}

func (p *KafkaDriftPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
