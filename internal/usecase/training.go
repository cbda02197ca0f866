package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"RevSight/internal/domain/models"
	domrepo "RevSight/internal/domain/repository"
	"RevSight/internal/services/drift"
	"RevSight/internal/services/features"
	"RevSight/internal/services/labeling"
	"RevSight/internal/services/training"
	"RevSight/internal/services/validation"
	applogger "RevSight/pkg/logger"
	"RevSight/pkg/util"
)

// TrainParams select what one training run covers. Zero values fall back to
// the configured defaults.
type TrainParams struct {
	Symbols      []string
	LookbackDays int
	Timeframe    domrepo.Timeframe
	Promote      bool
}

// TrainingConfig are the run defaults injected from configuration.
type TrainingConfig struct {
	Symbols      []string
	LookbackDays int
	Timeframe    domrepo.Timeframe
	MinExamples  int
	ReferenceBins int
	AutoPromote  bool
	KeepDays     int
	KeepMax      int
}

// TrainingUseCase runs the full pipeline: candles, features, labels,
// candidate fitting, validation, bundle persistence and optional promotion.
type TrainingUseCase struct {
	cfg       TrainingConfig
	candles   domrepo.CandleSource
	engineer  *features.Engineer
	labeler   *labeling.Labeler
	trainer   *training.ModelTrainer
	validator *validation.Validator
	hp        training.Hyperparameters
	splitRatio float64
	registry  domrepo.ModelRegistry
	metrics   domrepo.Metrics
	log       *applogger.Logger
	now       func() time.Time
}

func NewTrainingUseCase(
	cfg TrainingConfig,
	candles domrepo.CandleSource,
	engineer *features.Engineer,
	labeler *labeling.Labeler,
	trainer *training.ModelTrainer,
	validator *validation.Validator,
	hp training.Hyperparameters,
	valCfg validation.Config,
	registry domrepo.ModelRegistry,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *TrainingUseCase {
	if cfg.MinExamples <= 0 {
		cfg.MinExamples = 200
	}
	if cfg.ReferenceBins <= 0 {
		cfg.ReferenceBins = 10
	}
	return &TrainingUseCase{
		cfg:        cfg,
		candles:    candles,
		engineer:   engineer,
		labeler:    labeler,
		trainer:    trainer,
		validator:  validator,
		hp:         hp,
		splitRatio: valCfg.SplitRatio,
		registry:   registry,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock for tests.
func (uc *TrainingUseCase) WithClock(now func() time.Time) *TrainingUseCase {
	uc.now = now
	return uc
}

// Train executes one run. Validation rejection is reported in the result,
// not as an error; errors mean the run itself could not complete.
func (uc *TrainingUseCase) Train(ctx context.Context, p TrainParams) (*models.TrainingResult, error) {
	start := uc.now()
	if len(p.Symbols) == 0 {
		p.Symbols = uc.cfg.Symbols
	}
	if p.LookbackDays <= 0 {
		p.LookbackDays = uc.cfg.LookbackDays
	}
	if p.Timeframe == "" {
		p.Timeframe = uc.cfg.Timeframe
	}
	p.Timeframe = domrepo.NormalizeTimeframe(string(p.Timeframe))
	if len(p.Symbols) == 0 {
		return nil, fmt.Errorf("train: no symbols configured")
	}

	result := &models.TrainingResult{Symbols: p.Symbols}
	examples, err := uc.collectExamples(ctx, p)
	if err != nil {
		uc.metrics.RecordTrainingRun("failed")
		return nil, err
	}
	result.Examples = len(examples)
	if len(examples) < uc.cfg.MinExamples {
		uc.metrics.RecordTrainingRun("insufficient_data")
		result.Reason = fmt.Sprintf("need at least %d examples, got %d", uc.cfg.MinExamples, len(examples))
		return result, nil
	}

	// pooled examples must stay in time order across symbols
	sort.SliceStable(examples, func(i, j int) bool {
		return examples[i].Bucket.Before(examples[j].Bucket)
	})

	rawX := make([][]float64, len(examples))
	y := make([]int, len(examples))
	for i, ex := range examples {
		rawX[i] = ex.Features
		if ex.Label.IsReversal {
			y[i] = 1
		}
	}
	if !bothClassesPresent(y) {
		uc.metrics.RecordTrainingRun("insufficient_data")
		result.Reason = "label set contains a single class"
		return result, nil
	}
	w := training.SampleWeights(y)

	// scaler is fit on the training partition only, then applied everywhere
	rawTrainX, trainY, trainW, rawValX, valY, _ := validation.Split(rawX, y, w, uc.splitRatio)
	scaler := &training.RobustScaler{}
	if err := scaler.Fit(rawTrainX); err != nil {
		uc.metrics.RecordTrainingRun("failed")
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	trainX := scaler.Transform(rawTrainX)
	valX := scaler.Transform(rawValX)
	fullX := scaler.Transform(rawX)

	candidates, err := uc.trainer.Fit(ctx, trainX, trainY, trainW, valX, valY)
	if err != nil {
		uc.metrics.RecordTrainingRun("failed")
		return nil, fmt.Errorf("fit candidates: %w", err)
	}

	valRes, err := uc.validator.Validate(ctx, candidates, fullX, y, w)
	if err != nil {
		var rej *validation.RejectionError
		if errors.As(err, &rej) {
			uc.metrics.RecordTrainingRun("rejected")
			result.Reason = rej.Error()
			result.Candidates = rej.Candidates
			result.DurationSeconds = uc.now().Sub(start).Seconds()
			uc.log.Warn("training run rejected", applogger.String("reason", result.Reason))
			return result, nil
		}
		uc.metrics.RecordTrainingRun("failed")
		return nil, fmt.Errorf("validate: %w", err)
	}

	artifacts, err := training.EncodeCandidates(candidates)
	if err != nil {
		uc.metrics.RecordTrainingRun("failed")
		return nil, err
	}

	bundle := &models.ModelBundle{
		CreatedAt:       uc.now(),
		FeatureSchema:   features.Schema(),
		Symbols:         p.Symbols,
		Hyperparameters: uc.hp.Map(),
		Scaler:          scaler.Params(),
		SelectedModel:   valRes.Selected.Name,
		Artifacts:       artifacts,
		Metrics: models.BundleMetrics{
			Selected:   valRes.Selected.Name,
			Candidates: valRes.Candidates,
			TrainRows:  valRes.TrainRows,
			ValRows:    valRes.ValRows,
		},
		Reference: drift.BuildReference(rawTrainX, features.Schema(), uc.cfg.ReferenceBins),
	}
	version, err := uc.registry.Save(ctx, bundle)
	if err != nil {
		uc.metrics.RecordTrainingRun("failed")
		return nil, fmt.Errorf("save bundle: %w", err)
	}

	result.Accepted = true
	result.VersionID = version
	result.SelectedModel = valRes.Selected.Name
	result.Candidates = valRes.Candidates
	result.TrainRows = valRes.TrainRows
	result.ValRows = valRes.ValRows

	if p.Promote || uc.cfg.AutoPromote {
		if err := uc.registry.Promote(ctx, version); err != nil {
			return nil, fmt.Errorf("promote %s: %w", version, err)
		}
		result.Promoted = true
		uc.metrics.RecordPromotion(version)
	}

	if uc.cfg.KeepDays > 0 && uc.cfg.KeepMax > 0 {
		// retention is best effort; a failed prune never fails the run
		if removed, err := uc.registry.Prune(ctx, uc.cfg.KeepDays, uc.cfg.KeepMax); err != nil {
			uc.log.Warn("registry prune failed", applogger.Error(err))
		} else if removed > 0 {
			uc.log.Info("old versions pruned", applogger.Int("removed", removed))
		}
	}

	result.DurationSeconds = uc.now().Sub(start).Seconds()
	uc.metrics.RecordTrainingRun("accepted")
	uc.metrics.RecordTrainingDuration(result.DurationSeconds)
	uc.log.Info("training run complete",
		applogger.String("version", version),
		applogger.String("selected", result.SelectedModel),
		applogger.Int("examples", result.Examples),
		applogger.Bool("promoted", result.Promoted),
	)
	return result, nil
}

// collectExamples walks every symbol's candle history and pairs feature
// vectors with reversal labels. Indices without enough lookback or enough
// future candles are skipped, matching the engineer and labeler contracts.
func (uc *TrainingUseCase) collectExamples(ctx context.Context, p TrainParams) ([]models.TrainingExample, error) {
	to := uc.now().UTC()
	from := to.AddDate(0, 0, -p.LookbackDays)
	from, to = util.AlignFromTo(from, to, string(p.Timeframe))

	var examples []models.TrainingExample
	for _, symbol := range p.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := uc.candles.GetCandles(ctx, symbol, from, to, p.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("candles for %s: %w", symbol, err)
		}
		kept := 0
		vecs, offset := uc.engineer.ComputeAll(candles)
		for k, vec := range vecs {
			i := offset + k
			label, ok := uc.labeler.Label(candles, i)
			if !ok {
				continue
			}
			examples = append(examples, models.TrainingExample{
				Bucket:   candles[i].Bucket,
				Symbol:   symbol,
				Features: vec,
				Label:    label,
			})
			kept++
		}
		uc.log.Info("symbol examples collected",
			applogger.String("symbol", symbol),
			applogger.Int("candles", len(candles)),
			applogger.Int("examples", kept),
		)
	}
	return examples, nil
}

func bothClassesPresent(y []int) bool {
	var pos int
	for _, v := range y {
		pos += v
	}
	return pos > 0 && pos < len(y)
}
