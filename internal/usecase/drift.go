package usecase

import (
	"context"
	"time"

	"RevSight/internal/domain/models"
	domrepo "RevSight/internal/domain/repository"
	"RevSight/internal/services/drift"
	"RevSight/pkg/cache"
	applogger "RevSight/pkg/logger"
)

// DriftUseCase wraps the drift monitor with the audit trail: every computed
// report is appended to ClickHouse, published to Kafka, and cached so
// repeated reads of the same window skip recomputation.
type DriftUseCase struct {
	monitor   *drift.Monitor
	ilog      domrepo.InferenceLog
	publisher domrepo.ReportPublisher
	cache     cache.Service
	cacheTTL  time.Duration
	log       *applogger.Logger
}

func NewDriftUseCase(
	monitor *drift.Monitor,
	ilog domrepo.InferenceLog,
	publisher domrepo.ReportPublisher,
	cacheSvc cache.Service,
	log *applogger.Logger,
) *DriftUseCase {
	return &DriftUseCase{
		monitor:   monitor,
		ilog:      ilog,
		publisher: publisher,
		cache:     cacheSvc,
		cacheTTL:  5 * time.Minute,
		log:       log,
	}
}

var _ drift.Checker = (*DriftUseCase)(nil)

// Check computes (or serves from cache) the drift report for version over
// window, appending fresh reports to the audit trail.
func (uc *DriftUseCase) Check(ctx context.Context, version string, window models.DriftWindow) (*models.DriftReport, error) {
	key := cacheKey(version, window)
	if uc.cache != nil {
		var cached models.DriftReport
		if err := uc.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	report, err := uc.monitor.Compute(ctx, version, window)
	if err != nil {
		return nil, err
	}

	if err := uc.ilog.AppendDriftReport(ctx, report); err != nil {
		// the report itself is still valid; the audit write failure is logged
		uc.log.Error("drift report audit append failed", applogger.Error(err))
	}
	if uc.publisher != nil {
		if err := uc.publisher.PublishDriftReport(ctx, report); err != nil {
			uc.log.Error("drift report publish failed", applogger.Error(err))
		}
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, key, report, uc.cacheTTL); err != nil {
			uc.log.Warn("drift report cache set failed", applogger.Error(err))
		}
	}
	return report, nil
}

// CheckCurrent resolves "current" at call time, so a check started just
// before a promotion simply reports on the previous version.
func (uc *DriftUseCase) CheckCurrent(ctx context.Context, window models.DriftWindow) (*models.DriftReport, error) {
	return uc.Check(ctx, domrepo.CurrentVersion, window)
}

func cacheKey(version string, w models.DriftWindow) string {
	return cache.GenerateKeyWithParams("drift", version, w.From.Unix(), w.To.Unix())
}
