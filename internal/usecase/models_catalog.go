package usecase

import (
	"context"
	"errors"
	"fmt"

	"RevSight/internal/domain/models"
	domrepo "RevSight/internal/domain/repository"
	applogger "RevSight/pkg/logger"
)

// ModelCatalogUseCase serves read and promote operations over the registry.
type ModelCatalogUseCase struct {
	registry domrepo.ModelRegistry
	metrics  domrepo.Metrics
	log      *applogger.Logger
}

func NewModelCatalogUseCase(registry domrepo.ModelRegistry, metrics domrepo.Metrics, log *applogger.Logger) *ModelCatalogUseCase {
	return &ModelCatalogUseCase{registry: registry, metrics: metrics, log: log}
}

// List summarizes all stored versions in ascending creation order.
func (uc *ModelCatalogUseCase) List(ctx context.Context, limit int) ([]models.VersionSummary, error) {
	versions, err := uc.registry.ListVersions(ctx)
	if err != nil {
		return nil, err
	}
	current, err := uc.registry.Current(ctx)
	if err != nil && !errors.Is(err, domrepo.ErrNoCurrentVersion) {
		return nil, err
	}
	if limit > 0 && len(versions) > limit {
		versions = versions[len(versions)-limit:]
	}

	out := make([]models.VersionSummary, 0, len(versions))
	for _, v := range versions {
		bundle, err := uc.registry.Load(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", v, err)
		}
		out = append(out, summarize(bundle, current))
	}
	return out, nil
}

// Get returns the summary for one version (or "current").
func (uc *ModelCatalogUseCase) Get(ctx context.Context, version string) (*models.VersionSummary, error) {
	bundle, err := uc.registry.Load(ctx, version)
	if err != nil {
		return nil, err
	}
	current, err := uc.registry.Current(ctx)
	if err != nil && !errors.Is(err, domrepo.ErrNoCurrentVersion) {
		return nil, err
	}
	s := summarize(bundle, current)
	return &s, nil
}

// Promote moves the current pointer.
func (uc *ModelCatalogUseCase) Promote(ctx context.Context, version string) error {
	if err := uc.registry.Promote(ctx, version); err != nil {
		return err
	}
	uc.metrics.RecordPromotion(version)
	return nil
}

// Compare contrasts two stored versions on their validation metrics.
func (uc *ModelCatalogUseCase) Compare(ctx context.Context, versionA, versionB string) (*models.ModelComparison, error) {
	a, err := uc.registry.Load(ctx, versionA)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", versionA, err)
	}
	b, err := uc.registry.Load(ctx, versionB)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", versionB, err)
	}
	current, err := uc.registry.Current(ctx)
	if err != nil && !errors.Is(err, domrepo.ErrNoCurrentVersion) {
		return nil, err
	}

	cmp := &models.ModelComparison{
		A: summarize(a, current),
		B: summarize(b, current),
	}
	cmp.AccuracyDelta = cmp.B.Validation.Accuracy - cmp.A.Validation.Accuracy
	cmp.F1Delta = cmp.B.Validation.F1 - cmp.A.Validation.F1
	cmp.OverfitDelta = cmp.B.OverfitScore - cmp.A.OverfitScore
	if cmp.F1Delta >= 0 {
		cmp.Preferred = cmp.B.VersionID
	} else {
		cmp.Preferred = cmp.A.VersionID
	}
	return cmp, nil
}

func summarize(b *models.ModelBundle, current string) models.VersionSummary {
	s := models.VersionSummary{
		VersionID:     b.VersionID,
		CreatedAt:     b.CreatedAt,
		SelectedModel: b.SelectedModel,
		Symbols:       b.Symbols,
		Current:       b.VersionID == current,
	}
	for _, c := range b.Metrics.Candidates {
		if c.Name == b.SelectedModel {
			s.Validation = c.Validation
			s.OverfitScore = c.Overfit.Score
		}
	}
	return s
}
