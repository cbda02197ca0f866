package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/repository"
	"RevSight/pkg/logger"
)

const (
	versionLayout = "20060102_150405"
	currentFile   = "CURRENT"
	configFile    = "config.json"
	metricsFile   = "metrics.json"
	referenceFile = "reference.json"
	reportFile    = "TRAINING_REPORT.md"
)

var versionPattern = regexp.MustCompile(`^\d{8}_\d{6}(_\d+)?$`)

// bundleConfig is the config.json payload; artifacts, metrics and the
// reference distribution live in their own files.
type bundleConfig struct {
	VersionID       string              `json:"version_id"`
	CreatedAt       time.Time           `json:"created_at"`
	FeatureSchema   []string            `json:"feature_schema"`
	Symbols         []string            `json:"symbols"`
	Hyperparameters map[string]float64  `json:"hyperparameters"`
	Scaler          models.ScalerParams `json:"scaler"`
	SelectedModel   string              `json:"selected_model"`
}

// FSModelRegistry stores immutable model bundles as per-version directories
// under a root path. A bundle becomes visible in a single rename; the CURRENT
// pointer file moves the same way, so readers never observe partial state.
type FSModelRegistry struct {
	root string
	log  *logger.Logger
	now  func() time.Time

	mu sync.Mutex // serializes Save version allocation, Promote and Prune
}

func NewFSModelRegistry(root string, log *logger.Logger) (*FSModelRegistry, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create registry root: %w", err)
	}
	return &FSModelRegistry{root: root, log: log, now: time.Now}, nil
}

// WithClock replaces the wall clock for tests.
func (r *FSModelRegistry) WithClock(now func() time.Time) *FSModelRegistry {
	r.now = now
	return r
}

var _ repository.ModelRegistry = (*FSModelRegistry)(nil)

// Save writes the bundle into a hidden staging directory and renames it into
// place. On any error the staging directory is removed; a partial bundle is
// never listed or loadable.
func (r *FSModelRegistry) Save(ctx context.Context, bundle *models.ModelBundle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	created := bundle.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	created = created.UTC()

	r.mu.Lock()
	version, staging, err := r.allocateVersion(created)
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	stored := *bundle
	stored.VersionID = version
	stored.CreatedAt = created

	if err := r.writeBundle(staging, &stored); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := ctx.Err(); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := os.Rename(staging, filepath.Join(r.root, version)); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("publish bundle %s: %w", version, err)
	}
	bundle.VersionID = version
	bundle.CreatedAt = created
	r.log.Info("model bundle saved",
		logger.String("version", version),
		logger.String("selected", stored.SelectedModel),
	)
	return version, nil
}

// allocateVersion derives the timestamped version id, suffixing a counter
// when two saves land in the same second. The id is claimed by creating its
// staging directory, so an in-flight save that has not published yet still
// blocks the id for concurrent callers. Runs under mu.
func (r *FSModelRegistry) allocateVersion(created time.Time) (string, string, error) {
	base := created.Format(versionLayout)
	version := base
	for n := 2; ; n++ {
		staging := filepath.Join(r.root, ".staging-"+version)
		if _, err := os.Stat(filepath.Join(r.root, version)); os.IsNotExist(err) {
			err := os.Mkdir(staging, 0o755)
			if err == nil {
				return version, staging, nil
			}
			if !os.IsExist(err) {
				return "", "", fmt.Errorf("reserve version %s: %w", version, err)
			}
		}
		version = fmt.Sprintf("%s_%d", base, n)
	}
}

func (r *FSModelRegistry) writeBundle(dir string, b *models.ModelBundle) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	cfg := bundleConfig{
		VersionID:       b.VersionID,
		CreatedAt:       b.CreatedAt,
		FeatureSchema:   b.FeatureSchema,
		Symbols:         b.Symbols,
		Hyperparameters: b.Hyperparameters,
		Scaler:          b.Scaler,
		SelectedModel:   b.SelectedModel,
	}
	if err := writeJSON(filepath.Join(dir, configFile), cfg); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, metricsFile), b.Metrics); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, referenceFile), b.Reference); err != nil {
		return err
	}
	for name, raw := range b.Artifacts {
		if err := os.WriteFile(filepath.Join(dir, modelFileName(name)), raw, 0o644); err != nil {
			return fmt.Errorf("write artifact %s: %w", name, err)
		}
	}
	report := renderTrainingReport(b)
	if err := os.WriteFile(filepath.Join(dir, reportFile), []byte(report), 0o644); err != nil {
		return fmt.Errorf("write training report: %w", err)
	}
	return nil
}

// Load resolves a version id or "current" into a full bundle.
func (r *FSModelRegistry) Load(ctx context.Context, version string) (*models.ModelBundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if version == repository.CurrentVersion {
		cur, err := r.Current(ctx)
		if err != nil {
			return nil, err
		}
		version = cur
	}
	dir := filepath.Join(r.root, version)
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("%s: %w", version, repository.ErrVersionNotFound)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", version, repository.ErrVersionNotFound)
	}

	var cfg bundleConfig
	if err := readJSON(filepath.Join(dir, configFile), &cfg); err != nil {
		return nil, err
	}
	b := &models.ModelBundle{
		VersionID:       cfg.VersionID,
		CreatedAt:       cfg.CreatedAt,
		FeatureSchema:   cfg.FeatureSchema,
		Symbols:         cfg.Symbols,
		Hyperparameters: cfg.Hyperparameters,
		Scaler:          cfg.Scaler,
		SelectedModel:   cfg.SelectedModel,
		Artifacts:       map[string]json.RawMessage{},
	}
	if err := readJSON(filepath.Join(dir, metricsFile), &b.Metrics); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, referenceFile), &b.Reference); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bundle dir: %w", err)
	}
	for _, e := range entries {
		name, ok := modelNameFromFile(e.Name())
		if !ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", e.Name(), err)
		}
		b.Artifacts[name] = raw
	}
	return b, nil
}

// Promote atomically repoints CURRENT at version. The pointer file is
// written aside and renamed, so a crash mid-promote leaves the old pointer.
func (r *FSModelRegistry) Promote(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !versionPattern.MatchString(version) {
		return fmt.Errorf("%s: %w", version, repository.ErrVersionNotFound)
	}
	if _, err := os.Stat(filepath.Join(r.root, version, configFile)); err != nil {
		return fmt.Errorf("%s: %w", version, repository.ErrVersionNotFound)
	}

	tmp := filepath.Join(r.root, currentFile+".tmp")
	if err := os.WriteFile(tmp, []byte(version+"\n"), 0o644); err != nil {
		return fmt.Errorf("stage current pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(r.root, currentFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move current pointer: %w", err)
	}
	r.log.Info("model promoted", logger.String("version", version))
	return nil
}

// Current returns the promoted version id.
func (r *FSModelRegistry) Current(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(r.root, currentFile))
	if os.IsNotExist(err) {
		return "", repository.ErrNoCurrentVersion
	}
	if err != nil {
		return "", fmt.Errorf("read current pointer: %w", err)
	}
	version := strings.TrimSpace(string(raw))
	if version == "" {
		return "", repository.ErrNoCurrentVersion
	}
	return version, nil
}

// ListVersions returns saved versions in ascending creation order. Staging
// directories are invisible.
func (r *FSModelRegistry) ListVersions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read registry root: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() && versionPattern.MatchString(e.Name()) {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// Prune removes versions older than keepDays, always keeping the promoted
// version and the keepMax most recent ones.
func (r *FSModelRegistry) Prune(ctx context.Context, keepDays, keepMax int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, err := r.ListVersions(ctx)
	if err != nil {
		return 0, err
	}
	current, err := r.Current(ctx)
	if err != nil && !errors.Is(err, repository.ErrNoCurrentVersion) {
		return 0, err
	}

	cutoff := r.now().UTC().AddDate(0, 0, -keepDays)
	protected := len(versions) - keepMax // everything at or past this index is recent enough
	removed := 0
	for i, v := range versions {
		if v == current || i >= protected {
			continue
		}
		ts, err := time.Parse(versionLayout, strings.SplitN(v, "_", 3)[0]+"_"+strings.SplitN(v, "_", 3)[1])
		if err != nil || !ts.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.root, v)); err != nil {
			return removed, fmt.Errorf("prune %s: %w", v, err)
		}
		removed++
	}
	if removed > 0 {
		r.log.Info("registry pruned", logger.Int("removed", removed))
	}
	return removed, nil
}

func modelFileName(name string) string {
	return "model_" + name + ".json"
}

func modelNameFromFile(file string) (string, bool) {
	if !strings.HasPrefix(file, "model_") || !strings.HasSuffix(file, ".json") {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(file, "model_"), ".json"), true
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
