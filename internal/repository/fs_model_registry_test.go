package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/repository"
	"RevSight/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testRegistry(t *testing.T) *FSModelRegistry {
	t.Helper()
	reg, err := NewFSModelRegistry(t.TempDir(), testLogger(t))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func sampleBundle(created time.Time) *models.ModelBundle {
	return &models.ModelBundle{
		CreatedAt:     created,
		FeatureSchema: []string{"f0", "f1"},
		Symbols:       []string{"BTCUSDT"},
		Hyperparameters: map[string]float64{
			"gb_rounds": 100,
		},
		Scaler: models.ScalerParams{
			Medians: []float64{0.1, 0.2},
			Scales:  []float64{1.5, 2.5},
		},
		SelectedModel: "voting_ensemble",
		Artifacts: map[string]json.RawMessage{
			"gradient_boosting": json.RawMessage(`{"kind":"gradient_ensemble","model":{"init_score":0.1}}`),
			"voting_ensemble":   json.RawMessage(`{"kind":"voting_ensemble","members":["gradient_boosting"]}`),
		},
		Metrics: models.BundleMetrics{
			Selected: "voting_ensemble",
			Candidates: []models.CandidateReport{{
				Name:       "voting_ensemble",
				Kind:       models.KindVoting,
				Validation: models.EvalMetrics{Accuracy: 0.8, F1: 0.75},
				Overfit:    models.OverfitReport{Score: 12},
				Selected:   true,
			}},
			TrainRows: 800,
			ValRows:   200,
		},
		Reference: models.ReferenceDistribution{
			SampleCount: 1000,
			Features: []models.FeatureHistogram{{
				Feature:  "f0",
				BinEdges: []float64{0, 0.5, 1},
				Freqs:    []float64{0.4, 0.6},
			}},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	in := sampleBundle(created)
	version, err := reg.Save(ctx, in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if version != "20260801_120000" {
		t.Fatalf("version = %q", version)
	}

	out, err := reg.Load(ctx, version)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.VersionID != version || !out.CreatedAt.Equal(created) {
		t.Fatalf("identity fields wrong: %s %v", out.VersionID, out.CreatedAt)
	}
	if !reflect.DeepEqual(out.FeatureSchema, in.FeatureSchema) ||
		!reflect.DeepEqual(out.Symbols, in.Symbols) ||
		!reflect.DeepEqual(out.Scaler, in.Scaler) ||
		!reflect.DeepEqual(out.Hyperparameters, in.Hyperparameters) {
		t.Fatalf("config fields did not round-trip")
	}
	if !reflect.DeepEqual(out.Metrics, in.Metrics) {
		t.Fatalf("metrics did not round-trip:\n%+v\n%+v", out.Metrics, in.Metrics)
	}
	if !reflect.DeepEqual(out.Reference, in.Reference) {
		t.Fatalf("reference did not round-trip")
	}
	if len(out.Artifacts) != 2 {
		t.Fatalf("artifacts = %v", out.Artifacts)
	}
	for name, raw := range in.Artifacts {
		var want, got interface{}
		if err := json.Unmarshal(raw, &want); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := json.Unmarshal(out.Artifacts[name], &got); err != nil {
			t.Fatalf("unmarshal loaded %s: %v", name, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("artifact %s changed", name)
		}
	}

	report, err := os.ReadFile(filepath.Join(reg.root, version, reportFile))
	if err != nil {
		t.Fatalf("report missing: %v", err)
	}
	if len(report) == 0 {
		t.Fatalf("empty training report")
	}
}

func TestSaveSameSecondGetsDistinctVersions(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a, err := reg.Save(ctx, sampleBundle(created))
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	b, err := reg.Save(ctx, sampleBundle(created))
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if a == b {
		t.Fatalf("duplicate version ids: %s", a)
	}
}

func TestSaveReservesAgainstInFlightSave(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// an unpublished save holds the base id through its staging directory
	if err := os.Mkdir(filepath.Join(reg.root, ".staging-20260801_120000"), 0o755); err != nil {
		t.Fatalf("stage: %v", err)
	}
	v, err := reg.Save(ctx, sampleBundle(created))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if v != "20260801_120000_2" {
		t.Fatalf("in-flight id reused: %s", v)
	}
}

func TestConcurrentSameSecondSavesGetDistinctVersions(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	const savers = 4
	versions := make([]string, savers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < savers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			<-start
			v, err := reg.Save(ctx, sampleBundle(created))
			if err != nil {
				t.Errorf("save %d: %v", slot, err)
				return
			}
			versions[slot] = v
		}(i)
	}
	close(start)
	wg.Wait()

	seen := map[string]bool{}
	for _, v := range versions {
		if v == "" {
			t.Fatalf("missing version in %v", versions)
		}
		if seen[v] {
			t.Fatalf("duplicate version id %s in %v", v, versions)
		}
		seen[v] = true
		b, err := reg.Load(ctx, v)
		if err != nil {
			t.Fatalf("load %s: %v", v, err)
		}
		if b.VersionID != v {
			t.Fatalf("bundle %s carries id %s", v, b.VersionID)
		}
	}
}

func TestLoadUnknownVersion(t *testing.T) {
	reg := testRegistry(t)
	if _, err := reg.Load(context.Background(), "20990101_000000"); !errors.Is(err, repository.ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	if _, err := reg.Load(context.Background(), "../escape"); !errors.Is(err, repository.ErrVersionNotFound) {
		t.Fatalf("path escape must be rejected, got %v", err)
	}
}

func TestPromoteAndCurrent(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	if _, err := reg.Current(ctx); !errors.Is(err, repository.ErrNoCurrentVersion) {
		t.Fatalf("expected ErrNoCurrentVersion, got %v", err)
	}
	if _, err := reg.Load(ctx, repository.CurrentVersion); !errors.Is(err, repository.ErrNoCurrentVersion) {
		t.Fatalf("load current before promote: %v", err)
	}

	v1, err := reg.Save(ctx, sampleBundle(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := reg.Promote(ctx, v1); err != nil {
		t.Fatalf("promote: %v", err)
	}
	cur, err := reg.Current(ctx)
	if err != nil || cur != v1 {
		t.Fatalf("current = %q, %v", cur, err)
	}
	loaded, err := reg.Load(ctx, repository.CurrentVersion)
	if err != nil || loaded.VersionID != v1 {
		t.Fatalf("load current: %v", err)
	}

	// promoting a missing version must leave the old pointer intact
	if err := reg.Promote(ctx, "20990101_000000"); !errors.Is(err, repository.ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
	cur, err = reg.Current(ctx)
	if err != nil || cur != v1 {
		t.Fatalf("pointer moved on failed promote: %q, %v", cur, err)
	}
}

func TestConcurrentPromotions(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	versions := make([]string, 4)
	for i := range versions {
		v, err := reg.Save(ctx, sampleBundle(time.Date(2026, 8, 1, 12, 0, i, 0, time.UTC)))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		versions[i] = v
	}

	var wg sync.WaitGroup
	for _, v := range versions {
		wg.Add(1)
		go func(version string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := reg.Promote(ctx, version); err != nil {
					t.Errorf("promote %s: %v", version, err)
					return
				}
			}
		}(v)
	}
	wg.Wait()

	cur, err := reg.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	found := false
	for _, v := range versions {
		if v == cur {
			found = true
		}
	}
	if !found {
		t.Fatalf("current points at unknown version %q", cur)
	}
	if _, err := reg.Load(ctx, repository.CurrentVersion); err != nil {
		t.Fatalf("current bundle unreadable: %v", err)
	}
}

func TestListVersionsOrderedAndHidesStaging(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	for _, ts := range []time.Time{
		time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	} {
		if _, err := reg.Save(ctx, sampleBundle(ts)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(reg.root, ".staging-junk"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := reg.ListVersions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"20260801_000000", "20260802_000000", "20260803_000000"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("versions = %v", got)
	}
}

func TestPruneKeepsCurrentAndRecent(t *testing.T) {
	reg := testRegistry(t)
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	reg.WithClock(func() time.Time { return now })
	ctx := context.Background()

	var versions []string
	for day := 1; day <= 6; day++ {
		v, err := reg.Save(ctx, sampleBundle(time.Date(2026, 7, day, 0, 0, 0, 0, time.UTC)))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		versions = append(versions, v)
	}
	// promote the oldest: it must survive any prune
	if err := reg.Promote(ctx, versions[0]); err != nil {
		t.Fatalf("promote: %v", err)
	}

	removed, err := reg.Prune(ctx, 30, 2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	// all six are older than 30 days; survivors are the promoted one + 2 newest
	if removed != 3 {
		t.Fatalf("removed = %d", removed)
	}
	left, err := reg.ListVersions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{versions[0], versions[4], versions[5]}
	if !reflect.DeepEqual(left, want) {
		t.Fatalf("survivors = %v, want %v", left, want)
	}
}

func TestPruneNothingRecent(t *testing.T) {
	reg := testRegistry(t)
	now := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	reg.WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		created := now.Add(-time.Duration(i+1) * 24 * time.Hour)
		if _, err := reg.Save(ctx, sampleBundle(created)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	removed, err := reg.Prune(ctx, 30, 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 0 {
		t.Fatalf("recent versions pruned: %d", removed)
	}
}

func TestSaveCancelledContextLeavesNoBundle(t *testing.T) {
	reg := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := reg.Save(ctx, sampleBundle(time.Now())); err == nil {
		t.Fatalf("expected cancellation error")
	}
	versions, err := reg.ListVersions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("partial bundle registered: %v", versions)
	}
	entries, _ := os.ReadDir(reg.root)
	for _, e := range entries {
		if e.Name() != currentFile {
			t.Fatalf("leftover entry %s", e.Name())
		}
	}
}

func TestVersionPatternRejectsJunk(t *testing.T) {
	for _, bad := range []string{"current", "latest", "2026", "20260801-120000", ".staging-x"} {
		if versionPattern.MatchString(bad) {
			t.Fatalf("%q matched version pattern", bad)
		}
	}
	for _, good := range []string{"20260801_120000", "20260801_120000_2"} {
		if !versionPattern.MatchString(good) {
			t.Fatalf("%q rejected", good)
		}
	}
}
