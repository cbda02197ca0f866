package repository

import (
	"fmt"
	"sort"
	"strings"

	"RevSight/internal/domain/models"
)

// renderTrainingReport produces the human-readable TRAINING_REPORT.md stored
// beside every bundle.
func renderTrainingReport(b *models.ModelBundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Training Report %s\n\n", b.VersionID)
	fmt.Fprintf(&sb, "- Created: %s\n", b.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "- Symbols: %s\n", strings.Join(b.Symbols, ", "))
	fmt.Fprintf(&sb, "- Features: %d\n", len(b.FeatureSchema))
	fmt.Fprintf(&sb, "- Training rows: %d, validation rows: %d\n", b.Metrics.TrainRows, b.Metrics.ValRows)
	fmt.Fprintf(&sb, "- Selected model: **%s**\n\n", b.SelectedModel)

	sb.WriteString("## Candidates\n\n")
	sb.WriteString("| Model | Val Acc | Val F1 | Train Acc | CV Mean | Overfit | Selected |\n")
	sb.WriteString("|-------|---------|--------|-----------|---------|---------|----------|\n")
	for _, c := range b.Metrics.Candidates {
		mark := ""
		if c.Selected {
			mark = "yes"
		}
		fmt.Fprintf(&sb, "| %s | %.4f | %.4f | %.4f | %.4f | %.1f | %s |\n",
			c.Name, c.Validation.Accuracy, c.Validation.F1, c.Train.Accuracy,
			c.CrossVal.Mean, c.Overfit.Score, mark)
	}

	sb.WriteString("\n## Overfit breakdown (selected)\n\n")
	for _, c := range b.Metrics.Candidates {
		if !c.Selected {
			continue
		}
		fmt.Fprintf(&sb, "- Score: %.1f / 100\n", c.Overfit.Score)
		fmt.Fprintf(&sb, "- Train/val gap: %.1f\n", c.Overfit.GapComponent)
		fmt.Fprintf(&sb, "- Loss trend: %.1f\n", c.Overfit.LossTrend)
		fmt.Fprintf(&sb, "- Fold variance: %.1f\n", c.Overfit.FoldVariance)
		fmt.Fprintf(&sb, "- Early-stop signal: %.1f\n", c.Overfit.EarlyStopSignal)
	}

	sb.WriteString("\n## Hyperparameters\n\n")
	keys := make([]string, 0, len(b.Hyperparameters))
	for k := range b.Hyperparameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %g\n", k, b.Hyperparameters[k])
	}
	return sb.String()
}
