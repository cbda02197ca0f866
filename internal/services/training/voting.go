package training

import (
	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
)

// VotingEnsemble soft-votes over its members by averaging probabilities.
type VotingEnsemble struct {
	Members []service.Scorer
}

func (v *VotingEnsemble) Kind() models.ModelKind { return models.KindVoting }
func (v *VotingEnsemble) Name() string           { return "voting_ensemble" }

func (v *VotingEnsemble) PredictProba(x []float64) float64 {
	if len(v.Members) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, m := range v.Members {
		sum += m.PredictProba(x)
	}
	return sum / float64(len(v.Members))
}

// MemberNames lists the members for the persisted artifact; the voting model
// itself is reconstructed from the member artifacts on load.
func (v *VotingEnsemble) MemberNames() []string {
	names := make([]string, len(v.Members))
	for i, m := range v.Members {
		names[i] = m.Name()
	}
	return names
}
