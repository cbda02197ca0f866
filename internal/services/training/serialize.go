package training

import (
	"encoding/json"
	"fmt"

	"RevSight/internal/domain/models"
	"RevSight/internal/domain/service"
)

// artifact is the persisted envelope for a fitted model: a kind tag plus the
// kind-specific payload.
type artifact struct {
	Kind  models.ModelKind `json:"kind"`
	Model json.RawMessage  `json:"model,omitempty"`
	// voting only
	Members []string `json:"members,omitempty"`
}

// EncodeScorer serializes a fitted model into its artifact envelope.
func EncodeScorer(s service.Scorer) (json.RawMessage, error) {
	env := artifact{Kind: s.Kind()}
	switch m := s.(type) {
	case *VotingEnsemble:
		env.Members = m.MemberNames()
	default:
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.Name(), err)
		}
		env.Model = raw
	}
	return json.Marshal(env)
}

// DecodeScorer rebuilds a fitted model from its artifact. Voting artifacts
// reference their members by name and are resolved against the full artifact
// map, so members decode once and are shared.
func DecodeScorer(name string, artifacts map[string]json.RawMessage) (service.Scorer, error) {
	raw, ok := artifacts[name]
	if !ok {
		return nil, fmt.Errorf("decode model: artifact %q missing", name)
	}
	var env artifact
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	switch env.Kind {
	case models.KindGradient:
		m := &GradientEnsemble{}
		if err := json.Unmarshal(env.Model, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	case models.KindBagged:
		m := &BaggedEnsemble{}
		if err := json.Unmarshal(env.Model, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	case models.KindBoostedStumps:
		m := &BoostedStumps{}
		if err := json.Unmarshal(env.Model, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	case models.KindLinear:
		m := &LinearBaseline{}
		if err := json.Unmarshal(env.Model, m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		return m, nil
	case models.KindVoting:
		v := &VotingEnsemble{}
		for _, member := range env.Members {
			if member == name {
				return nil, fmt.Errorf("decode %s: self-referencing member", name)
			}
			m, err := DecodeScorer(member, artifacts)
			if err != nil {
				return nil, err
			}
			v.Members = append(v.Members, m)
		}
		if len(v.Members) == 0 {
			return nil, fmt.Errorf("decode %s: voting ensemble with no members", name)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("decode %s: unknown model kind %q", name, env.Kind)
	}
}

// EncodeCandidates serializes every fitted candidate keyed by model name.
func EncodeCandidates(cands []service.Candidate) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(cands))
	for _, c := range cands {
		raw, err := EncodeScorer(c.Scorer)
		if err != nil {
			return nil, err
		}
		out[c.Name] = raw
	}
	return out, nil
}
