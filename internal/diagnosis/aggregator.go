package diagnosis

import "fmt"

// Role weights for confidence merging. Later, more senior opinions carry
// more weight than the first contact.
const (
	weightPrimary    = 1.0
	weightSpecialist = 1.0
	weightSenior     = 1.5
)

// Aggregator folds per-turn assessments into the running candidate map and
// emits one scalar trend point per committed turn. Given identical input
// sequences its output is bit-for-bit reproducible.
type Aggregator struct {
	// accumulated merge weight per canonical candidate name
	weights map[string]float64
	// next expected turn index, for density checking
	nextTurn int
}

func NewAggregator() *Aggregator {
	return &Aggregator{weights: make(map[string]float64)}
}

func roleWeight(r AgentRole) float64 {
	switch r {
	case RoleSeniorAttending:
		return weightSenior
	case RoleSpecialist:
		return weightSpecialist
	default:
		return weightPrimary
	}
}

// Update merges the assessment's candidates into the running map and
// returns the merged map plus the trend point: the confidence of the
// currently-leading candidate after the merge.
func (g *Aggregator) Update(current map[string]DiagnosisCandidate, a Assessment) (map[string]DiagnosisCandidate, float64, error) {
	if a.TurnIndex != g.nextTurn {
		return nil, 0, &InvariantError{Detail: fmt.Sprintf("turn index %d, expected %d", a.TurnIndex, g.nextTurn)}
	}
	if len(a.Candidates) == 0 {
		return nil, 0, &InvariantError{Detail: fmt.Sprintf("turn %d carries no candidates", a.TurnIndex)}
	}

	merged := make(map[string]DiagnosisCandidate, len(current)+len(a.Candidates))
	for k, v := range current {
		merged[k] = v
	}

	w := roleWeight(a.Role)
	for _, cand := range a.Candidates {
		if cand.Confidence < 0 || cand.Confidence > 1 {
			return nil, 0, &InvariantError{Detail: fmt.Sprintf("confidence %.4f out of range for %q", cand.Confidence, cand.Name)}
		}
		key := canonicalName(cand.Name)
		prev, ok := merged[key]
		if !ok {
			g.weights[key] = w
			c := cand
			c.Evidence = append([]string(nil), cand.Evidence...)
			merged[key] = c
			continue
		}

		prevW := g.weights[key]
		prev.Confidence = (prev.Confidence*prevW + cand.Confidence*w) / (prevW + w)
		g.weights[key] = prevW + w
		if prev.ICD10Code == "" {
			prev.ICD10Code = cand.ICD10Code
		}
		prev.Evidence = mergeEvidence(prev.Evidence, cand.Evidence)
		merged[key] = prev
	}

	g.nextTurn++

	lead, ok := Leading(merged)
	if !ok {
		return nil, 0, &InvariantError{Detail: "no leading candidate after merge"}
	}
	return merged, lead.Confidence, nil
}

// Leading returns the candidate with the highest merged confidence. Ties
// break on name so the result is deterministic.
func Leading(candidates map[string]DiagnosisCandidate) (DiagnosisCandidate, bool) {
	var best DiagnosisCandidate
	found := false
	for _, c := range candidates {
		if !found || c.Confidence > best.Confidence ||
			(c.Confidence == best.Confidence && c.Name < best.Name) {
			best = c
			found = true
		}
	}
	return best, found
}

// Ranked returns all merged candidates sorted by descending confidence.
func Ranked(candidates map[string]DiagnosisCandidate) []DiagnosisCandidate {
	out := make([]DiagnosisCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c)
	}
	sortCandidates(out)
	return out
}

func mergeEvidence(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, e := range incoming {
		if !seen[e] {
			existing = append(existing, e)
			seen[e] = true
		}
	}
	return existing
}
