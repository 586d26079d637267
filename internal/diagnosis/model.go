package diagnosis

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"consilium/internal/caselib"
)

// Phase is the orchestrator's position in the consultation protocol.
type Phase string

const (
	PhaseInit              Phase = "init"
	PhasePrimaryAssessment Phase = "primary_assessment"
	PhaseSpecialistConsult Phase = "specialist_consult"
	PhaseSeniorReview      Phase = "senior_review"
	PhaseConsensusCheck    Phase = "consensus_check"
	PhaseComplete          Phase = "complete"
	PhaseEscalated         Phase = "escalated"
)

// Terminal reports whether no further turns can occur in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseEscalated
}

// phaseOrder gives each phase its position within one discussion round.
// Escalation rounds re-enter specialist_consult with a higher round
// counter, so (round, phaseOrder) is strictly increasing over a session.
func phaseOrder(p Phase) int {
	switch p {
	case PhaseInit:
		return 0
	case PhasePrimaryAssessment:
		return 1
	case PhaseSpecialistConsult:
		return 2
	case PhaseSeniorReview:
		return 3
	case PhaseConsensusCheck:
		return 4
	case PhaseComplete, PhaseEscalated:
		return 5
	default:
		return -1
	}
}

// AgentRole identifies one member of the diagnostic panel. The panel is a
// fixed escalation ladder; there are no dynamic roles.
type AgentRole string

const (
	RolePrimaryCare     AgentRole = "primary_care"
	RoleSpecialist      AgentRole = "specialist"
	RoleSeniorAttending AgentRole = "senior_attending"
)

// DiagnosisCandidate is one proposed condition with its supporting data.
type DiagnosisCandidate struct {
	Name       string   `json:"name"`
	ICD10Code  string   `json:"icd10_code,omitempty"`
	Confidence float64  `json:"confidence"` // always in [0,1]
	Evidence   []string `json:"evidence,omitempty"`
}

// Assessment is the structured output of one agent turn. It is immutable
// once committed to the transcript.
type Assessment struct {
	Role             AgentRole            `json:"role"`
	Specialty        string               `json:"specialty,omitempty"`
	Candidates       []DiagnosisCandidate `json:"candidates"` // sorted by descending confidence
	Reasoning        string               `json:"reasoning"`
	RecommendedTests []string             `json:"recommended_tests,omitempty"`
	RedFlags         []string             `json:"red_flags,omitempty"`
	Urgent           bool                 `json:"urgent"`
	TurnIndex        int                  `json:"turn_index"`
	Timestamp        time.Time            `json:"timestamp"`
}

// Top returns the highest-confidence candidate of this assessment.
func (a Assessment) Top() (DiagnosisCandidate, bool) {
	if len(a.Candidates) == 0 {
		return DiagnosisCandidate{}, false
	}
	return a.Candidates[0], true
}

// ConversationTurn wraps one assessment together with any cross-agent
// dialogue attached to it. The transcript is append-only.
type ConversationTurn struct {
	Index      int        `json:"index"`
	Assessment Assessment `json:"assessment"`
	Dialogue   []string   `json:"dialogue,omitempty"`
}

// TerminationReason records why a session reached a terminal phase.
type TerminationReason string

const (
	ReasonConsensus    TerminationReason = "consensus"
	ReasonRoundLimit   TerminationReason = "round_limit"
	ReasonAgentFailure TerminationReason = "agent_failure"
	ReasonCancelled    TerminationReason = "cancelled"
)

// SessionState is the mutable aggregate owned exclusively by the
// orchestrator for the lifetime of one diagnostic run.
type SessionState struct {
	ID                uuid.UUID                     `json:"id"`
	Case              caselib.Case                  `json:"case"`
	Phase             Phase                         `json:"phase"`
	Turns             []ConversationTurn            `json:"turns"`
	Trend             []float64                     `json:"trend"` // one point per committed turn
	Candidates        map[string]DiagnosisCandidate `json:"candidates"`
	Round             int                           `json:"round"`
	TerminationReason TerminationReason             `json:"termination_reason,omitempty"`
	CreatedAt         time.Time                     `json:"created_at"`
	CompletedAt       *time.Time                    `json:"completed_at,omitempty"`

	agg *Aggregator
}

// aggregator returns the session-scoped confidence aggregator, created on
// first use. It lives with the session so turn-index density is checked
// across the whole run.
func (st *SessionState) aggregator() *Aggregator {
	if st.agg == nil {
		st.agg = NewAggregator()
	}
	return st.agg
}

// snapshot returns an independent copy of the session, deep enough that
// an observer mutating it cannot reach back into the running session.
func (st *SessionState) snapshot() *SessionState {
	cp := &SessionState{
		ID:                st.ID,
		Case:              st.Case,
		Phase:             st.Phase,
		Turns:             cloneTurns(st.Turns),
		Trend:             append([]float64(nil), st.Trend...),
		Candidates:        make(map[string]DiagnosisCandidate, len(st.Candidates)),
		Round:             st.Round,
		TerminationReason: st.TerminationReason,
		CreatedAt:         st.CreatedAt,
	}
	for k, v := range st.Candidates {
		v.Evidence = append([]string(nil), v.Evidence...)
		cp.Candidates[k] = v
	}
	if st.CompletedAt != nil {
		done := *st.CompletedAt
		cp.CompletedAt = &done
	}
	return cp
}

func cloneTurns(turns []ConversationTurn) []ConversationTurn {
	out := make([]ConversationTurn, len(turns))
	for i, t := range turns {
		a := t.Assessment
		a.Candidates = cloneCandidates(a.Candidates)
		a.RecommendedTests = append([]string(nil), a.RecommendedTests...)
		a.RedFlags = append([]string(nil), a.RedFlags...)
		out[i] = ConversationTurn{
			Index:      t.Index,
			Assessment: a,
			Dialogue:   append([]string(nil), t.Dialogue...),
		}
	}
	return out
}

func cloneCandidates(cands []DiagnosisCandidate) []DiagnosisCandidate {
	out := make([]DiagnosisCandidate, len(cands))
	for i, c := range cands {
		c.Evidence = append([]string(nil), c.Evidence...)
		out[i] = c
	}
	return out
}

// Verdict is the finalized output of a session, produced exactly once when
// the state machine reaches a terminal phase.
type Verdict struct {
	SessionID         uuid.UUID            `json:"session_id"`
	Case              caselib.Case         `json:"case"`
	Leading           DiagnosisCandidate   `json:"leading"`
	Differential      []DiagnosisCandidate `json:"differential"`
	Confidence        float64              `json:"confidence"`
	ConsensusReached  bool                 `json:"consensus_reached"`
	RedFlags          []string             `json:"red_flags,omitempty"`
	TerminationReason TerminationReason    `json:"termination_reason"`
	Trend             []float64            `json:"trend"`
	Turns             []ConversationTurn   `json:"turns"`
	CreatedAt         time.Time            `json:"created_at"`
	CompletedAt       time.Time            `json:"completed_at"`
}

// canonicalName normalizes a candidate name for agreement checks. Matching
// stays name-based rather than ICD-10 based: simulated and live agents may
// omit codes, and names are what the panel actually argues about.
func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// sortCandidates orders candidates by descending confidence, breaking ties
// on name so the ordering is reproducible.
func sortCandidates(cands []DiagnosisCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		return cands[i].Name < cands[j].Name
	})
}
