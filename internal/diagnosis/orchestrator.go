package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"consilium/internal/caselib"
	"consilium/internal/logging"
)

// Mode selects the agent strategy. Switching modes changes only how
// assessments are produced, never the state machine or the data model.
type Mode string

const (
	ModeDemo Mode = "demo"
	ModeLive Mode = "live"
)

const (
	DefaultConsensusThreshold = 0.75
	DefaultMaxRounds          = 3
)

// Config is the per-session configuration passed in at start. There is no
// process-wide mutable configuration.
type Config struct {
	Mode               Mode    `json:"mode"`
	Specialty          string  `json:"specialty"`
	Seed               int64   `json:"seed"`
	ConsensusThreshold float64 `json:"consensus_threshold"`
	MaxRounds          int     `json:"max_rounds"`
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeDemo
	}
	if c.Specialty == "" {
		c.Specialty = "Internal Medicine"
	}
	if c.ConsensusThreshold <= 0 {
		c.ConsensusThreshold = DefaultConsensusThreshold
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	return c
}

// Assessor produces one assessment for a case given the read-only history
// available so far. The role is fixed at construction. Implementations
// must not retry internally; retry policy belongs to the orchestrator.
type Assessor interface {
	Role() AgentRole
	Assess(ctx context.Context, c caselib.Case, prior []ConversationTurn) (Assessment, error)
}

// Panel is the fixed three-role escalation ladder for one session.
type Panel struct {
	Primary    Assessor
	Specialist Assessor
	Senior     Assessor
}

// PanelFactory builds a fresh panel for one session from its config.
type PanelFactory func(cfg Config) (Panel, error)

// Service runs diagnostic sessions to termination.
type Service interface {
	// Run drives one session through the consultation protocol and returns
	// its verdict. A session always terminates: either Complete or
	// Escalated within the bounded round count. The only errors returned
	// are InvalidCaseError (before any agent runs), panel construction
	// failures, and InvariantError (an upstream bug).
	Run(ctx context.Context, c caselib.Case, cfg Config) (*Verdict, error)

	// ActiveSession returns an independent snapshot of a session still in
	// flight. Mutating the result never affects the running session.
	ActiveSession(id uuid.UUID) (*SessionState, bool)

	// Verdict fetches an archived verdict.
	Verdict(ctx context.Context, id uuid.UUID) (*Verdict, error)
}

type service struct {
	newPanel PanelFactory
	archive  Repository // nil when no database is configured
	sessions *Registry
	log      *slog.Logger
}

func NewService(newPanel PanelFactory, archive Repository) Service {
	return &service{
		newPanel: newPanel,
		archive:  archive,
		sessions: NewRegistry(),
		log:      logging.WithComponent("orchestrator"),
	}
}

func (s *service) Run(ctx context.Context, c caselib.Case, cfg Config) (*Verdict, error) {
	cfg = cfg.withDefaults()
	if err := ValidateCase(c); err != nil {
		return nil, err
	}
	panel, err := s.newPanel(cfg)
	if err != nil {
		return nil, fmt.Errorf("building panel: %w", err)
	}

	st := &SessionState{
		ID:         uuid.New(),
		Case:       c,
		Phase:      PhaseInit,
		Candidates: make(map[string]DiagnosisCandidate),
		CreatedAt:  time.Now(),
	}
	s.publish(st)
	defer s.sessions.Remove(st.ID)

	s.log.Info("session started",
		"session_id", st.ID, "case_id", c.ID, "mode", cfg.Mode, "specialty", cfg.Specialty)

	if err := s.runProtocol(ctx, st, panel, cfg); err != nil {
		return nil, err
	}

	v := buildVerdict(st)
	s.log.Info("session terminated",
		"session_id", st.ID, "phase", st.Phase, "reason", st.TerminationReason,
		"leading", v.Leading.Name, "confidence", v.Confidence, "turns", len(v.Turns))

	if s.archive != nil {
		if err := s.archive.SaveVerdict(ctx, v); err != nil {
			s.log.Warn("archiving verdict failed", "session_id", st.ID, "error", err)
		}
	}
	return v, nil
}

// runProtocol walks the state machine:
//
//	Init → PrimaryAssessment → (SpecialistConsult → SeniorReview → ConsensusCheck)+ → Complete|Escalated
//
// Each escalation round re-enters SpecialistConsult with the full prior
// transcript as context; the round counter makes session progress strictly
// monotonic. The returned error is non-nil only for invariant violations.
func (s *service) runProtocol(ctx context.Context, st *SessionState, panel Panel, cfg Config) error {
	if err := s.advance(st, PhasePrimaryAssessment); err != nil {
		return err
	}
	if err := s.takeTurn(ctx, st, panel.Primary, nil); err != nil {
		return s.handleTurnError(ctx, st, err)
	}

	for st.Round = 1; ; st.Round++ {
		if err := s.advance(st, PhaseSpecialistConsult); err != nil {
			return err
		}
		var dialogue []string
		if st.Round > 1 {
			dialogue = discussionOpening(st)
		}
		if err := s.takeTurn(ctx, st, panel.Specialist, dialogue); err != nil {
			return s.handleTurnError(ctx, st, err)
		}

		if err := s.advance(st, PhaseSeniorReview); err != nil {
			return err
		}
		if err := s.takeTurn(ctx, st, panel.Senior, nil); err != nil {
			return s.handleTurnError(ctx, st, err)
		}

		if err := s.advance(st, PhaseConsensusCheck); err != nil {
			return err
		}
		if s.consensusReached(st, cfg) {
			s.terminate(st, PhaseComplete, ReasonConsensus)
			return nil
		}
		if st.Round >= cfg.MaxRounds {
			s.terminate(st, PhaseEscalated, ReasonRoundLimit)
			return nil
		}
		s.log.Info("no consensus, opening discussion round",
			"session_id", st.ID, "round", st.Round+1)
	}
}

// takeTurn runs one agent with a single same-turn retry and commits the
// resulting assessment. Committed turns are never rolled back.
func (s *service) takeTurn(ctx context.Context, st *SessionState, as Assessor, dialogue []string) error {
	prior := append([]ConversationTurn(nil), st.Turns...)

	a, err := as.Assess(ctx, st.Case, prior)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("assessment failed, retrying turn",
			"session_id", st.ID, "role", as.Role(), "error", err)
		a, err = as.Assess(ctx, st.Case, prior)
	}
	if err != nil {
		return &AssessmentError{Role: as.Role(), Cause: err}
	}

	// the protocol position, not the payload, is authoritative for the
	// role: the aggregator's weighting keys off it
	a.Role = as.Role()
	a.TurnIndex = len(st.Turns)
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	sortCandidates(a.Candidates)

	merged, point, err := st.aggregator().Update(st.Candidates, a)
	if err != nil {
		return err
	}
	st.Candidates = merged
	st.Trend = append(st.Trend, point)
	st.Turns = append(st.Turns, ConversationTurn{Index: a.TurnIndex, Assessment: a, Dialogue: dialogue})
	s.publish(st)

	top, _ := a.Top()
	s.log.Info("turn committed",
		"session_id", st.ID, "turn", a.TurnIndex, "role", a.Role,
		"top", top.Name, "confidence", top.Confidence, "trend", point)
	return nil
}

// handleTurnError maps a failed turn onto a terminal state. Invariant
// violations propagate to the caller; agent failures end the session in
// Escalated with a recorded reason and the transcript intact.
func (s *service) handleTurnError(ctx context.Context, st *SessionState, err error) error {
	var ae *AssessmentError
	if errors.As(err, &ae) {
		reason := ReasonAgentFailure
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		s.log.Warn("turn abandoned", "session_id", st.ID, "role", ae.Role, "reason", reason, "error", err)
		s.terminate(st, PhaseEscalated, reason)
		return nil
	}
	return err
}

// consensusReached is true when the three most recent turns name the same
// top candidate and the aggregate confidence clears the threshold.
func (s *service) consensusReached(st *SessionState, cfg Config) bool {
	if len(st.Turns) < 3 || len(st.Trend) == 0 {
		return false
	}
	last := st.Turns[len(st.Turns)-3:]
	var name string
	for i, t := range last {
		top, ok := t.Assessment.Top()
		if !ok {
			return false
		}
		if i == 0 {
			name = canonicalName(top.Name)
			continue
		}
		if canonicalName(top.Name) != name {
			return false
		}
	}
	return st.Trend[len(st.Trend)-1] >= cfg.ConsensusThreshold
}

// advance moves the session one protocol step forward and publishes the
// updated snapshot. Phases only move forward within a round; the one
// sanctioned re-entry is consensus check opening the next round's
// specialist consult.
func (s *service) advance(st *SessionState, next Phase) error {
	reentry := st.Phase == PhaseConsensusCheck && next == PhaseSpecialistConsult
	if phaseOrder(next) <= phaseOrder(st.Phase) && !reentry {
		return &InvariantError{Detail: fmt.Sprintf("phase regression %s -> %s", st.Phase, next)}
	}
	s.log.Debug("phase transition", "session_id", st.ID, "from", st.Phase, "to", next, "round", st.Round)
	st.Phase = next
	s.publish(st)
	return nil
}

func (s *service) terminate(st *SessionState, p Phase, reason TerminationReason) {
	st.Phase = p
	st.TerminationReason = reason
	now := time.Now()
	st.CompletedAt = &now
}

// publish replaces the session's registry entry with a fresh snapshot.
// The running session itself is never shared; observers only ever see
// copies.
func (s *service) publish(st *SessionState) {
	s.sessions.Insert(st.snapshot())
}

func (s *service) ActiveSession(id uuid.UUID) (*SessionState, bool) {
	st, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	return st.snapshot(), true
}

func (s *service) Verdict(ctx context.Context, id uuid.UUID) (*Verdict, error) {
	if s.archive == nil {
		return nil, fmt.Errorf("no verdict archive configured")
	}
	return s.archive.GetVerdict(ctx, id)
}

// discussionOpening derives the scripted cross-agent exchange that opens an
// escalation round from the current disagreement.
func discussionOpening(st *SessionState) []string {
	ranked := Ranked(st.Candidates)
	first, second := "the leading diagnosis", "the alternatives"
	if len(ranked) > 0 {
		first = ranked[0].Name
	}
	if len(ranked) > 1 {
		second = ranked[1].Name
	}
	return []string{
		fmt.Sprintf("Moderator: Discussion round %d — the panel has not converged. Current leading considerations: %s vs %s.", st.Round, first, second),
		fmt.Sprintf("Primary Care: Given the patient's %s, can you walk me through what separates %s from %s here?", st.Case.ChiefComplaint, first, second),
		fmt.Sprintf("Specialist: The key differentiators are the temporal pattern of symptoms and the patient's history (%s). Let me re-examine the case with that lens.", st.Case.History.PastMedical),
	}
}

// buildVerdict finalizes a terminal session into its immutable verdict.
func buildVerdict(st *SessionState) *Verdict {
	lead, _ := Leading(st.Candidates)
	ranked := Ranked(st.Candidates)
	diff := make([]DiagnosisCandidate, 0, len(ranked))
	for _, c := range ranked {
		if canonicalName(c.Name) == canonicalName(lead.Name) {
			continue
		}
		diff = append(diff, c)
	}

	var flags []string
	seen := make(map[string]bool)
	for _, t := range st.Turns {
		for _, f := range t.Assessment.RedFlags {
			if !seen[f] {
				flags = append(flags, f)
				seen[f] = true
			}
		}
	}

	completed := time.Now()
	if st.CompletedAt != nil {
		completed = *st.CompletedAt
	}
	return &Verdict{
		SessionID:         st.ID,
		Case:              st.Case,
		Leading:           lead,
		Differential:      diff,
		Confidence:        lead.Confidence,
		ConsensusReached:  st.TerminationReason == ReasonConsensus,
		RedFlags:          flags,
		TerminationReason: st.TerminationReason,
		Trend:             append([]float64(nil), st.Trend...),
		Turns:             append([]ConversationTurn(nil), st.Turns...),
		CreatedAt:         st.CreatedAt,
		CompletedAt:       completed,
	}
}
