package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"

	"consilium/internal/caselib"
)

type stubAssessor struct {
	role  AgentRole
	calls int
	fn    func(call int, prior []ConversationTurn) (Assessment, error)
}

func (s *stubAssessor) Role() AgentRole { return s.role }

func (s *stubAssessor) Assess(_ context.Context, _ caselib.Case, prior []ConversationTurn) (Assessment, error) {
	s.calls++
	return s.fn(s.calls, prior)
}

func fixedPanel(primary, specialist, senior Assessor) PanelFactory {
	return func(Config) (Panel, error) {
		return Panel{Primary: primary, Specialist: specialist, Senior: senior}, nil
	}
}

func assessment(name string, conf float64) Assessment {
	return Assessment{
		Candidates: []DiagnosisCandidate{{Name: name, Confidence: conf}},
		Reasoning:  "test reasoning",
	}
}

func always(name string, conf float64) func(int, []ConversationTurn) (Assessment, error) {
	return func(int, []ConversationTurn) (Assessment, error) {
		return assessment(name, conf), nil
	}
}

func testCase() caselib.Case {
	return caselib.Case{
		ID:             "T1",
		Age:            60,
		Sex:            "Male",
		ChiefComplaint: "chest pain",
		Symptoms:       []string{"chest pain"},
	}
}

func TestRun_UnanimousHighConfidence(t *testing.T) {
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.85)},
		&stubAssessor{role: RoleSpecialist, fn: always("Myocardial Infarction", 0.85)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Myocardial Infarction", 0.85)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.ConsensusReached {
		t.Fatalf("expected consensus")
	}
	if v.TerminationReason != ReasonConsensus {
		t.Fatalf("expected consensus termination, got %s", v.TerminationReason)
	}
	if len(v.Turns) != 3 {
		t.Fatalf("expected exactly 3 turns, got %d", len(v.Turns))
	}
	if v.Leading.Name != "Myocardial Infarction" {
		t.Fatalf("unexpected leading diagnosis %q", v.Leading.Name)
	}
}

func TestRun_AgreementByRoundThree(t *testing.T) {
	// Round 1 disagrees outright; round 2 agrees on the name but the
	// aggregate confidence stays under the threshold; round 3 clears it.
	specialist := &stubAssessor{role: RoleSpecialist, fn: func(call int, _ []ConversationTurn) (Assessment, error) {
		switch call {
		case 1:
			return assessment("Gastroesophageal Reflux Disease", 0.6), nil
		case 2:
			return assessment("Myocardial Infarction", 0.6), nil
		default:
			return assessment("Myocardial Infarction", 0.95), nil
		}
	}}
	senior := &stubAssessor{role: RoleSeniorAttending, fn: func(call int, _ []ConversationTurn) (Assessment, error) {
		if call < 3 {
			return assessment("Myocardial Infarction", 0.7), nil
		}
		return assessment("Myocardial Infarction", 0.95), nil
	}}
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.8)},
		specialist, senior,
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.ConsensusReached {
		t.Fatalf("expected consensus by round 3, reason=%s trend=%v", v.TerminationReason, v.Trend)
	}
	if len(v.Turns) != 7 {
		t.Fatalf("expected 7 turns (3 + 2 discussion rounds), got %d", len(v.Turns))
	}
	if specialist.calls != 3 {
		t.Fatalf("expected 3 specialist calls, got %d", specialist.calls)
	}
}

func TestRun_PersistentDisagreementEscalates(t *testing.T) {
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.5)},
		&stubAssessor{role: RoleSpecialist, fn: always("Pneumonia", 0.6)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Gastroesophageal Reflux Disease", 0.55)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ConsensusReached {
		t.Fatalf("expected no consensus")
	}
	if v.TerminationReason != ReasonRoundLimit {
		t.Fatalf("expected round_limit termination, got %s", v.TerminationReason)
	}
	if len(v.Turns) != 7 {
		t.Fatalf("expected 7 turns at the default 3-round cap, got %d", len(v.Turns))
	}
	// best-effort leading diagnosis: the highest merged confidence
	if v.Leading.Name == "" {
		t.Fatalf("escalated session must still carry a leading diagnosis")
	}
	if v.Leading.Confidence != v.Confidence {
		t.Fatalf("verdict confidence must match the leading candidate")
	}
}

func TestRun_AgreementBelowThresholdEscalates(t *testing.T) {
	// Nominal agreement does not terminate when confidence stays low.
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Migraine", 0.4)},
		&stubAssessor{role: RoleSpecialist, fn: always("Migraine", 0.4)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Migraine", 0.4)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ConsensusReached {
		t.Fatalf("expected escalation despite name agreement")
	}
	if v.TerminationReason != ReasonRoundLimit {
		t.Fatalf("expected round_limit, got %s", v.TerminationReason)
	}
}

func TestRun_SpecialistFailureRetriesOnceThenEscalates(t *testing.T) {
	backendDown := errors.New("backend timeout")
	specialist := &stubAssessor{role: RoleSpecialist, fn: func(int, []ConversationTurn) (Assessment, error) {
		return Assessment{}, backendDown
	}}
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.8)},
		specialist,
		&stubAssessor{role: RoleSeniorAttending, fn: always("Myocardial Infarction", 0.8)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if specialist.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", specialist.calls)
	}
	if v.TerminationReason != ReasonAgentFailure {
		t.Fatalf("expected agent_failure, got %s", v.TerminationReason)
	}
	if len(v.Turns) != 1 {
		t.Fatalf("primary turn must remain intact, got %d turns", len(v.Turns))
	}
	if v.Turns[0].Assessment.Role != RolePrimaryCare {
		t.Fatalf("surviving turn must be the primary assessment")
	}
	if v.Leading.Name != "Myocardial Infarction" {
		t.Fatalf("escalated verdict must keep the best-effort leading diagnosis")
	}
}

func TestRun_CancellationAbandonsInFlightTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	specialist := &stubAssessor{role: RoleSpecialist, fn: func(int, []ConversationTurn) (Assessment, error) {
		cancel()
		return Assessment{}, ctx.Err()
	}}
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.8)},
		specialist,
		&stubAssessor{role: RoleSeniorAttending, fn: always("Myocardial Infarction", 0.8)},
	), nil)

	v, err := svc.Run(ctx, testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if specialist.calls != 1 {
		t.Fatalf("cancelled turn must not be retried, got %d calls", specialist.calls)
	}
	if v.TerminationReason != ReasonCancelled {
		t.Fatalf("expected cancelled termination, got %s", v.TerminationReason)
	}
	if len(v.Turns) != 1 {
		t.Fatalf("committed turns must never be rolled back, got %d", len(v.Turns))
	}
}

func TestRun_InvalidCaseFailsBeforeAgents(t *testing.T) {
	primary := &stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.8)}
	svc := NewService(fixedPanel(primary, primary, primary), nil)

	_, err := svc.Run(context.Background(), caselib.Case{}, Config{})
	var ice *InvalidCaseError
	if !errors.As(err, &ice) {
		t.Fatalf("expected InvalidCaseError, got %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("no agent may run for an invalid case")
	}
}

func TestRun_InvariantViolationPropagates(t *testing.T) {
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 1.5)},
		&stubAssessor{role: RoleSpecialist, fn: always("Myocardial Infarction", 0.8)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Myocardial Infarction", 0.8)},
	), nil)

	_, err := svc.Run(context.Background(), testCase(), Config{})
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvariantError for out-of-range confidence, got %v", err)
	}
}

func TestRun_TurnIndicesDenseAndTrendBounded(t *testing.T) {
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.5)},
		&stubAssessor{role: RoleSpecialist, fn: always("Pneumonia", 0.6)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Sepsis", 0.55)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, turn := range v.Turns {
		if turn.Index != i {
			t.Fatalf("turn %d has index %d; indices must be dense from 0", i, turn.Index)
		}
	}
	if len(v.Trend) != len(v.Turns) {
		t.Fatalf("expected one trend point per turn: %d vs %d", len(v.Trend), len(v.Turns))
	}
	for i, p := range v.Trend {
		if p < 0 || p > 1 {
			t.Fatalf("trend point %d out of range: %f", i, p)
		}
	}
}

func TestRun_EscalationRoundsCarryDialogue(t *testing.T) {
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.5)},
		&stubAssessor{role: RoleSpecialist, fn: always("Pneumonia", 0.6)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Sepsis", 0.55)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// turn 3 opens the second round's specialist consult
	if len(v.Turns) < 4 || len(v.Turns[3].Dialogue) == 0 {
		t.Fatalf("expected discussion dialogue on the escalation round opening turn")
	}
	if len(v.Turns[1].Dialogue) != 0 {
		t.Fatalf("first-round specialist turn must not carry discussion dialogue")
	}
}

func TestRun_PanelFactoryError(t *testing.T) {
	svc := NewService(func(Config) (Panel, error) {
		return Panel{}, fmt.Errorf("no backend")
	}, nil)
	if _, err := svc.Run(context.Background(), testCase(), Config{Mode: ModeLive}); err == nil {
		t.Fatalf("expected panel construction error")
	}
}

func TestRun_StampsRoleFromProtocolPosition(t *testing.T) {
	// assessors return bare payloads without a role; the committed
	// transcript must carry the protocol roles and the senior merge
	// weight must apply
	svc := NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Sepsis", 0.6)},
		&stubAssessor{role: RoleSpecialist, fn: always("Sepsis", 0.6)},
		&stubAssessor{role: RoleSeniorAttending, fn: always("Sepsis", 0.9)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{ConsensusThreshold: 0.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []AgentRole{RolePrimaryCare, RoleSpecialist, RoleSeniorAttending}
	if len(v.Turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(v.Turns))
	}
	for i, r := range want {
		if v.Turns[i].Assessment.Role != r {
			t.Fatalf("turn %d recorded role %q, want %q", i, v.Turns[i].Assessment.Role, r)
		}
	}
	// (0.6*1 + 0.6*1 + 0.9*1.5) / 3.5 — the senior opinion at weight 1.5
	wantConf := (0.6 + 0.6 + 0.9*1.5) / 3.5
	if math.Abs(v.Confidence-wantConf) > 1e-9 {
		t.Fatalf("merged confidence %f, want %f", v.Confidence, wantConf)
	}
}

func TestAdvanceRejectsBackwardPhase(t *testing.T) {
	svc := NewService(nil, nil).(*service)

	st := &SessionState{ID: uuid.New(), Phase: PhaseSeniorReview}
	var inv *InvariantError
	if err := svc.advance(st, PhasePrimaryAssessment); !errors.As(err, &inv) {
		t.Fatalf("expected InvariantError for a backward transition, got %v", err)
	}

	// the sanctioned re-entry: consensus check opens the next round
	st.Phase = PhaseConsensusCheck
	st.Round = 1
	if err := svc.advance(st, PhaseSpecialistConsult); err != nil {
		t.Fatalf("round re-entry must be allowed: %v", err)
	}

	// nothing advances out of a terminal phase
	st.Phase = PhaseComplete
	if err := svc.advance(st, PhaseSpecialistConsult); !errors.As(err, &inv) {
		t.Fatalf("expected InvariantError when leaving a terminal phase, got %v", err)
	}
}

func TestRun_PublishesObservableSnapshots(t *testing.T) {
	var svc Service
	observed := false
	specialist := &stubAssessor{role: RoleSpecialist, fn: func(int, []ConversationTurn) (Assessment, error) {
		reg := svc.(*service).sessions
		var id uuid.UUID
		for k := range reg.sessions {
			id = k
		}
		snap, ok := svc.ActiveSession(id)
		if !ok {
			t.Fatal("in-flight session must be observable")
		}
		if snap.Phase != PhaseSpecialistConsult {
			t.Fatalf("snapshot phase %s, want %s", snap.Phase, PhaseSpecialistConsult)
		}
		if len(snap.Turns) != 1 || snap.Turns[0].Assessment.Role != RolePrimaryCare {
			t.Fatalf("snapshot must show the committed primary turn, got %+v", snap.Turns)
		}
		// mutating the snapshot must not reach the running session
		snap.Turns[0].Assessment.Candidates[0].Name = "Altered"
		observed = true
		return assessment("Myocardial Infarction", 0.85), nil
	}}
	svc = NewService(fixedPanel(
		&stubAssessor{role: RolePrimaryCare, fn: always("Myocardial Infarction", 0.85)},
		specialist,
		&stubAssessor{role: RoleSeniorAttending, fn: always("Myocardial Infarction", 0.85)},
	), nil)

	v, err := svc.Run(context.Background(), testCase(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !observed {
		t.Fatal("specialist stub never observed the session")
	}
	if v.Turns[0].Assessment.Candidates[0].Name != "Myocardial Infarction" {
		t.Fatal("snapshot mutation leaked into the session")
	}
	if _, ok := svc.ActiveSession(v.SessionID); ok {
		t.Fatal("terminated session must leave the registry")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.ConsensusThreshold != DefaultConsensusThreshold {
		t.Fatalf("unexpected threshold %f", cfg.ConsensusThreshold)
	}
	if cfg.MaxRounds != DefaultMaxRounds {
		t.Fatalf("unexpected max rounds %d", cfg.MaxRounds)
	}
	if cfg.Mode != ModeDemo {
		t.Fatalf("default mode must be demo, got %s", cfg.Mode)
	}
}
