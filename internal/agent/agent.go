// Package agent implements the role-bound reasoning units of the
// diagnostic panel. Each agent produces one structured assessment per
// turn, backed either by the live reasoning backend or by a deterministic
// catalog-driven simulation.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"consilium/internal/caselib"
	"consilium/internal/diagnosis"
	"consilium/internal/logging"
)

type strategy interface {
	assess(ctx context.Context, c caselib.Case, prior []diagnosis.ConversationTurn) (diagnosis.Assessment, error)
}

// Agent is one panel member with a fixed role.
type Agent struct {
	role      diagnosis.AgentRole
	specialty string
	strategy  strategy
	log       *slog.Logger
}

func (a *Agent) Role() diagnosis.AgentRole { return a.role }

// Assess produces one assessment for the case given the read-only history.
// It never retries; failures surface to the orchestrator.
func (a *Agent) Assess(ctx context.Context, c caselib.Case, prior []diagnosis.ConversationTurn) (diagnosis.Assessment, error) {
	if err := ctx.Err(); err != nil {
		return diagnosis.Assessment{}, err
	}
	asmt, err := a.strategy.assess(ctx, c, prior)
	if err != nil {
		return diagnosis.Assessment{}, err
	}
	asmt.Role = a.role
	asmt.Specialty = a.specialty
	a.log.Debug("assessment produced", "role", a.role, "case_id", c.ID, "candidates", len(asmt.Candidates))
	return asmt, nil
}

// liveStrategy formats a role-specific prompt, invokes the reasoning
// backend, and parses the structured response.
type liveStrategy struct {
	role      diagnosis.AgentRole
	specialty string
	backend   Backend
}

func (s *liveStrategy) assess(ctx context.Context, c caselib.Case, prior []diagnosis.ConversationTurn) (diagnosis.Assessment, error) {
	raw, err := s.backend.Invoke(ctx, Request{
		System: systemPrompt(s.role, s.specialty),
		User:   clinicalPrompt(c, prior),
	})
	if err != nil {
		return diagnosis.Assessment{}, err
	}
	return parseAssessment(raw)
}

// NewPanelFactory builds per-session panels. The backend may be nil when
// only demo mode is used; live mode then fails at session start rather
// than mid-protocol.
func NewPanelFactory(backend Backend) diagnosis.PanelFactory {
	log := logging.WithComponent("agent")
	return func(cfg diagnosis.Config) (diagnosis.Panel, error) {
		switch cfg.Mode {
		case diagnosis.ModeLive:
			if backend == nil {
				return diagnosis.Panel{}, fmt.Errorf("live mode requires a configured reasoning backend")
			}
			return diagnosis.Panel{
				Primary:    &Agent{role: diagnosis.RolePrimaryCare, specialty: "Family Medicine", strategy: &liveStrategy{role: diagnosis.RolePrimaryCare, specialty: "Family Medicine", backend: backend}, log: log},
				Specialist: &Agent{role: diagnosis.RoleSpecialist, specialty: cfg.Specialty, strategy: &liveStrategy{role: diagnosis.RoleSpecialist, specialty: cfg.Specialty, backend: backend}, log: log},
				Senior:     &Agent{role: diagnosis.RoleSeniorAttending, specialty: "Internal Medicine", strategy: &liveStrategy{role: diagnosis.RoleSeniorAttending, specialty: "Internal Medicine", backend: backend}, log: log},
			}, nil
		case diagnosis.ModeDemo, "":
			seed := cfg.Seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			// one source shared by the panel: turns are strictly
			// sequential within a session, and a single seed replays
			// the entire run
			rng := rand.New(rand.NewSource(seed))
			return diagnosis.Panel{
				Primary:    &Agent{role: diagnosis.RolePrimaryCare, specialty: "Family Medicine", strategy: &simStrategy{role: diagnosis.RolePrimaryCare, specialty: "Family Medicine", rng: rng}, log: log},
				Specialist: &Agent{role: diagnosis.RoleSpecialist, specialty: cfg.Specialty, strategy: &simStrategy{role: diagnosis.RoleSpecialist, specialty: cfg.Specialty, rng: rng}, log: log},
				Senior:     &Agent{role: diagnosis.RoleSeniorAttending, specialty: "Internal Medicine", strategy: &simStrategy{role: diagnosis.RoleSeniorAttending, specialty: "Internal Medicine", rng: rng}, log: log},
			}, nil
		default:
			return diagnosis.Panel{}, fmt.Errorf("unknown mode %q", cfg.Mode)
		}
	}
}
