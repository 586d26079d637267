package diagnosis

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"consilium/internal/caselib"
)

// InvalidCaseError is returned by Run before any agent executes when the
// input case is malformed or incomplete.
type InvalidCaseError struct {
	Cause error
}

func (e *InvalidCaseError) Error() string {
	return fmt.Sprintf("invalid case: %v", e.Cause)
}

func (e *InvalidCaseError) Unwrap() error { return e.Cause }

// AssessmentError is a recoverable per-turn failure (backend timeout,
// malformed payload, rate limit). The agent never retries internally;
// retry policy belongs to the orchestrator.
type AssessmentError struct {
	Role  AgentRole
	Cause error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assessment failed for %s: %v", e.Role, e.Cause)
}

func (e *AssessmentError) Unwrap() error { return e.Cause }

// InvariantError signals a defensive fatal assertion: confidence outside
// [0,1] or a non-dense turn index. It indicates an upstream bug and is
// never silently clamped.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("aggregation invariant violated: %s", e.Detail)
}

// ValidateCase checks that a case is complete enough to drive a session.
// All problems are collected so the caller sees every missing field at once.
func ValidateCase(c caselib.Case) error {
	var result *multierror.Error
	if c.ID == "" {
		result = multierror.Append(result, fmt.Errorf("case id is required"))
	}
	if c.Age <= 0 {
		result = multierror.Append(result, fmt.Errorf("age must be positive"))
	}
	if c.ChiefComplaint == "" {
		result = multierror.Append(result, fmt.Errorf("chief complaint is required"))
	}
	if len(c.Symptoms) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one symptom is required"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return &InvalidCaseError{Cause: err}
	}
	return nil
}
