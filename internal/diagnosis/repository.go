package diagnosis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Repository archives finalized verdicts. Sessions themselves are
// ephemeral; only the finished result is persisted.
type Repository interface {
	SaveVerdict(ctx context.Context, v *Verdict) error
	GetVerdict(ctx context.Context, id uuid.UUID) (*Verdict, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) SaveVerdict(ctx context.Context, v *Verdict) error {
	caseJSON, err := json.Marshal(v.Case)
	if err != nil {
		return err
	}
	diffJSON, err := json.Marshal(v.Differential)
	if err != nil {
		return err
	}
	flagsJSON, err := json.Marshal(v.RedFlags)
	if err != nil {
		return err
	}
	trendJSON, err := json.Marshal(v.Trend)
	if err != nil {
		return err
	}
	turnsJSON, err := json.Marshal(v.Turns)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO verdicts (id, case_id, case_data, leading_diagnosis, icd10_code, confidence,
			consensus_reached, termination_reason, differential, red_flags, trend, turns,
			created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			leading_diagnosis = $4,
			icd10_code = $5,
			confidence = $6,
			consensus_reached = $7,
			termination_reason = $8,
			differential = $9,
			red_flags = $10,
			trend = $11,
			turns = $12,
			completed_at = $14
	`
	_, err = r.db.ExecContext(ctx, query,
		v.SessionID, v.Case.ID, caseJSON, v.Leading.Name, v.Leading.ICD10Code, v.Confidence,
		v.ConsensusReached, v.TerminationReason, diffJSON, flagsJSON, trendJSON, turnsJSON,
		v.CreatedAt, v.CompletedAt)
	return err
}

func (r *postgresRepo) GetVerdict(ctx context.Context, id uuid.UUID) (*Verdict, error) {
	query := `SELECT id, case_data, leading_diagnosis, icd10_code, confidence, consensus_reached,
		termination_reason, differential, red_flags, trend, turns, created_at, completed_at
		FROM verdicts WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var v Verdict
	var caseJSON, diffJSON, flagsJSON, trendJSON, turnsJSON []byte
	err := row.Scan(
		&v.SessionID,
		&caseJSON,
		&v.Leading.Name,
		&v.Leading.ICD10Code,
		&v.Confidence,
		&v.ConsensusReached,
		&v.TerminationReason,
		&diffJSON,
		&flagsJSON,
		&trendJSON,
		&turnsJSON,
		&v.CreatedAt,
		&v.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("verdict not found")
		}
		return nil, err
	}
	v.Leading.Confidence = v.Confidence

	if err := json.Unmarshal(caseJSON, &v.Case); err != nil {
		return nil, fmt.Errorf("failed to unmarshal case: %w", err)
	}
	if err := json.Unmarshal(diffJSON, &v.Differential); err != nil {
		return nil, fmt.Errorf("failed to unmarshal differential: %w", err)
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &v.RedFlags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal red flags: %w", err)
		}
	}
	if err := json.Unmarshal(trendJSON, &v.Trend); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trend: %w", err)
	}
	if err := json.Unmarshal(turnsJSON, &v.Turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turns: %w", err)
	}
	return &v, nil
}
