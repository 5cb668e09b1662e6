package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/pkg/database"
)

type ViolationRepository struct {
	db *database.DB
}

func NewViolationRepository(db *database.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// Record 위반 기록 저장 (append-only 미러)
func (r *ViolationRepository) Record(v *models.PolicyViolation) error {
	evidence, err := json.Marshal(v.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	var actionTaken *string
	if v.ActionTaken != nil {
		s := string(*v.ActionTaken)
		actionTaken = &s
	}

	query := `
		INSERT INTO policy_violations (id, violation_type, severity, description, detected_at, evidence, action_taken, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Exec(query,
		v.ID,
		string(v.ViolationType),
		v.Severity.String(),
		v.Description,
		v.DetectedAt,
		evidence,
		actionTaken,
		v.Resolved,
	)
	if err != nil {
		return fmt.Errorf("failed to record violation: %w", err)
	}

	return nil
}

// CountSince 기준 시각 이후 기록된 위반 수
func (r *ViolationRepository) CountSince(since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM policy_violations
		WHERE detected_at >= $1
	`

	var count int
	err := r.db.QueryRow(query, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}

	return count, nil
}
