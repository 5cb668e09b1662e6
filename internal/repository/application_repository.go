package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/pkg/database"
)

type ApplicationRepository struct {
	db *database.DB
}

func NewApplicationRepository(db *database.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// CountSince 기준 시각 이후 제출된 지원 수
func (r *ApplicationRepository) CountSince(since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM applications
		WHERE submitted_at >= $1
	`

	var count int
	err := r.db.QueryRow(query, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications: %w", err)
	}

	return count, nil
}

// CountSuccessfulSince 기준 시각 이후 성공한(채용/인터뷰) 지원 수
func (r *ApplicationRepository) CountSuccessfulSince(since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM applications
		WHERE submitted_at >= $1
			AND (hired = true OR interview_scheduled = true)
	`

	var count int
	err := r.db.QueryRow(query, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count successful applications: %w", err)
	}

	return count, nil
}

// FindRecent 최근 제출 순으로 n개의 지원 조회 (연속 실패 집계용)
func (r *ApplicationRepository) FindRecent(n int) ([]*models.Application, error) {
	query := `
		SELECT id, job_id, session_id, submitted_at, hired, interview_scheduled, responded_at
		FROM applications
		ORDER BY submitted_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent applications: %w", err)
	}
	defer rows.Close()

	var applications []*models.Application
	for rows.Next() {
		app := &models.Application{}
		err := rows.Scan(
			&app.ID,
			&app.JobID,
			&app.SessionID,
			&app.SubmittedAt,
			&app.Hired,
			&app.InterviewScheduled,
			&app.RespondedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		applications = append(applications, app)
	}

	return applications, nil
}

// LastSubmittedAt 가장 최근 제출 시각 (없으면 nil)
func (r *ApplicationRepository) LastSubmittedAt() (*time.Time, error) {
	query := `
		SELECT submitted_at
		FROM applications
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	var submittedAt time.Time
	err := r.db.QueryRow(query).Scan(&submittedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get last application time: %w", err)
	}

	return &submittedAt, nil
}

// FirstSubmittedAt 최초 제출 시각 (계정 활동 기간 계산용, 없으면 nil)
func (r *ApplicationRepository) FirstSubmittedAt() (*time.Time, error) {
	query := `
		SELECT submitted_at
		FROM applications
		ORDER BY submitted_at ASC
		LIMIT 1
	`

	var submittedAt time.Time
	err := r.db.QueryRow(query).Scan(&submittedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get first application time: %w", err)
	}

	return &submittedAt, nil
}
