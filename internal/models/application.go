package models

import "time"

// Application 제출된 지원 기록 (외부 자동화 파이프라인이 생성)
type Application struct {
	ID                 string     `json:"id" db:"id"`
	JobID              string     `json:"jobId" db:"job_id"`
	SessionID          string     `json:"sessionId" db:"session_id"`
	SubmittedAt        time.Time  `json:"submittedAt" db:"submitted_at"`
	Hired              bool       `json:"hired" db:"hired"`
	InterviewScheduled bool       `json:"interviewScheduled" db:"interview_scheduled"`
	RespondedAt        *time.Time `json:"respondedAt,omitempty" db:"responded_at"`
}

// Successful 인터뷰 또는 채용으로 이어졌는지
func (a *Application) Successful() bool {
	return a.Hired || a.InterviewScheduled
}

// PolicyUpdateRequest 정책 업데이트 요청
type PolicyUpdateRequest struct {
	MaxApplicationsPerDay   *int                `json:"maxApplicationsPerDay"`
	MaxApplicationsPerHour  *int                `json:"maxApplicationsPerHour"`
	MinSuccessRateThreshold *float64            `json:"minSuccessRateThreshold"`
	CaptchaPauseDuration    *int                `json:"captchaPauseDuration"`
	RateLimitPauseDuration  *int                `json:"rateLimitPauseDuration"`
	SeverityThresholds      *SeverityThresholds `json:"severityThresholds"`
	AutoAdaptPolicies       *bool               `json:"autoAdaptPolicies"`
}

// EmergencyControlRequest 긴급 정지/해제 요청
type EmergencyControlRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FingerprintRequest 지문 생성 요청
type FingerprintRequest struct {
	SessionID    string       `json:"sessionId" binding:"required"`
	StealthLevel StealthLevel `json:"stealthLevel"`
}

// AnalyzeRequest 플랫폼 응답 분석 요청
type AnalyzeRequest struct {
	SessionID string       `json:"sessionId" binding:"required"`
	Response  ResponseData `json:"response" binding:"required"`
}
