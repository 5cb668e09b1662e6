package handlers

import (
	"errors"
	"net/http"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// SafetyHandler 안전 엔진 API
type SafetyHandler struct {
	engine     *service.SafetyEngine
	compliance *service.ComplianceService
}

func NewSafetyHandler(engine *service.SafetyEngine, compliance *service.ComplianceService) *SafetyHandler {
	return &SafetyHandler{
		engine:     engine,
		compliance: compliance,
	}
}

// Assess 지원 시도 전 안전 평가
// POST /api/v1/safety/assess
func (h *SafetyHandler) Assess(c *gin.Context) {
	var req models.ApplicationContext
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assessment := h.engine.Assess(c.Request.Context(), req)
	c.JSON(http.StatusOK, assessment)
}

// Analyze 플랫폼 응답 분석 및 적응
// POST /api/v1/safety/analyze
func (h *SafetyHandler) Analyze(c *gin.Context) {
	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.engine.AnalyzeResponse(c.Request.Context(), req.SessionID, req.Response)
	c.JSON(http.StatusOK, result)
}

// GetStatus 안전/컴플라이언스 대시보드 스냅샷
// GET /api/v1/safety/status
func (h *SafetyHandler) GetStatus(c *gin.Context) {
	status, err := h.engine.GetStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get safety status"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// TriggerEmergencyStop 수동 긴급 정지
// POST /api/v1/safety/emergency-stop
func (h *SafetyHandler) TriggerEmergencyStop(c *gin.Context) {
	var req models.EmergencyControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.engine.TriggerEmergencyStop(req.Reason)
	c.JSON(http.StatusOK, gin.H{"message": "Emergency stop triggered"})
}

// ReleaseEmergencyStop 긴급 정지 해제
// POST /api/v1/safety/emergency-release
func (h *SafetyHandler) ReleaseEmergencyStop(c *gin.Context) {
	var req models.EmergencyControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.engine.ReleaseEmergencyStop(req.Reason)
	c.JSON(http.StatusOK, gin.H{"message": "Emergency stop released"})
}

// UpdateRateLimits 속도 제한 설정 교체
// PUT /api/v1/safety/rate-limits
func (h *SafetyHandler) UpdateRateLimits(c *gin.Context) {
	var req models.RateLimitConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.UpdateRateLimitConfig(req); err != nil {
		if errors.Is(err, service.ErrInvalidScalingFactor) || errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rate limits"})
		return
	}

	c.JSON(http.StatusOK, h.engine.RateLimitConfig())
}

// UpdatePolicy 컴플라이언스 정책 부분 갱신
// PUT /api/v1/safety/policy
func (h *SafetyHandler) UpdatePolicy(c *gin.Context) {
	var req models.PolicyUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy := h.compliance.Policy()
	if req.MaxApplicationsPerDay != nil {
		policy.MaxApplicationsPerDay = *req.MaxApplicationsPerDay
	}
	if req.MaxApplicationsPerHour != nil {
		policy.MaxApplicationsPerHour = *req.MaxApplicationsPerHour
	}
	if req.MinSuccessRateThreshold != nil {
		policy.MinSuccessRateThreshold = *req.MinSuccessRateThreshold
	}
	if req.CaptchaPauseDuration != nil {
		policy.CaptchaPauseDuration = *req.CaptchaPauseDuration
	}
	if req.RateLimitPauseDuration != nil {
		policy.RateLimitPauseDuration = *req.RateLimitPauseDuration
	}
	if req.SeverityThresholds != nil {
		policy.SeverityThresholds = *req.SeverityThresholds
	}
	if req.AutoAdaptPolicies != nil {
		policy.AutoAdaptPolicies = *req.AutoAdaptPolicies
	}

	if err := h.engine.UpdatePolicy(policy); err != nil {
		if errors.Is(err, service.ErrInvalidThresholds) || errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update policy"})
		return
	}

	c.JSON(http.StatusOK, h.compliance.Policy())
}

// ResetViolations 위반 이력 초기화 (수동 개입용)
// POST /api/v1/safety/violations/reset
func (h *SafetyHandler) ResetViolations(c *gin.Context) {
	var violationType *models.ViolationType
	if t := c.Query("type"); t != "" {
		vt := models.ViolationType(t)
		violationType = &vt
	}

	h.compliance.ResetViolations(violationType)
	c.JSON(http.StatusOK, gin.H{"message": "Violations reset"})
}

// MonitorCompliance 컴플라이언스 상태 재평가
// POST /api/v1/safety/compliance/monitor
func (h *SafetyHandler) MonitorCompliance(c *gin.Context) {
	status, err := h.engine.MonitorComplianceStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to monitor compliance status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"complianceStatus": status})
}
