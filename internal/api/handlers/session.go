package handlers

import (
	"errors"
	"net/http"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// SessionHandler 브라우저 세션 지문 API
type SessionHandler struct {
	engine       *service.SafetyEngine
	fingerprints *service.FingerprintService
}

func NewSessionHandler(engine *service.SafetyEngine, fingerprints *service.FingerprintService) *SessionHandler {
	return &SessionHandler{
		engine:       engine,
		fingerprints: fingerprints,
	}
}

// Prepare 세션 준비 (지문 생성 + 필요 시 회전)
// POST /api/v1/sessions/prepare
func (h *SessionHandler) Prepare(c *gin.Context) {
	var req models.FingerprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshot, err := h.engine.PrepareSession(c.Request.Context(), req.SessionID, req.StealthLevel)
	if err != nil {
		if errors.Is(err, service.ErrEmptySessionID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to prepare session"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// Rotate 지문 강제 회전
// POST /api/v1/sessions/:id/rotate
func (h *SessionHandler) Rotate(c *gin.Context) {
	sessionID := c.Param("id")

	fingerprint, err := h.fingerprints.Rotate(sessionID, "")
	if err != nil {
		if errors.Is(err, service.ErrEmptySessionID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rotate fingerprint"})
		return
	}

	c.JSON(http.StatusOK, fingerprint)
}

// Health 세션 건강 상태 조회
// GET /api/v1/sessions/:id/health
func (h *SessionHandler) Health(c *gin.Context) {
	sessionID := c.Param("id")

	health := h.fingerprints.Health(sessionID)
	c.JSON(http.StatusOK, health)
}

// Delete 세션 종료 (지문 폐기)
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")

	h.fingerprints.Clear(sessionID)
	c.JSON(http.StatusOK, gin.H{"message": "Session cleared"})
}
