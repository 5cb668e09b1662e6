package api

import (
	"github.com/applyguard/applyguard-backend/internal/api/handlers"
	"github.com/applyguard/applyguard-backend/internal/api/middleware"
	"github.com/applyguard/applyguard-backend/internal/config"
	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/internal/notify"
	"github.com/applyguard/applyguard-backend/internal/repository"
	"github.com/applyguard/applyguard-backend/internal/service"
	"github.com/applyguard/applyguard-backend/internal/websocket"
	"github.com/applyguard/applyguard-backend/pkg/database"
	"github.com/applyguard/applyguard-backend/pkg/sessionstore"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, db *database.DB) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	// Redis 세션 저장소/분산 락 초기화 (연결 실패 시 메모리 전용으로 동작)
	var store *sessionstore.Store
	var locks *sessionstore.LockManager
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			println("Warning: invalid REDIS_URL, session mirroring disabled:", err.Error())
		} else {
			client := redis.NewClient(opts)
			store = sessionstore.NewStore(client, "fingerprint:")
			locks = sessionstore.NewLockManager(client)
		}
	}

	// Repository 초기화
	appRepo := repository.NewApplicationRepository(db)
	violationRepo := repository.NewViolationRepository(db)

	// WebSocket Hub 초기화 및 시작
	wsHub := websocket.NewHub()
	go wsHub.Run()
	println("WebSocket Hub started")

	// 알림 초기화 (Hub는 항상, Slack은 설정된 경우에만)
	notifiers := []notify.Notifier{wsHub}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackWebhookURL))
	}

	// Service 초기화
	emergency := service.NewEmergencyControl()
	rateLimiter := service.NewRateLimitService(emergency)
	fingerprints := service.NewFingerprintService(models.StealthLevel(cfg.StealthLevel), store)
	analyzer := service.NewAnalyzerService()
	compliance := service.NewComplianceService(emergency, violationRepo)

	engine := service.NewSafetyEngine(
		rateLimiter,
		fingerprints,
		analyzer,
		compliance,
		emergency,
		appRepo,
		notifiers...,
	)
	if locks != nil {
		engine.SetLockManager(locks, cfg.AccountID)
	}

	// 초기 속도 제한은 환경 설정으로
	initialConfig := models.RateLimitConfig{
		MaxDailyApplications:  cfg.MaxDailyApplications,
		MaxHourlyApplications: cfg.MaxHourlyApplications,
		MinTimeBetweenApps:    cfg.MinTimeBetweenApps,
		BaseDelayMin:          cfg.BaseDelayMin,
		BaseDelayMax:          cfg.BaseDelayMax,
		ScalingFactor:         1.0,
		HumanPatternVariance:  cfg.HumanPatternVariance,
	}
	if err := engine.UpdateRateLimitConfig(initialConfig); err != nil {
		println("Warning: invalid rate limit config from environment, using defaults:", err.Error())
	}

	// Scaling Service 초기화 및 시작
	scaling := service.NewScalingService(engine, appRepo, cfg.ScalingInterval)
	if locks != nil {
		scaling.SetLockManager(locks)
	}
	scaling.Start()
	println("Gradual scaling service started")

	// Handler 초기화
	safetyHandler := handlers.NewSafetyHandler(engine, compliance)
	sessionHandler := handlers.NewSessionHandler(engine, fingerprints)
	wsHandler := handlers.NewWebSocketHandler(wsHub)

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// WebSocket endpoint
		v1.GET("/ws", middleware.Auth(cfg), wsHandler.HandleWebSocket)

		// Safety routes (자동화 파이프라인 호출)
		safety := v1.Group("/safety")
		safety.Use(middleware.Auth(cfg))
		{
			safety.POST("/assess", middleware.AssessRateLimit(), safetyHandler.Assess)
			safety.POST("/analyze", middleware.AssessRateLimit(), safetyHandler.Analyze)
			safety.GET("/status", safetyHandler.GetStatus)
			safety.POST("/compliance/monitor", safetyHandler.MonitorCompliance)

			// 관리자 전용
			admin := safety.Group("")
			admin.Use(middleware.RequireAdmin(), middleware.AdminRateLimit())
			{
				admin.POST("/emergency-stop", safetyHandler.TriggerEmergencyStop)
				admin.POST("/emergency-release", safetyHandler.ReleaseEmergencyStop)
				admin.PUT("/rate-limits", safetyHandler.UpdateRateLimits)
				admin.PUT("/policy", safetyHandler.UpdatePolicy)
				admin.POST("/violations/reset", safetyHandler.ResetViolations)
			}
		}

		// Session routes
		sessions := v1.Group("/sessions")
		sessions.Use(middleware.Auth(cfg))
		{
			sessions.POST("/prepare", sessionHandler.Prepare)
			sessions.POST("/:id/rotate", sessionHandler.Rotate)
			sessions.GET("/:id/health", sessionHandler.Health)
			sessions.DELETE("/:id", sessionHandler.Delete)
		}
	}

	return router
}
