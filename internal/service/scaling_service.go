package service

import (
	"context"
	"sync"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/pkg/sessionstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const scalingLockKey = "scaling:lock"

// ScalingService 점진적 볼륨 스케일링 잡. 7일/30일 성공률과 계정 활동
// 기간으로 속도 제한 설정을 주기적으로 재계산한다.
type ScalingService struct {
	engine   *SafetyEngine
	apps     ApplicationStore
	interval time.Duration
	locks    *sessionstore.LockManager // nil이면 단일 인스턴스 가정
	logger   *zap.Logger
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewScalingService(engine *SafetyEngine, apps ApplicationStore, interval time.Duration) *ScalingService {
	logger, _ := zap.NewProduction()
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ScalingService{
		engine:   engine,
		apps:     apps,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
}

// SetLockManager 다중 인스턴스 배포에서 한 인스턴스만 스케일링하도록 연결
func (s *ScalingService) SetLockManager(locks *sessionstore.LockManager) {
	s.locks = locks
}

// Start 스케일링 루프 시작
func (s *ScalingService) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("Gradual scaling service started",
		zap.Duration("interval", s.interval))
}

// Stop 스케일링 루프 종료 (대기)
func (s *ScalingService) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("Gradual scaling service stopped")
}

func (s *ScalingService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.rescaleWithLock(); err != nil {
				s.logger.Error("Gradual scaling run failed", zap.Error(err))
			}
		}
	}
}

// rescaleWithLock 분산 락 하에서 재계산. 다른 인스턴스가 잡고 있으면 건너뛴다.
func (s *ScalingService) rescaleWithLock() error {
	if s.locks == nil {
		return s.Rescale()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lock, err := s.locks.Acquire(ctx, scalingLockKey, uuid.New().String(), 5*time.Minute)
	if err == sessionstore.ErrLockNotAcquired {
		s.logger.Info("Scaling lock held by another instance, skipping run")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.Warn("Failed to release scaling lock", zap.Error(err))
		}
	}()

	return s.Rescale()
}

// Rescale 성과 기반으로 설정을 재계산해 엔진에 적용한다.
func (s *ScalingService) Rescale() error {
	now := s.now()

	rate7d, err := s.successRate(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		return err
	}
	rate30d, err := s.successRate(now.Add(-30 * 24 * time.Hour))
	if err != nil {
		return err
	}

	baseScaling := 1.0
	switch {
	case rate7d > 0.3 && rate30d > 0.25:
		baseScaling = 1.1
		if baseScaling > 1.5 {
			baseScaling = 1.5
		}
	case rate7d > 0.2 && rate30d > 0.15:
		baseScaling = 1.05
		if baseScaling > 1.2 {
			baseScaling = 1.2
		}
	case rate7d < 0.1 || rate30d < 0.1:
		baseScaling = 0.8
		if baseScaling < 0.5 {
			baseScaling = 0.5
		}
	case rate7d < 0.15 || rate30d < 0.15:
		baseScaling = 0.9
		if baseScaling < 0.7 {
			baseScaling = 0.7
		}
	}

	daysActive, err := s.daysActive(now)
	if err != nil {
		return err
	}

	var timeScaling float64
	switch {
	case daysActive < 7:
		timeScaling = 0.5
	case daysActive < 30:
		timeScaling = 0.7
	case daysActive < 90:
		timeScaling = 0.9
	default:
		timeScaling = 1.0
	}

	finalScaling := baseScaling * timeScaling

	current := s.engine.RateLimitConfig()

	newConfig := models.RateLimitConfig{
		MaxDailyApplications:  int(30 * finalScaling),
		MaxHourlyApplications: 5,
		MinTimeBetweenApps:    int(300 / finalScaling),
		BaseDelayMin:          current.BaseDelayMin,
		BaseDelayMax:          current.BaseDelayMax,
		ScalingFactor:         finalScaling,
		HumanPatternVariance:  current.HumanPatternVariance,
	}

	if hourly := int(5 * finalScaling); hourly >= 1 {
		newConfig.MaxHourlyApplications = hourly
	} else {
		newConfig.MaxHourlyApplications = 1
	}
	if newConfig.MaxDailyApplications < 1 {
		newConfig.MaxDailyApplications = 1
	}
	if newConfig.MinTimeBetweenApps < 60 {
		newConfig.MinTimeBetweenApps = 60
	}

	if err := s.engine.UpdateRateLimitConfig(newConfig); err != nil {
		return err
	}

	s.logger.Info("Updated gradual scaling",
		zap.Float64("scalingFactor", finalScaling),
		zap.Int("dailyLimit", newConfig.MaxDailyApplications),
		zap.Int("hourlyLimit", newConfig.MaxHourlyApplications),
		zap.Int("daysActive", daysActive))

	return nil
}

func (s *ScalingService) successRate(since time.Time) (float64, error) {
	total, err := s.apps.CountSince(since)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	successful, err := s.apps.CountSuccessfulSince(since)
	if err != nil {
		return 0, err
	}

	return float64(successful) / float64(total), nil
}

func (s *ScalingService) daysActive(now time.Time) (int, error) {
	first, err := s.apps.FirstSubmittedAt()
	if err != nil {
		return 0, err
	}
	if first == nil {
		return 0, nil
	}

	return int(now.Sub(*first).Hours() / 24), nil
}
