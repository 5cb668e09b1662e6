package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/applyguard/applyguard-backend/internal/models"
	"go.uber.org/zap"
)

const responseHistoryLimit = 100

var captchaIndicators = []string{
	"captcha", "recaptcha", "verify you are human",
	"security check", "unusual activity",
}

var rateLimitIndicators = []string{
	"rate limit", "too many requests", "slow down",
	"temporarily blocked", "suspicious activity",
}

var rateLimitHeaders = []string{
	"x-ratelimit-remaining", "retry-after", "x-rate-limit-reset",
}

var antiBotCaptchaIndicators = []string{
	"recaptcha", "hcaptcha", "captcha", "verify you are human",
	"security check", "prove you are not a robot",
}

var fingerprintingIndicators = []string{
	"canvas fingerprint", "webgl fingerprint", "audio fingerprint",
	"font detection", "screen resolution", "timezone detection",
}

var botDetectionVendors = []string{
	"cloudflare", "distil", "perimeterx", "datadome",
	"imperva", "akamai", "shape security",
}

var botDetectionHeaders = []string{
	"cf-ray", "x-distil-cs", "x-px-authorization",
	"x-datadome-cid", "x-akamai-edgescape",
}

// AnalyzerService 플랫폼 응답에서 자동화 경고 신호를 추출한다.
// 최근 응답 이력은 최대 100건만 유지한다.
type AnalyzerService struct {
	mu      sync.Mutex
	history []models.PlatformResponse
	logger  *zap.Logger
}

func NewAnalyzerService() *AnalyzerService {
	logger, _ := zap.NewProduction()
	return &AnalyzerService{
		history: make([]models.PlatformResponse, 0, responseHistoryLimit),
		logger:  logger,
	}
}

// Analyze 응답 데이터 분석 후 이력에 기록
func (s *AnalyzerService) Analyze(data models.ResponseData) models.PlatformResponse {
	content := strings.ToLower(data.Content)

	result := models.PlatformResponse{
		ResponseTime:    data.ResponseTime,
		StatusCode:      data.StatusCode,
		ContentLength:   len(data.Content),
		ErrorIndicators: []string{},
	}

	// 캡챠는 상태 코드와 무관하게 본문만으로 판단한다
	result.HasCaptcha = containsAny(content, captchaIndicators)

	result.HasRateLimitWarning = data.StatusCode == 429 ||
		containsAny(content, rateLimitIndicators) ||
		hasAnyHeader(data.Headers, rateLimitHeaders)

	if data.StatusCode >= 400 {
		result.ErrorIndicators = append(result.ErrorIndicators,
			fmt.Sprintf("HTTP %d", data.StatusCode))
	}
	if data.StatusCode == 200 && result.ContentLength < 1000 {
		result.HasUnusualContent = true
		result.ErrorIndicators = append(result.ErrorIndicators, "Unusually short response")
	}
	if data.ResponseTime > 10 {
		result.HasUnusualContent = true
		result.ErrorIndicators = append(result.ErrorIndicators, "Unusually slow response")
	}

	s.mu.Lock()
	s.history = append(s.history, result)
	if len(s.history) > responseHistoryLimit {
		s.history = s.history[len(s.history)-responseHistoryLimit:]
	}
	s.mu.Unlock()

	if result.HasCaptcha || result.HasRateLimitWarning || result.HasUnusualContent {
		s.logger.Warn("Platform response flagged",
			zap.Int("statusCode", result.StatusCode),
			zap.Bool("captcha", result.HasCaptcha),
			zap.Bool("rateLimit", result.HasRateLimitWarning),
			zap.Bool("unusual", result.HasUnusualContent))
	}

	return result
}

// UnusualPatternDetected 최근 5건 중 3건 이상이 플래그면 true.
// 조회만 하고 이력은 변경하지 않는다.
func (s *AnalyzerService) UnusualPatternDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) < 5 {
		return false
	}

	flagged := 0
	for _, r := range s.history[len(s.history)-5:] {
		if r.HasCaptcha || r.HasRateLimitWarning || r.HasUnusualContent {
			flagged++
		}
	}

	return flagged >= 3
}

// RecentResponses 최근 n건 응답 (대시보드용, 최신이 마지막)
func (s *AnalyzerService) RecentResponses(n int) []models.PlatformResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}

	out := make([]models.PlatformResponse, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// DetectAntiBot 안티봇 인프라 탐지. 가중 점수:
// captcha 3, rate limiting 2, fingerprinting 1, 벤더/헤더 각 1.
// 5 이상 high, 2 이상 medium.
func (s *AnalyzerService) DetectAntiBot(data models.ResponseData) models.AntiBotDetection {
	content := strings.ToLower(data.Content)

	detection := models.AntiBotDetection{
		BotDetectionServices: []string{},
		SuspiciousHeaders:    []string{},
	}

	detection.CaptchaDetected = containsAny(content, antiBotCaptchaIndicators)
	detection.RateLimiting = data.StatusCode == 429 || containsAny(content, rateLimitIndicators)
	detection.FingerprintingScript = containsAny(content, fingerprintingIndicators)

	headerBlob := strings.ToLower(fmt.Sprintf("%v", data.Headers))
	for _, vendor := range botDetectionVendors {
		if strings.Contains(content, vendor) || strings.Contains(headerBlob, vendor) {
			detection.BotDetectionServices = append(detection.BotDetectionServices, vendor)
		}
	}

	for _, header := range botDetectionHeaders {
		if headerPresent(data.Headers, header) {
			detection.SuspiciousHeaders = append(detection.SuspiciousHeaders, header)
		}
	}

	score := 0
	if detection.CaptchaDetected {
		score += 3
	}
	if detection.RateLimiting {
		score += 2
	}
	if detection.FingerprintingScript {
		score++
	}
	score += len(detection.BotDetectionServices)
	score += len(detection.SuspiciousHeaders)

	switch {
	case score >= 5:
		detection.RiskLevel = models.RiskHigh
	case score >= 2:
		detection.RiskLevel = models.RiskMedium
	default:
		detection.RiskLevel = models.RiskLow
	}

	if detection.RiskLevel != models.RiskLow {
		s.logger.Warn("Anti-bot measures detected",
			zap.String("riskLevel", string(detection.RiskLevel)),
			zap.Int("score", score),
			zap.Strings("services", detection.BotDetectionServices))
	}

	return detection
}

func containsAny(content string, indicators []string) bool {
	for _, indicator := range indicators {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return false
}

func hasAnyHeader(headers map[string]string, names []string) bool {
	for _, name := range names {
		if headerPresent(headers, name) {
			return true
		}
	}
	return false
}

func headerPresent(headers map[string]string, name string) bool {
	for key := range headers {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}
