package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/applyguard/applyguard-backend/internal/models"
	"github.com/applyguard/applyguard-backend/pkg/sessionstore"
	"go.uber.org/zap"
)

// 실제 트래픽에서 흔한 사용자 에이전트 풀
var userAgentPool = []string{
	// Chrome on macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",

	// Chrome on Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 11.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",

	// Safari on macOS
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Safari/605.1.15",

	// Firefox
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",

	// Edge
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

var commonResolutions = []models.Dimensions{
	{Width: 1920, Height: 1080},
	{Width: 1366, Height: 768},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 864},
	{Width: 1280, Height: 720},
	{Width: 1600, Height: 900},
}

var timezonePool = []string{
	"America/New_York", "America/Chicago", "America/Denver",
	"America/Los_Angeles", "America/Toronto", "America/Vancouver",
}

var localePool = []string{"en-US", "en-CA", "en-GB"}

var webglVendors = []string{"Intel Inc.", "NVIDIA Corporation", "AMD", "Apple Inc."}

var webglRenderers = []string{
	"Intel Iris Pro OpenGL Engine",
	"NVIDIA GeForce GTX 1060",
	"AMD Radeon Pro 560X OpenGL Engine",
	"Apple M1 Pro",
}

var baseFonts = []string{
	"Arial", "Arial Black", "Comic Sans MS", "Courier New",
	"Georgia", "Helvetica", "Impact", "Times New Roman",
	"Trebuchet MS", "Verdana",
}

var osFonts = map[string][]string{
	"macOS": {
		"SF Pro Display", "SF Pro Text", "Helvetica Neue",
		"Lucida Grande", "Menlo", "Monaco", "Optima",
		"Palatino", "Times", "Zapfino",
	},
	"Windows": {
		"Segoe UI", "Segoe UI Black", "Segoe UI Light",
		"Tahoma", "Microsoft Sans Serif", "Calibri",
		"Cambria", "Consolas", "Corbel",
	},
	"Linux": {
		"Ubuntu", "Ubuntu Mono", "DejaVu Sans",
		"DejaVu Sans Mono", "Liberation Sans",
		"Liberation Serif", "Noto Sans", "Roboto",
	},
}

var webFonts = []string{
	"Open Sans", "Roboto", "Lato", "Montserrat",
	"Source Sans Pro", "Raleway", "PT Sans",
}

var webrtcRanges = []string{"192.168.1", "192.168.0", "10.0.0", "172.16.0"}

// sessionState 세션별 지문/건강 추적 상태
type sessionState struct {
	fingerprint   *models.BrowserFingerprint
	createdAt     time.Time
	lastRotation  time.Time
	rotations     int
	responseCount int
	lastRiskLevel models.RiskLevel
}

// FingerprintService 세션별 합성 브라우저 신원 생성/회전.
// 같은 세션 id는 회전 전까지 동일한 canvas/audio 해시를 유지한다.
type FingerprintService struct {
	mu           sync.Mutex
	sessions     map[string]*sessionState
	defaultLevel models.StealthLevel
	store        *sessionstore.Store // nil이면 미러링 생략
	logger       *zap.Logger
	now          func() time.Time
}

func NewFingerprintService(defaultLevel models.StealthLevel, store *sessionstore.Store) *FingerprintService {
	logger, _ := zap.NewProduction()
	if defaultLevel == "" {
		defaultLevel = models.StealthStandard
	}
	return &FingerprintService{
		sessions:     make(map[string]*sessionState),
		defaultLevel: defaultLevel,
		store:        store,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Generate 세션 지문 생성. 이미 생성된 세션이면 저장된 지문을 반환한다.
func (s *FingerprintService) Generate(sessionID string, level models.StealthLevel) (*models.BrowserFingerprint, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if level == "" {
		level = s.defaultLevel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[sessionID]
	if exists && state.fingerprint != nil {
		return state.fingerprint, nil
	}
	if !exists {
		now := s.now()
		state = &sessionState{
			createdAt:     now,
			lastRotation:  now,
			lastRiskLevel: models.RiskLow,
		}
		s.sessions[sessionID] = state

		// 재시작 후에도 같은 신원을 유지하도록 미러를 먼저 찾는다
		if restored := s.restore(sessionID); restored != nil {
			state.fingerprint = restored
			state.createdAt = restored.GeneratedAt
			s.logger.Info("Restored mirrored fingerprint",
				zap.String("sessionId", sessionID))
			return restored, nil
		}
	}

	fp := s.build(sessionID, state.rotations, level)
	state.fingerprint = fp

	s.mirror(sessionID, fp)

	s.logger.Info("Generated browser fingerprint",
		zap.String("sessionId", sessionID),
		zap.String("stealthLevel", string(level)))

	return fp, nil
}

// Rotate 지문 폐기 후 재생성. 회전 논스를 올려 canvas/audio 해시가 바뀐다
// ("새 기기" 시뮬레이션).
func (s *FingerprintService) Rotate(sessionID string, level models.StealthLevel) (*models.BrowserFingerprint, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if level == "" {
		level = s.defaultLevel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.sessions[sessionID]
	if !exists {
		now := s.now()
		state = &sessionState{
			createdAt:     now,
			lastRiskLevel: models.RiskLow,
		}
		s.sessions[sessionID] = state
	}

	state.rotations++
	state.lastRotation = s.now()
	state.responseCount = 0
	state.lastRiskLevel = models.RiskLow

	fp := s.build(sessionID, state.rotations, level)
	state.fingerprint = fp

	s.mirror(sessionID, fp)

	s.logger.Info("Rotated browser fingerprint",
		zap.String("sessionId", sessionID),
		zap.Int("rotations", state.rotations))

	return fp, nil
}

// Get 세션 지문 조회 (없으면 nil)
func (s *FingerprintService) Get(sessionID string) *models.BrowserFingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.sessions[sessionID]; ok {
		return state.fingerprint
	}
	return nil
}

// Clear 세션 종료 시 지문 폐기
func (s *FingerprintService) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	delete(s.sessions, sessionID)

	if s.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.store.Delete(ctx, sessionID); err != nil {
				s.logger.Warn("Failed to delete mirrored fingerprint",
					zap.String("sessionId", sessionID),
					zap.Error(err))
			}
		}()
	}

	s.logger.Info("Cleared session fingerprint", zap.String("sessionId", sessionID))
}

// RecordResponse 세션이 처리한 응답과 마지막 안티봇 위험도 기록
func (s *FingerprintService) RecordResponse(sessionID string, risk models.RiskLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		now := s.now()
		state = &sessionState{
			createdAt:     now,
			lastRotation:  now,
			lastRiskLevel: models.RiskLow,
		}
		s.sessions[sessionID] = state
	}

	state.responseCount++
	state.lastRiskLevel = risk
}

// Health 세션 건강 평가. 나이 4시간 초과, 응답 50건 초과,
// 마지막 위험도 high 중 하나라도 해당하면 회전이 필요하다.
func (s *FingerprintService) Health(sessionID string) models.SessionHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return models.SessionHealth{
			SessionID:     sessionID,
			LastRiskLevel: models.RiskLow,
			HealthScore:   1.0,
		}
	}

	ageHours := s.now().Sub(state.createdAt).Hours()

	needsRotation := ageHours > 4 ||
		state.responseCount > 50 ||
		state.lastRiskLevel == models.RiskHigh

	score := 1.0 - ageHours/8 - float64(state.responseCount)/100
	if score < 0 {
		score = 0
	}

	return models.SessionHealth{
		SessionID:     sessionID,
		AgeHours:      ageHours,
		ResponseCount: state.responseCount,
		LastRiskLevel: state.lastRiskLevel,
		NeedsRotation: needsRotation,
		HealthScore:   score,
	}
}

// LastRotation 마지막 회전 시각 (세션이 없으면 zero time)
func (s *FingerprintService) LastRotation(sessionID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.sessions[sessionID]; ok {
		return state.lastRotation
	}
	return time.Time{}
}

// SessionHealths 모든 활성 세션의 건강 상태 (대시보드용)
func (s *FingerprintService) SessionHealths() []models.SessionHealth {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)

	healths := make([]models.SessionHealth, 0, len(ids))
	for _, id := range ids {
		healths = append(healths, s.Health(id))
	}
	return healths
}

// build 결정적 지문 조립. 전역 RNG 대신 세션 id + 회전 논스로 시드한
// 로컬 RNG를 사용해 세션 간 간섭을 피한다.
func (s *FingerprintService) build(sessionID string, rotations int, level models.StealthLevel) *models.BrowserFingerprint {
	rng := rand.New(rand.NewSource(seedFor(sessionID, rotations)))

	userAgent := userAgentPool[rng.Intn(len(userAgentPool))]
	platform, osFamily := inferPlatform(userAgent)

	screen := commonResolutions[rng.Intn(len(commonResolutions))]
	viewport := models.Dimensions{
		Width:  screen.Width - rng.Intn(101),
		Height: screen.Height - (100 + rng.Intn(101)),
	}

	var battery *float64
	if rng.Float64() > 0.3 {
		level := 0.2 + rng.Float64()*0.75
		battery = &level
	}

	fp := &models.BrowserFingerprint{
		SessionID:           sessionID,
		UserAgent:           userAgent,
		Viewport:            viewport,
		Screen:              screen,
		Timezone:            timezonePool[rng.Intn(len(timezonePool))],
		Locale:              localePool[rng.Intn(len(localePool))],
		Platform:            platform,
		WebGLVendor:         webglVendors[rng.Intn(len(webglVendors))],
		WebGLRenderer:       webglRenderers[rng.Intn(len(webglRenderers))],
		CanvasFingerprint:   canvasHash(rng),
		AudioFingerprint:    audioHash(rng),
		Fonts:               buildFontList(rng, osFamily),
		Plugins:             buildPluginList(rng, userAgent),
		Headers:             buildHeaders(userAgent, level),
		WebRTCIPs:           buildWebRTCIPs(rng),
		BatteryLevel:        battery,
		ConnectionType:      []string{"wifi", "ethernet", "cellular"}[rng.Intn(3)],
		HardwareConcurrency: []int{4, 8, 12, 16}[rng.Intn(4)],
		DeviceMemory:        []int{4, 8, 16, 32}[rng.Intn(4)],
		GeneratedAt:         s.now(),
	}

	return fp
}

// restore 미러된 지문 복원 (없거나 실패하면 nil)
func (s *FingerprintService) restore(sessionID string) *models.BrowserFingerprint {
	if s.store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var fp models.BrowserFingerprint
	if err := s.store.Load(ctx, sessionID, &fp); err != nil {
		if err != sessionstore.ErrNotFound {
			s.logger.Warn("Failed to load mirrored fingerprint",
				zap.String("sessionId", sessionID),
				zap.Error(err))
		}
		return nil
	}

	return &fp
}

// mirror Redis에 지문 미러링 (실패는 로깅만)
func (s *FingerprintService) mirror(sessionID string, fp *models.BrowserFingerprint) {
	if s.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.store.Save(ctx, sessionID, fp, 8*time.Hour); err != nil {
			s.logger.Warn("Failed to mirror fingerprint",
				zap.String("sessionId", sessionID),
				zap.Error(err))
		}
	}()
}

func seedFor(sessionID string, rotations int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s#%d", sessionID, rotations)
	return int64(h.Sum64())
}

func inferPlatform(userAgent string) (platform, osFamily string) {
	switch {
	case strings.Contains(userAgent, "Macintosh"):
		return "MacIntel", "macOS"
	case strings.Contains(userAgent, "Windows"):
		return "Win32", "Windows"
	default:
		return "Linux x86_64", "Linux"
	}
}

func canvasHash(rng *rand.Rand) string {
	data := make([]byte, 50)
	for i := range data {
		data[i] = byte(rng.Intn(256))
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if len(encoded) > 32 {
		encoded = encoded[:32]
	}
	return encoded
}

func audioHash(rng *rand.Rand) string {
	samples := make([]byte, 0, 20*8)
	for i := 0; i < 20; i++ {
		samples = append(samples, []byte(fmt.Sprintf("%.6f", rng.Float64()*2-1))...)
	}
	sum := sha256.Sum256(samples)
	return hex.EncodeToString(sum[:])[:16]
}

func buildFontList(rng *rand.Rand, osFamily string) []string {
	fonts := make([]string, 0, len(baseFonts)+16)
	fonts = append(fonts, baseFonts...)
	fonts = append(fonts, osFonts[osFamily]...)

	for _, font := range webFonts {
		if rng.Float64() > 0.7 {
			fonts = append(fonts, font)
		}
	}

	sort.Strings(fonts)
	return fonts
}

func buildPluginList(rng *rand.Rand, userAgent string) []models.Plugin {
	var plugins []models.Plugin

	switch {
	case strings.Contains(userAgent, "Firefox"):
		plugins = append(plugins,
			models.Plugin{Name: "PDF.js", Filename: "pdf.js"},
			models.Plugin{Name: "OpenH264 Video Codec", Filename: "gmpopenh264"},
		)
	case strings.Contains(userAgent, "Chrome"):
		plugins = append(plugins,
			models.Plugin{Name: "Chrome PDF Plugin", Filename: "internal-pdf-viewer"},
			models.Plugin{Name: "Chrome PDF Viewer", Filename: "mhjfbmdgcfjbbpaeojofohoefgiehjai"},
			models.Plugin{Name: "Native Client", Filename: "internal-nacl-plugin"},
		)
	default:
		plugins = append(plugins,
			models.Plugin{Name: "WebKit built-in PDF", Filename: "WebKit built-in PDF"},
		)
	}

	if rng.Float64() > 0.5 {
		plugins = append(plugins, models.Plugin{
			Name:     "Widevine Content Decryption Module",
			Filename: "widevinecdmadapter",
		})
	}

	return plugins
}

func buildHeaders(userAgent string, level models.StealthLevel) map[string]string {
	headers := map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Accept-Encoding":           "gzip, deflate, br",
		"DNT":                       "1",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}

	if level == models.StealthMaximum {
		headers["Sec-Fetch-Dest"] = "document"
		headers["Sec-Fetch-Mode"] = "navigate"
		headers["Sec-Fetch-Site"] = "none"
		headers["Sec-Fetch-User"] = "?1"
		headers["Cache-Control"] = "max-age=0"
	}

	return headers
}

func buildWebRTCIPs(rng *rand.Rand) []string {
	count := 1 + rng.Intn(2)
	ips := make([]string, 0, count)
	for _, prefix := range webrtcRanges[:count] {
		ips = append(ips, fmt.Sprintf("%s.%d", prefix, 1+rng.Intn(254)))
	}
	return ips
}
