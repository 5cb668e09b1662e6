package models

import "time"

type StealthLevel string

const (
	StealthMinimal  StealthLevel = "minimal"
	StealthStandard StealthLevel = "standard"
	StealthMaximum  StealthLevel = "maximum"
)

// Plugin 브라우저 플러그인 항목
type Plugin struct {
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

// Dimensions 화면/뷰포트 크기
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BrowserFingerprint 세션별 합성 브라우저 신원
type BrowserFingerprint struct {
	SessionID           string            `json:"sessionId"`
	UserAgent           string            `json:"userAgent"`
	Viewport            Dimensions        `json:"viewport"`
	Screen              Dimensions        `json:"screen"`
	Timezone            string            `json:"timezone"`
	Locale              string            `json:"locale"`
	Platform            string            `json:"platform"`
	WebGLVendor         string            `json:"webglVendor"`
	WebGLRenderer       string            `json:"webglRenderer"`
	CanvasFingerprint   string            `json:"canvasFingerprint"`
	AudioFingerprint    string            `json:"audioFingerprint"`
	Fonts               []string          `json:"fonts"`
	Plugins             []Plugin          `json:"plugins"`
	Headers             map[string]string `json:"headers"`
	WebRTCIPs           []string          `json:"webrtcIps"`
	BatteryLevel        *float64          `json:"batteryLevel,omitempty"`
	ConnectionType      string            `json:"connectionType"`
	HardwareConcurrency int               `json:"hardwareConcurrency"`
	DeviceMemory        int               `json:"deviceMemory"` // GB
	GeneratedAt         time.Time         `json:"generatedAt"`
}

// SessionHealth 브라우저 세션 상태 평가
type SessionHealth struct {
	SessionID     string    `json:"sessionId"`
	AgeHours      float64   `json:"ageHours"`
	ResponseCount int       `json:"responseCount"`
	LastRiskLevel RiskLevel `json:"lastRiskLevel"`
	NeedsRotation bool      `json:"needsRotation"`
	HealthScore   float64   `json:"healthScore"`
}
