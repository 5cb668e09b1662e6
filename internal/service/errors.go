package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Safety engine specific errors
var (
	ErrEmergencyStopActive  = errors.New("emergency stop is active")
	ErrInvalidScalingFactor = errors.New("scaling factor must be positive")
)

// Fingerprint service specific errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptySessionID  = errors.New("session id is empty")
)

// Compliance service specific errors
var (
	ErrInvalidThresholds = errors.New("invalid severity thresholds")
)
