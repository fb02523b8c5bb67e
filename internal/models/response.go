// Package models - API response types and error handling.
// This file defines the outgoing API response structures.
//
// Response Design Principles:
// - Consistent JSON structure across all endpoints
// - Optional fields use omitempty to reduce response size
// - Errors carry a machine-readable code and optional details
// - RFC3339 timestamps
package models

import (
	"time"
)

type ListCharactersResponse struct {
	Characters []Character `json:"characters"`
	TotalCount int         `json:"total_count"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	HasMore    bool        `json:"has_more"`
}

// SyncResponse reports what a sync from the game data API changed.
type SyncResponse struct {
	Character         *Character `json:"character"`
	JobsUpdated       int        `json:"jobs_updated"`
	AchievementsAdded int        `json:"achievements_added"`
	SyncedAt          time.Time  `json:"synced_at"`
}

type AchievementsResponse struct {
	CharacterID  string                 `json:"character_id"`
	SincePatch   Patch                  `json:"since_patch,omitempty"`
	Achievements []CharacterAchievement `json:"achievements"`
	TotalPoints  int                    `json:"total_points"`
}

type CharacterSearchResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	World  string `json:"world"`
	Avatar string `json:"avatar,omitempty"`
}

type SearchCharactersResponse struct {
	Results []CharacterSearchResult `json:"results"`
	Count   int                     `json:"count"`
}

// RateLimitStatusResponse describes the outbound API budget. ResetAt is
// omitted when the bucket never refills.
type RateLimitStatusResponse struct {
	Key               string     `json:"key"`
	Allowed           bool       `json:"allowed"`
	Limit             int        `json:"limit"`
	Remaining         int        `json:"remaining"`
	ResetAt           *time.Time `json:"reset_at,omitempty"`
	RetryAfterSeconds float64    `json:"retry_after_seconds,omitempty"`
	TrackedKeys       int        `json:"tracked_keys"`
}

type MessageResponse struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse provides structured error information.
//
// Error Categories:
// - Validation errors: Input format/constraint violations
// - Not found errors: Character or game data doesn't exist
// - Rate limit errors: Inbound or outbound budget exhausted
// - Upstream errors: The game data API failed
// - Internal errors: Server-side issues
type ErrorResponse struct {
	Error     string            `json:"error"`                // Error type (always "error")
	Message   string            `json:"message"`              // Human-readable error description
	Code      string            `json:"code,omitempty"`       // Machine-readable error code
	Details   map[string]string `json:"details,omitempty"`    // Field-specific error details
	Timestamp time.Time         `json:"timestamp"`            // Error occurrence time
	RequestID string            `json:"request_id,omitempty"` // Unique request identifier
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
	StatusUnknown   = "unknown"   // Status indeterminate
)

// Standard HTTP Error Codes
//
// Error Code Strategy:
// - Upper-case with underscores for consistency
// - Maps to standard HTTP status codes
// - Machine-readable for client error handling
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeCharacterNotFound  = "CHARACTER_NOT_FOUND" // 404: Character isn't tracked or doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: Invalid request data
	ErrorCodeValidation         = "VALIDATION_ERROR"    // 422: Input validation failed
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeConflict           = "CONFLICT"            // 409: Resource conflict
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED" // 429: Token bucket exhausted
	ErrorCodeUpstreamError      = "UPSTREAM_ERROR"      // 502: Game data API failed
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: Service temporarily down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// AddComponentDetail attaches a detail to an already added component.
func (h *HealthCheckResponse) AddComponentDetail(name, key string, value interface{}) {
	c, ok := h.Components[name]
	if !ok {
		return
	}
	if c.Details == nil {
		c.Details = make(map[string]interface{})
	}
	c.Details[key] = value
	h.Components[name] = c
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
