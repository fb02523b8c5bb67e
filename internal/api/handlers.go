package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"xivtracker/internal/models"
	"xivtracker/internal/ratelimit"
	"xivtracker/internal/storage"
	"xivtracker/internal/tracker"
	"xivtracker/internal/version"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

// Handlers contains HTTP handlers for the tracker API
type Handlers struct {
	service        tracker.ServiceInterface
	storage        storage.Storage
	inboundLimiter ratelimit.Limiter
	logger         *slog.Logger
	startTime      time.Time
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithStorage sets the storage backend used by health checks.
func WithStorage(s storage.Storage) HandlerOption {
	return func(h *Handlers) { h.storage = s }
}

// WithInboundLimiter reports the inbound limiter in health checks.
func WithInboundLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handlers) { h.inboundLimiter = l }
}

func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(service tracker.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		service:   service,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListCharacters handles tracked character listing
// GET /api/v1/characters
func (h *Handlers) ListCharacters(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := &models.ListCharactersRequest{
		World: query.Get("world"),
		Name:  query.Get("name"),
	}

	var err error
	if req.Limit, err = intParam(query.Get("limit")); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be an integer")
		return
	}
	if req.Offset, err = intParam(query.Get("offset")); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "offset must be an integer")
		return
	}

	response, err := h.service.ListCharacters(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetCharacter handles character progress requests
// GET /api/v1/characters/{id}
func (h *Handlers) GetCharacter(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.GetProgress(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// SyncCharacter fetches a character from XIVAPI and stores it
// POST /api/v1/characters/{id}/sync
func (h *Handlers) SyncCharacter(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.SyncCharacter(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// DeleteCharacter stops tracking a character
// DELETE /api/v1/characters/{id}
func (h *Handlers) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.DeleteCharacter(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, models.MessageResponse{
		ID:      id,
		Message: "Character deleted successfully",
	})
}

// RecordJob sets a job level by hand
// PUT /api/v1/characters/{id}/jobs/{job_id}
func (h *Handlers) RecordJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID, err := strconv.Atoi(vars["job_id"])
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "job_id must be an integer")
		return
	}

	var req models.RecordJobRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	job, err := h.service.RecordJob(r.Context(), vars["id"], jobID, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, job)
}

// RecordQuest marks a quest complete
// POST /api/v1/characters/{id}/quests
// Responds 201 when the quest is new and 200 when it was already recorded.
func (h *Handlers) RecordQuest(w http.ResponseWriter, r *http.Request) {
	var req models.RecordQuestRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	quest, created, err := h.service.RecordQuest(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, createdStatus(created), quest)
}

// RecordAchievement marks an achievement complete
// POST /api/v1/characters/{id}/achievements
func (h *Handlers) RecordAchievement(w http.ResponseWriter, r *http.Request) {
	var req models.RecordAchievementRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	achievement, created, err := h.service.RecordAchievement(r.Context(), mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, createdStatus(created), achievement)
}

// ListAchievements lists a character's achievements, optionally from a patch onward
// GET /api/v1/characters/{id}/achievements?since_patch=7.0
func (h *Handlers) ListAchievements(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.AchievementsSince(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("since_patch"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// SearchCharacters searches XIVAPI by character name
// GET /api/v1/search?name=&world=
func (h *Handlers) SearchCharacters(w http.ResponseWriter, r *http.Request) {
	req := &models.SearchCharactersRequest{
		Name:  r.URL.Query().Get("name"),
		World: r.URL.Query().Get("world"),
	}

	response, err := h.service.SearchCharacters(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// RateLimitStatus reports the outbound XIVAPI budget
// GET /api/v1/ratelimit
func (h *Handlers) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.service.RateLimitStatus())
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()

	statusCode := http.StatusOK

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			response.Status = models.StatusUnhealthy
			response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
			statusCode = http.StatusServiceUnavailable
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	} else {
		response.AddComponent("storage", models.StatusUnknown, "Storage not configured for health checks")
	}

	// An exhausted budget only degrades sync and lookups; stored progress is
	// still served.
	budget := h.service.RateLimitStatus()
	if budget.Allowed {
		response.AddComponent("xivapi", models.StatusHealthy, "Outbound budget available")
	} else {
		response.AddComponent("xivapi", models.StatusDegraded, "Outbound budget exhausted")
		if response.Status == models.StatusHealthy {
			response.Status = models.StatusDegraded
		}
	}
	response.AddComponentDetail("xivapi", "key", budget.Key)
	response.AddComponentDetail("xivapi", "remaining", budget.Remaining)
	response.AddComponentDetail("xivapi", "limit", budget.Limit)

	response.AddMetric("outbound_tracked_keys", budget.TrackedKeys)
	if h.inboundLimiter != nil {
		response.AddMetric("inbound_tracked_clients", h.inboundLimiter.BucketCount())
	}

	h.writeJSONResponse(w, statusCode, response)
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more can be sent.
		h.logger.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = RequestIDFromContext(r.Context())
	h.writeJSONResponse(w, statusCode, errorResp)
}

// writeServiceError maps a service error to its HTTP status. Rate limit
// errors carry a Retry-After header when the budget refills.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *tracker.ServiceError
	if !errors.As(err, &svcErr) {
		h.logger.Error("Unhandled service error", "error", err, "path", r.URL.Path)
		h.writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if svcErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"code", svcErr.Code,
			"error", svcErr,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	errorResp := models.NewErrorResponse(svcErr.Message, svcErr.Code)
	errorResp.RequestID = RequestIDFromContext(r.Context())
	if svcErr.RetryAfter > 0 {
		secs := retryAfterSeconds(svcErr.RetryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		errorResp.Details = map[string]string{"retry_after_seconds": strconv.Itoa(secs)}
	}
	h.writeJSONResponse(w, svcErr.StatusCode, errorResp)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// intParam parses an optional integer query parameter; empty is zero.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return n, nil
}
