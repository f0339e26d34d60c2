// Package httpapi provides the REST HTTP adapter for the engine surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tillerhq/tiller/internal/adapters/server/common"
	"github.com/tillerhq/tiller/internal/app"
	"github.com/tillerhq/tiller/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// errInvalidRequest marks malformed request payloads for error mapping.
var errInvalidRequest = errors.New("invalid request")

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	engine common.EngineService
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter over the engine service.
func NewHandler(engine common.EngineService) *Handler {
	return &Handler{engine: engine}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	segments := strings.Split(path, "/")

	switch {
	case path == "graph":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGraph(w, r)
	case len(segments) == 3 && segments[0] == "items" && segments[2] == "impact":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleImpact(w, r, segments[1])
	case len(segments) == 3 && segments[0] == "items" && segments[2] == "dependencies":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddDependency(w, r, segments[1])
	case len(segments) == 4 && segments[0] == "items" && segments[2] == "dependencies":
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w, http.MethodDelete)
			return
		}
		h.handleRemoveDependency(w, r, segments[1], segments[3])
	case len(segments) == 3 && segments[0] == "teams" && segments[2] == "capacity":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleCapacity(w, r, segments[1])
	case len(segments) == 4 && segments[0] == "teams" && segments[2] == "rebalance" && segments[3] == "plan":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRebalancePlan(w, r, segments[1])
	case len(segments) == 4 && segments[0] == "teams" && segments[2] == "rebalance" && segments[3] == "apply":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRebalanceApply(w, r, segments[1])
	case len(segments) == 4 && segments[0] == "teams" && segments[2] == "rebalance" && segments[3] == "history":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleRebalanceHistory(w, r, segments[1])
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleGraph serves GET `/graph?scope_id=`.
func (h *Handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	scopeID := strings.TrimSpace(r.URL.Query().Get("scope_id"))
	if scopeID == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "scope_id is required",
		})
		return
	}
	result, err := h.engine.GetDependencyGraph(r.Context(), scopeID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleImpact serves GET `/items/{id}/impact`.
func (h *Handler) handleImpact(w http.ResponseWriter, r *http.Request, itemID string) {
	impact, err := h.engine.GetImpact(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

// handleAddDependency serves POST `/items/{id}/dependencies`.
func (h *Handler) handleAddDependency(w http.ResponseWriter, r *http.Request, itemID string) {
	var req struct {
		DependsOn string `json:"depends_on"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if strings.TrimSpace(req.DependsOn) == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "depends_on is required",
		})
		return
	}
	if _, err := h.engine.AddDependency(r.Context(), itemID, req.DependsOn); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveDependency serves DELETE `/items/{id}/dependencies/{depID}`.
func (h *Handler) handleRemoveDependency(w http.ResponseWriter, r *http.Request, itemID, dependsOnID string) {
	if _, err := h.engine.RemoveDependency(r.Context(), itemID, dependsOnID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCapacity serves GET `/teams/{id}/capacity?window_start=&window_end=`.
func (h *Handler) handleCapacity(w http.ResponseWriter, r *http.Request, teamID string) {
	start, err := parseTimeParam(r.URL.Query().Get("window_start"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "window_start must be RFC3339",
		})
		return
	}
	end, err := parseTimeParam(r.URL.Query().Get("window_end"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "window_end must be RFC3339",
		})
		return
	}
	snapshot, err := h.engine.GetCapacitySnapshot(r.Context(), teamID, start, end)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleRebalancePlan serves POST `/teams/{id}/rebalance/plan`.
func (h *Handler) handleRebalancePlan(w http.ResponseWriter, r *http.Request, teamID string) {
	var req struct {
		SprintID string `json:"sprint_id"`
	}
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	plan, err := h.engine.GenerateRebalancePlan(r.Context(), teamID, strings.TrimSpace(req.SprintID))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleRebalanceApply serves POST `/teams/{id}/rebalance/apply`.
func (h *Handler) handleRebalanceApply(w http.ResponseWriter, r *http.Request, teamID string) {
	var req struct {
		Plan        domain.RebalancePlan `json:"plan"`
		TriggeredBy string               `json:"triggered_by"`
		SprintID    string               `json:"sprint_id"`
	}
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if strings.TrimSpace(req.TriggeredBy) == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "triggered_by is required",
		})
		return
	}
	record, err := h.engine.ApplyRebalancePlan(r.Context(), teamID, req.Plan, strings.TrimSpace(req.TriggeredBy), strings.TrimSpace(req.SprintID))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleRebalanceHistory serves GET `/teams/{id}/rebalance/history?limit=`.
func (h *Handler) handleRebalanceHistory(w http.ResponseWriter, r *http.Request, teamID string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, APIError{
				Code:    "invalid_request",
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}
	records, err := h.engine.GetRebalanceHistory(r.Context(), teamID, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
	})
}

// parseTimeParam parses an optional RFC3339 query parameter.
func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, app.ErrCycleDetected):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "cycle_detected",
			Message: err.Error(),
			Hint:    "The dependency would make this item transitively depend on itself.",
		})
	case errors.Is(err, app.ErrInvalidPlan):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_plan",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrNotFound), errors.Is(err, domain.ErrDependencyNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, domain.ErrDependencyExists),
		errors.Is(err, domain.ErrSelfDependency),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidID):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(errInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", errInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(errInvalidRequest, err))
}
