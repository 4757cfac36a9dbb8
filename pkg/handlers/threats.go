package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/services"
)

const threatNotFound = "Threat not found"

// CreateThreatRequest for POST /api/threats.
// Severity and metadata stay raw so malformed values become field errors.
type CreateThreatRequest struct {
	Type           string          `json:"type"`
	Severity       json.RawMessage `json:"severity"`
	SourceIP       *string         `json:"source_ip"`
	TargetIP       *string         `json:"target_ip"`
	Description    string          `json:"description"`
	Classification *string         `json:"classification"`
	Metadata       json.RawMessage `json:"metadata"`
}

// UpdateThreatRequest for PUT /api/threats/{id}
type UpdateThreatRequest struct {
	Status      *string         `json:"status"`
	Severity    json.RawMessage `json:"severity"`
	Description *string         `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
}

// ThreatHandler handles threat HTTP requests.
type ThreatHandler struct {
	threatService services.ThreatService
	logger        *zap.Logger
}

// NewThreatHandler creates a new threat handler.
func NewThreatHandler(threatService services.ThreatService, logger *zap.Logger) *ThreatHandler {
	return &ThreatHandler{
		threatService: threatService,
		logger:        logger,
	}
}

// RegisterRoutes registers the threat handler's routes on the given mux.
func (h *ThreatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	wrap := protected(authMiddleware, scope)
	base := "/api/threats"

	mux.HandleFunc("GET "+base, wrap(h.List))
	mux.HandleFunc("POST "+base, wrap(h.Create))
	mux.HandleFunc("GET "+base+"/statistics", wrap(h.Statistics))
	mux.HandleFunc("GET "+base+"/{id}", wrap(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", wrap(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", wrap(h.Delete))
}

// List handles GET /api/threats
func (h *ThreatHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := readListQuery(w, r, h.logger, "status", "severity", "type", "search")
	if !ok {
		return
	}

	page, err := h.threatService.List(r.Context(), models.ThreatFilters{
		Page:     parsePage(r),
		Status:   q.get("status"),
		Severity: q.intPtr("severity"),
		Type:     q.get("type"),
		Search:   q.get("search"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to list threats")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, page, "")
}

// Create handles POST /api/threats
func (h *ThreatHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateThreatRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	metadata := decodeObject(v, "metadata", req.Metadata)
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, threatNotFound, "Failed to record threat")
		return
	}

	result, err := h.threatService.Create(r.Context(), services.ThreatInput{
		Type:           req.Type,
		Severity:       decodeInt(req.Severity),
		SourceIP:       req.SourceIP,
		TargetIP:       req.TargetIP,
		Description:    req.Description,
		Classification: req.Classification,
		Metadata:       metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to record threat")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, result.Threat, "Threat detected and recorded successfully")
}

// Statistics handles GET /api/threats/statistics
func (h *ThreatHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.threatService.Statistics(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to compute threat statistics")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, stats, "")
}

// Get handles GET /api/threats/{id}
func (h *ThreatHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, threatNotFound, h.logger)
	if !ok {
		return
	}

	threat, err := h.threatService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to load threat")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, threat, "")
}

// Update handles PUT /api/threats/{id}
func (h *ThreatHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, threatNotFound, h.logger)
	if !ok {
		return
	}

	var req UpdateThreatRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	metadata := decodeObject(v, "metadata", req.Metadata)
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, threatNotFound, "Failed to update threat")
		return
	}

	threat, err := h.threatService.Update(r.Context(), id, models.ThreatUpdate{
		Status:      req.Status,
		Severity:    decodeInt(req.Severity),
		Description: req.Description,
		Metadata:    metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to update threat")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, threat, "Threat updated successfully")
}

// Delete handles DELETE /api/threats/{id}
func (h *ThreatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, threatNotFound, h.logger)
	if !ok {
		return
	}

	if err := h.threatService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to delete threat")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, nil, "Threat deleted successfully")
}
