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

const incidentNotFound = "Incident not found"

// CreateIncidentRequest for POST /api/incidents
type CreateIncidentRequest struct {
	ThreatID    string          `json:"threat_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    json.RawMessage `json:"severity"`
	Status      string          `json:"status"`
	Priority    json.RawMessage `json:"priority"`
	AssignedTo  *string         `json:"assigned_to"`
	Metadata    json.RawMessage `json:"metadata"`
}

// UpdateIncidentRequest for PUT /api/incidents/{id}
type UpdateIncidentRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Severity    json.RawMessage `json:"severity"`
	Status      *string         `json:"status"`
	Priority    json.RawMessage `json:"priority"`
}

// CreateIncidentResponseRequest for POST /api/incidents/{id}/responses
type CreateIncidentResponseRequest struct {
	ResponseType string          `json:"response_type"`
	Description  string          `json:"description"`
	ActionTaken  json.RawMessage `json:"action_taken"`
	Status       string          `json:"status"`
	Metadata     json.RawMessage `json:"metadata"`
}

// IncidentHandler handles incident HTTP requests.
type IncidentHandler struct {
	incidentService services.IncidentService
	logger          *zap.Logger
}

// NewIncidentHandler creates a new incident handler.
func NewIncidentHandler(incidentService services.IncidentService, logger *zap.Logger) *IncidentHandler {
	return &IncidentHandler{
		incidentService: incidentService,
		logger:          logger,
	}
}

// RegisterRoutes registers the incident handler's routes on the given mux.
func (h *IncidentHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	wrap := protected(authMiddleware, scope)
	base := "/api/incidents"

	mux.HandleFunc("GET "+base, wrap(h.List))
	mux.HandleFunc("POST "+base, wrap(h.Create))
	mux.HandleFunc("GET "+base+"/{id}", wrap(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", wrap(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", wrap(h.Delete))
	mux.HandleFunc("GET "+base+"/{id}/responses", wrap(h.ListResponses))
	mux.HandleFunc("POST "+base+"/{id}/responses", wrap(h.AddResponse))
}

// List handles GET /api/incidents
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := readListQuery(w, r, h.logger, "status", "search")
	if !ok {
		return
	}

	page, err := h.incidentService.List(r.Context(), models.IncidentFilters{
		Page:   parsePage(r),
		Status: q.get("status"),
		Search: q.get("search"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to list incidents")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, page, "")
}

// Create handles POST /api/incidents
func (h *IncidentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	threatID := parseThreatRef(v, req.ThreatID)
	metadata := decodeObject(v, "metadata", req.Metadata)
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, incidentNotFound, "Failed to create incident")
		return
	}

	incident, err := h.incidentService.Create(r.Context(), services.IncidentInput{
		ThreatID:    threatID,
		Title:       req.Title,
		Description: req.Description,
		Severity:    decodeInt(req.Severity),
		Status:      req.Status,
		Priority:    decodeInt(req.Priority),
		AssignedTo:  req.AssignedTo,
		Metadata:    metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to create incident")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, incident, "Incident created successfully")
}

// Get handles GET /api/incidents/{id}
func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, incidentNotFound, h.logger)
	if !ok {
		return
	}

	incident, err := h.incidentService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to load incident")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, incident, "")
}

// Update handles PUT /api/incidents/{id}
func (h *IncidentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, incidentNotFound, h.logger)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	incident, err := h.incidentService.Update(r.Context(), id, models.IncidentUpdate{
		Title:       req.Title,
		Description: req.Description,
		Severity:    decodeInt(req.Severity),
		Status:      req.Status,
		Priority:    decodeInt(req.Priority),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to update incident")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, incident, "Incident updated successfully")
}

// Delete handles DELETE /api/incidents/{id}
func (h *IncidentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, incidentNotFound, h.logger)
	if !ok {
		return
	}

	if err := h.incidentService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to delete incident")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, nil, "Incident deleted successfully")
}

// ListResponses handles GET /api/incidents/{id}/responses
func (h *IncidentHandler) ListResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, incidentNotFound, h.logger)
	if !ok {
		return
	}

	responses, err := h.incidentService.ListResponses(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to list incident responses")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, responses, "")
}

// AddResponse handles POST /api/incidents/{id}/responses
func (h *IncidentHandler) AddResponse(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, incidentNotFound, h.logger)
	if !ok {
		return
	}

	var req CreateIncidentResponseRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	in := services.IncidentResponseInput{
		ResponseType: req.ResponseType,
		Description:  req.Description,
		ActionTaken:  decodeObject(v, "action_taken", req.ActionTaken),
		Status:       req.Status,
		Metadata:     decodeObject(v, "metadata", req.Metadata),
	}
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, incidentNotFound, "Failed to record incident response")
		return
	}

	response, err := h.incidentService.AddResponse(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err, incidentNotFound, "Failed to record incident response")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, response, "Incident response recorded successfully")
}
