package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/services"
)

const actionNotFound = "Threat action not found"

// CreateThreatActionRequest for POST /api/threat-actions
type CreateThreatActionRequest struct {
	ThreatID      string          `json:"threat_id"`
	ActionType    string          `json:"action_type"`
	ActionDetails json.RawMessage `json:"action_details"`
	Status        string          `json:"status"`
	Metadata      json.RawMessage `json:"metadata"`
}

// UpdateThreatActionRequest for PUT /api/threat-actions/{id}
type UpdateThreatActionRequest struct {
	Status        *string         `json:"status"`
	ActionDetails json.RawMessage `json:"action_details"`
	Result        json.RawMessage `json:"result"`
	Metadata      json.RawMessage `json:"metadata"`
}

// AutoCreateRequest for POST /api/threat-actions/auto-create
type AutoCreateRequest struct {
	ThreatID string `json:"threat_id"`
}

// ThreatActionHandler handles threat action HTTP requests.
type ThreatActionHandler struct {
	actionService services.ThreatActionService
	logger        *zap.Logger
}

// NewThreatActionHandler creates a new threat action handler.
func NewThreatActionHandler(actionService services.ThreatActionService, logger *zap.Logger) *ThreatActionHandler {
	return &ThreatActionHandler{
		actionService: actionService,
		logger:        logger,
	}
}

// RegisterRoutes registers the threat action handler's routes on the given mux.
func (h *ThreatActionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, scope ScopeMiddleware) {
	wrap := protected(authMiddleware, scope)
	base := "/api/threat-actions"

	mux.HandleFunc("GET "+base, wrap(h.List))
	mux.HandleFunc("POST "+base, wrap(h.Create))
	mux.HandleFunc("POST "+base+"/auto-create", wrap(h.AutoCreate))
	mux.HandleFunc("GET "+base+"/{id}", wrap(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", wrap(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", wrap(h.Delete))
}

// parseThreatRef parses a threat_id body field. Blank gives nil; a malformed id
// cannot exist, so it is recorded on v as an invalid selection.
func parseThreatRef(v *apperrors.ValidationError, raw string) *uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		v.Add("threat_id", "The selected threat_id is invalid.")
		return nil
	}
	return &id
}

// List handles GET /api/threat-actions
func (h *ThreatActionHandler) List(w http.ResponseWriter, r *http.Request) {
	q, ok := readListQuery(w, r, h.logger, "threat_id", "status", "action_type")
	if !ok {
		return
	}

	page, err := h.actionService.List(r.Context(), models.ThreatActionFilters{
		Page:       parsePage(r),
		ThreatID:   q.uuidPtr("threat_id"),
		Status:     q.get("status"),
		ActionType: q.get("action_type"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, actionNotFound, "Failed to list threat actions")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, page, "")
}

// Create handles POST /api/threat-actions
func (h *ThreatActionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateThreatActionRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	threatID := parseThreatRef(v, req.ThreatID)
	details := decodeObject(v, "action_details", req.ActionDetails)
	metadata := decodeObject(v, "metadata", req.Metadata)
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, actionNotFound, "Failed to create threat action")
		return
	}

	action, err := h.actionService.Create(r.Context(), services.ThreatActionInput{
		ThreatID:      threatID,
		ActionType:    req.ActionType,
		ActionDetails: details,
		Status:        req.Status,
		Metadata:      metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, actionNotFound, "Failed to create threat action")
		return
	}
	writeSuccess(w, h.logger, http.StatusCreated, action, "Threat action created successfully")
}

// AutoCreate handles POST /api/threat-actions/auto-create
func (h *ThreatActionHandler) AutoCreate(w http.ResponseWriter, r *http.Request) {
	var req AutoCreateRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	threatID := parseThreatRef(v, req.ThreatID)
	if threatID == nil && !v.HasErrors() {
		v.Add("threat_id", "The threat_id field is required.")
	}
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, threatNotFound, "Failed to auto-create threat actions")
		return
	}

	actions, err := h.actionService.AutoCreate(r.Context(), *threatID)
	if err != nil {
		writeServiceError(w, h.logger, err, threatNotFound, "Failed to auto-create threat actions")
		return
	}

	message := fmt.Sprintf("%d threat %s created automatically", len(actions), actionNoun(len(actions)))
	writeSuccess(w, h.logger, http.StatusCreated, actions, message)
}

// actionNoun returns "action" or "actions" for n.
func actionNoun(n int) string {
	if n == 1 {
		return "action"
	}
	return inflection.Plural("action")
}

// Get handles GET /api/threat-actions/{id}
func (h *ThreatActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, actionNotFound, h.logger)
	if !ok {
		return
	}

	action, err := h.actionService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, actionNotFound, "Failed to load threat action")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, action, "")
}

// Update handles PUT /api/threat-actions/{id}
func (h *ThreatActionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, actionNotFound, h.logger)
	if !ok {
		return
	}

	var req UpdateThreatActionRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	v := apperrors.NewValidationError()
	upd := models.ThreatActionUpdate{
		Status:        req.Status,
		ActionDetails: decodeObject(v, "action_details", req.ActionDetails),
		Result:        decodeObject(v, "result", req.Result),
		Metadata:      decodeObject(v, "metadata", req.Metadata),
	}
	if v.HasErrors() {
		writeServiceError(w, h.logger, v, actionNotFound, "Failed to update threat action")
		return
	}

	action, err := h.actionService.Update(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, h.logger, err, actionNotFound, "Failed to update threat action")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, action, "Threat action updated successfully")
}

// Delete handles DELETE /api/threat-actions/{id}
func (h *ThreatActionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseResourceID(w, r, actionNotFound, h.logger)
	if !ok {
		return
	}

	if err := h.actionService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, err, actionNotFound, "Failed to delete threat action")
		return
	}
	writeSuccess(w, h.logger, http.StatusOK, nil, "Threat action deleted successfully")
}
