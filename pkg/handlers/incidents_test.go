package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

func TestIncidentHandler_Create(t *testing.T) {
	threatID := uuid.New()
	svc := &mockIncidentService{incident: &models.Incident{ID: uuid.New(), ThreatID: threatID, Status: models.IncidentStatusOpen}}

	rec := httptest.NewRecorder()
	NewIncidentHandler(svc, zap.NewNop()).Create(rec, jsonRequest(http.MethodPost, "/api/incidents",
		`{"threat_id":"`+threatID.String()+`","title":"Phishing wave","description":"d","severity":6,"priority":"2"}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	env, _ := decodeEnvelope(t, rec)
	assert.Equal(t, "Incident created successfully", env.Message)

	require.NotNil(t, svc.createIn)
	assert.Equal(t, threatID, *svc.createIn.ThreatID)
	assert.Equal(t, 6, *svc.createIn.Severity)
	assert.Equal(t, 2, *svc.createIn.Priority)
}

func TestIncidentHandler_Create_WithoutThreat(t *testing.T) {
	ve := apperrors.NewValidationError()
	ve.Add("threat_id", "The threat_id field is required.")
	svc := &mockIncidentService{err: ve}

	rec := httptest.NewRecorder()
	NewIncidentHandler(svc, zap.NewNop()).Create(rec, jsonRequest(http.MethodPost, "/api/incidents",
		`{"title":"Orphan","description":"d","severity":3}`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "The threat_id field is required.")
}

func TestIncidentHandler_AddResponse(t *testing.T) {
	id := uuid.New()
	svc := &mockIncidentService{response: &models.IncidentResponse{ID: uuid.New(), IncidentID: id}}

	req := jsonRequest(http.MethodPost, "/api/incidents/"+id.String()+"/responses",
		`{"description":"Blocked sender","action_taken":{"domain":"evil.example"}}`)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	NewIncidentHandler(svc, zap.NewNop()).AddResponse(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.responseIn)
	assert.Equal(t, "evil.example", svc.responseIn.ActionTaken.String("domain"))
}

func TestIncidentHandler_AddResponse_UnknownIncident(t *testing.T) {
	id := uuid.New()
	svc := &mockIncidentService{err: apperrors.ErrNotFound}

	req := jsonRequest(http.MethodPost, "/api/incidents/"+id.String()+"/responses", `{"description":"x"}`)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	NewIncidentHandler(svc, zap.NewNop()).AddResponse(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incident not found")
}

func TestIncidentHandler_Update(t *testing.T) {
	id := uuid.New()
	svc := &mockIncidentService{incident: &models.Incident{ID: id, Status: models.IncidentStatusResolved}}

	req := jsonRequest(http.MethodPut, "/api/incidents/"+id.String(), `{"status":"resolved"}`)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	NewIncidentHandler(svc, zap.NewNop()).Update(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env, _ := decodeEnvelope(t, rec)
	assert.Equal(t, "Incident updated successfully", env.Message)
}
