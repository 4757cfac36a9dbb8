package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

func newIncidentFixture(threats ...*models.Threat) (*incidentService, *mockIncidentRepo) {
	repo := newMockIncidentRepo()
	svc := NewIncidentService(repo, newMockThreatRepo(threats...), zap.NewNop()).(*incidentService)
	svc.now = fixedClock
	return svc, repo
}

func validIncidentInput(threatID uuid.UUID) IncidentInput {
	return IncidentInput{
		ThreatID:    uuidPtr(threatID),
		Title:       "Credential phishing campaign",
		Description: "Multiple users reported the same lure",
		Severity:    intPtr(6),
	}
}

func TestIncidentService_Create_Defaults(t *testing.T) {
	threat := testThreat(6, nil, nil)
	svc, _ := newIncidentFixture(threat)
	ctx := withCaller(context.Background(), "analyst-7")

	incident, err := svc.Create(ctx, validIncidentInput(threat.ID))

	require.NoError(t, err)
	assert.Equal(t, models.IncidentStatusOpen, incident.Status)
	assert.Equal(t, models.DefaultIncidentPriority, incident.Priority)
	assert.Equal(t, fixedNow, incident.ReportedAt)
	assert.Nil(t, incident.ResolvedAt)
	require.NotNil(t, incident.AssignedTo)
	assert.Equal(t, "analyst-7", *incident.AssignedTo)
}

func TestIncidentService_Create_RequiresThreat(t *testing.T) {
	threat := testThreat(6, nil, nil)
	svc, repo := newIncidentFixture(threat)

	in := validIncidentInput(threat.ID)
	in.ThreatID = nil
	_, err := svc.Create(context.Background(), in)

	ve, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "threat_id")
	assert.Empty(t, repo.incidents, "no placeholder threat or incident is created")

	in.ThreatID = uuidPtr(uuid.New())
	_, err = svc.Create(context.Background(), in)
	ve, ok = apperrors.AsValidation(err)
	require.True(t, ok)
	assert.Contains(t, ve.Fields, "threat_id")
}

func TestIncidentService_Create_Validation(t *testing.T) {
	threat := testThreat(6, nil, nil)
	svc, repo := newIncidentFixture(threat)

	_, err := svc.Create(context.Background(), IncidentInput{
		ThreatID: uuidPtr(threat.ID),
		Severity: intPtr(0),
		Status:   "archived",
		Priority: intPtr(9),
	})

	ve, ok := apperrors.AsValidation(err)
	require.True(t, ok)
	for _, field := range []string{"title", "description", "severity", "status", "priority"} {
		assert.Contains(t, ve.Fields, field)
	}
	assert.Empty(t, repo.incidents)
}

func TestIncidentService_Update_ResolvedStampsResolvedAt(t *testing.T) {
	threat := testThreat(6, nil, nil)
	svc, _ := newIncidentFixture(threat)
	incident, err := svc.Create(context.Background(), validIncidentInput(threat.ID))
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), incident.ID, models.IncidentUpdate{
		Status: strPtr(models.IncidentStatusResolved),
		Title:  strPtr("Phishing campaign contained"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Phishing campaign contained", updated.Title)
	require.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, fixedNow, *updated.ResolvedAt)
}

func TestIncidentService_GetWithRelations(t *testing.T) {
	threat := testThreat(6, nil, nil)
	svc, _ := newIncidentFixture(threat)
	incident, err := svc.Create(context.Background(), validIncidentInput(threat.ID))
	require.NoError(t, err)

	_, err = svc.AddResponse(context.Background(), incident.ID, IncidentResponseInput{
		Description: "Reset credentials for affected users",
		ActionTaken: models.JSONMap{"accounts": float64(12)},
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), incident.ID)

	require.NoError(t, err)
	require.NotNil(t, got.Threat)
	assert.Equal(t, threat.ID, got.Threat.ID)
	require.Len(t, got.Responses, 1)
	assert.Equal(t, models.ResponseTypeManual, got.Responses[0].ResponseType)
	assert.Equal(t, models.ResponseStatusOpen, got.Responses[0].Status)
}

func TestIncidentService_AddResponse(t *testing.T) {
	threat := testThreat(6, nil, nil)
	svc, _ := newIncidentFixture(threat)
	incident, err := svc.Create(context.Background(), validIncidentInput(threat.ID))
	require.NoError(t, err)

	t.Run("validation", func(t *testing.T) {
		_, err := svc.AddResponse(context.Background(), incident.ID, IncidentResponseInput{ResponseType: "magic"})
		ve, ok := apperrors.AsValidation(err)
		require.True(t, ok)
		assert.Contains(t, ve.Fields, "response_type")
		assert.Contains(t, ve.Fields, "description")
	})

	t.Run("unknown incident", func(t *testing.T) {
		_, err := svc.AddResponse(context.Background(), uuid.New(), IncidentResponseInput{Description: "x"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("records creator", func(t *testing.T) {
		resp, err := svc.AddResponse(withCaller(context.Background(), "responder-1"), incident.ID, IncidentResponseInput{
			ResponseType: models.ResponseTypeAutomated,
			Description:  "Blocked sender domain",
			Status:       models.ResponseStatusCompleted,
		})
		require.NoError(t, err)
		require.NotNil(t, resp.CreatedBy)
		assert.Equal(t, "responder-1", *resp.CreatedBy)
	})

	responses, err := svc.ListResponses(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Len(t, responses, 1)

	_, err = svc.ListResponses(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
