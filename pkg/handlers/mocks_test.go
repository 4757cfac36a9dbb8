package handlers

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/services"
)

// mockThreatService implements services.ThreatService for handler tests.
type mockThreatService struct {
	createIn  *services.ThreatInput
	createRes *services.ThreatCreateResult
	createErr error

	threat  *models.Threat
	getErr  error
	updIn   *models.ThreatUpdate
	listIn  *models.ThreatFilters
	stats   *models.ThreatStatistics
	deleted []uuid.UUID
}

func (m *mockThreatService) Create(_ context.Context, in services.ThreatInput) (*services.ThreatCreateResult, error) {
	m.createIn = &in
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createRes, nil
}

func (m *mockThreatService) Get(_ context.Context, id uuid.UUID) (*models.Threat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.threat, nil
}

func (m *mockThreatService) List(_ context.Context, filters models.ThreatFilters) (*models.PageResult[*models.Threat], error) {
	m.listIn = &filters
	return models.NewPageResult([]*models.Threat{}, 0, filters.Page), nil
}

func (m *mockThreatService) Update(_ context.Context, id uuid.UUID, upd models.ThreatUpdate) (*models.Threat, error) {
	m.updIn = &upd
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.threat, nil
}

func (m *mockThreatService) Delete(_ context.Context, id uuid.UUID) error {
	if m.getErr != nil {
		return m.getErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockThreatService) Statistics(_ context.Context) (*models.ThreatStatistics, error) {
	return m.stats, nil
}

// mockThreatActionService implements services.ThreatActionService for handler tests.
type mockThreatActionService struct {
	createIn     *services.ThreatActionInput
	action       *models.ThreatAction
	err          error
	autoThreatID uuid.UUID
	autoActions  []*models.ThreatAction
	listIn       *models.ThreatActionFilters
}

func (m *mockThreatActionService) Create(_ context.Context, in services.ThreatActionInput) (*models.ThreatAction, error) {
	m.createIn = &in
	if m.err != nil {
		return nil, m.err
	}
	return m.action, nil
}

func (m *mockThreatActionService) Get(_ context.Context, id uuid.UUID) (*models.ThreatAction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.action, nil
}

func (m *mockThreatActionService) List(_ context.Context, filters models.ThreatActionFilters) (*models.PageResult[*models.ThreatAction], error) {
	m.listIn = &filters
	return models.NewPageResult[*models.ThreatAction](nil, 0, filters.Page), nil
}

func (m *mockThreatActionService) Update(_ context.Context, id uuid.UUID, upd models.ThreatActionUpdate) (*models.ThreatAction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.action, nil
}

func (m *mockThreatActionService) Delete(_ context.Context, id uuid.UUID) error {
	return m.err
}

func (m *mockThreatActionService) AutoCreate(_ context.Context, threatID uuid.UUID) ([]*models.ThreatAction, error) {
	m.autoThreatID = threatID
	if m.err != nil {
		return nil, m.err
	}
	return m.autoActions, nil
}

// mockIncidentService implements services.IncidentService for handler tests.
type mockIncidentService struct {
	createIn   *services.IncidentInput
	incident   *models.Incident
	responseIn *services.IncidentResponseInput
	response   *models.IncidentResponse
	err        error
}

func (m *mockIncidentService) Create(_ context.Context, in services.IncidentInput) (*models.Incident, error) {
	m.createIn = &in
	if m.err != nil {
		return nil, m.err
	}
	return m.incident, nil
}

func (m *mockIncidentService) Get(_ context.Context, id uuid.UUID) (*models.Incident, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.incident, nil
}

func (m *mockIncidentService) List(_ context.Context, filters models.IncidentFilters) (*models.PageResult[*models.Incident], error) {
	return models.NewPageResult[*models.Incident](nil, 0, filters.Page), nil
}

func (m *mockIncidentService) Update(_ context.Context, id uuid.UUID, upd models.IncidentUpdate) (*models.Incident, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.incident, nil
}

func (m *mockIncidentService) Delete(_ context.Context, id uuid.UUID) error {
	return m.err
}

func (m *mockIncidentService) AddResponse(_ context.Context, incidentID uuid.UUID, in services.IncidentResponseInput) (*models.IncidentResponse, error) {
	m.responseIn = &in
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockIncidentService) ListResponses(_ context.Context, incidentID uuid.UUID) ([]*models.IncidentResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*models.IncidentResponse{}, nil
}

// mockDocumentService implements services.DocumentService for handler tests.
type mockDocumentService struct {
	uploadIn      *services.UploadInput
	uploadContent string
	importIn      *services.ImportInput
	doc           *models.Document
	result        *models.DocumentLearningResult
	fileBody      string
	err           error
	listIn        *models.DocumentFilters
}

func (m *mockDocumentService) Upload(_ context.Context, in services.UploadInput) (*models.Document, error) {
	m.uploadIn = &in
	if in.Content != nil {
		b, _ := io.ReadAll(in.Content)
		m.uploadContent = string(b)
	}
	if m.err != nil {
		return nil, m.err
	}
	if in.Content == nil {
		ve := apperrors.NewValidationError()
		ve.Add("file", "The file field is required.")
		return nil, ve
	}
	return m.doc, nil
}

func (m *mockDocumentService) Import(_ context.Context, in services.ImportInput) (*models.Document, error) {
	m.importIn = &in
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

func (m *mockDocumentService) Process(_ context.Context, id uuid.UUID) (*models.DocumentLearningResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockDocumentService) Get(_ context.Context, id uuid.UUID) (*models.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.doc, nil
}

func (m *mockDocumentService) List(_ context.Context, filters models.DocumentFilters) (*models.PageResult[*models.Document], error) {
	m.listIn = &filters
	return models.NewPageResult[*models.Document](nil, 0, filters.Page), nil
}

func (m *mockDocumentService) Download(_ context.Context, id uuid.UUID) (*models.Document, io.ReadCloser, error) {
	if m.err != nil {
		return m.doc, nil, m.err
	}
	return m.doc, io.NopCloser(strings.NewReader(m.fileBody)), nil
}

func (m *mockDocumentService) Delete(_ context.Context, id uuid.UUID) error {
	return m.err
}

// mockDatabaseChecker implements DatabaseChecker.
type mockDatabaseChecker struct {
	healthy bool
}

func (m *mockDatabaseChecker) Healthy(context.Context) bool { return m.healthy }
