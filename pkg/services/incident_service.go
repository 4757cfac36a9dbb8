package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/auth"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/repositories"
)

// IncidentInput is the caller-supplied part of a new incident.
// ThreatID is required: incidents always hang off an existing threat.
type IncidentInput struct {
	ThreatID    *uuid.UUID
	Title       string
	Description string
	Severity    *int
	Status      string // empty means open
	Priority    *int   // nil means DefaultIncidentPriority
	AssignedTo  *string
	Metadata    models.JSONMap
}

// IncidentResponseInput is the caller-supplied part of an incident response.
type IncidentResponseInput struct {
	ResponseType string // empty means manual
	Description  string
	ActionTaken  models.JSONMap
	Status       string // empty means open
	Metadata     models.JSONMap
}

// IncidentService manages incidents and their responses.
type IncidentService interface {
	Create(ctx context.Context, in IncidentInput) (*models.Incident, error)

	// Get returns an incident with its threat and responses.
	Get(ctx context.Context, id uuid.UUID) (*models.Incident, error)

	List(ctx context.Context, filters models.IncidentFilters) (*models.PageResult[*models.Incident], error)
	Update(ctx context.Context, id uuid.UUID, upd models.IncidentUpdate) (*models.Incident, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddResponse(ctx context.Context, incidentID uuid.UUID, in IncidentResponseInput) (*models.IncidentResponse, error)
	ListResponses(ctx context.Context, incidentID uuid.UUID) ([]*models.IncidentResponse, error)
}

type incidentService struct {
	incidentRepo repositories.IncidentRepository
	threatRepo   repositories.ThreatRepository
	logger       *zap.Logger
	now          func() time.Time
}

// NewIncidentService creates an IncidentService.
func NewIncidentService(incidentRepo repositories.IncidentRepository, threatRepo repositories.ThreatRepository, logger *zap.Logger) IncidentService {
	return &incidentService{
		incidentRepo: incidentRepo,
		threatRepo:   threatRepo,
		logger:       logger.Named("incident-service"),
		now:          time.Now,
	}
}

var _ IncidentService = (*incidentService)(nil)

func checkPriority(v *apperrors.ValidationError, priority *int) {
	if priority != nil && (*priority < models.MinIncidentPriority || *priority > models.MaxIncidentPriority) {
		v.Add("priority", fmt.Sprintf("The priority must be between %d and %d.", models.MinIncidentPriority, models.MaxIncidentPriority))
	}
}

func (s *incidentService) Create(ctx context.Context, in IncidentInput) (*models.Incident, error) {
	v := apperrors.NewValidationError()
	requireText(v, "title", in.Title)
	checkMaxLength(v, "title", in.Title, maxStringLength)
	requireText(v, "description", in.Description)
	checkSeverity(v, in.Severity, true)
	if in.Status != "" && !models.ValidIncidentStatus(in.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	checkPriority(v, in.Priority)
	threat, err := checkThreatExists(ctx, s.threatRepo, v, in.ThreatID)
	if err != nil {
		return nil, err
	}
	if v.HasErrors() {
		return nil, v
	}

	now := s.now().UTC()
	incident := &models.Incident{
		ThreatID:    threat.ID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      in.Status,
		Priority:    models.DefaultIncidentPriority,
		Severity:    *in.Severity,
		ReportedAt:  now,
		AssignedTo:  normalizeOptional(in.AssignedTo),
		Metadata:    in.Metadata,
	}
	if incident.Status == "" {
		incident.Status = models.IncidentStatusOpen
	}
	if in.Priority != nil {
		incident.Priority = *in.Priority
	}
	if incident.AssignedTo == nil {
		incident.AssignedTo = auth.UserRefFromContext(ctx)
	}
	if incident.Status == models.IncidentStatusResolved {
		incident.ResolvedAt = &now
	}

	if err := s.incidentRepo.Create(ctx, incident); err != nil {
		s.logger.Error("Failed to create incident",
			zap.String("threat_id", threat.ID.String()),
			zap.Error(err))
		return nil, err
	}
	return incident, nil
}

func (s *incidentService) Get(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident, err := s.incidentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	threat, err := s.threatRepo.GetByID(ctx, incident.ThreatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident threat: %w", err)
	}
	responses, err := s.incidentRepo.ListResponses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident responses: %w", err)
	}

	incident.Threat = threat
	incident.Responses = nonNil(responses)
	return incident, nil
}

func (s *incidentService) List(ctx context.Context, filters models.IncidentFilters) (*models.PageResult[*models.Incident], error) {
	incidents, total, err := s.incidentRepo.List(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list incidents", zap.Error(err))
		return nil, err
	}
	return models.NewPageResult(incidents, total, filters.Page), nil
}

func (s *incidentService) Update(ctx context.Context, id uuid.UUID, upd models.IncidentUpdate) (*models.Incident, error) {
	v := apperrors.NewValidationError()
	if upd.Title != nil {
		requireText(v, "title", *upd.Title)
		checkMaxLength(v, "title", *upd.Title, maxStringLength)
	}
	if upd.Description != nil {
		requireText(v, "description", *upd.Description)
	}
	checkSeverity(v, upd.Severity, false)
	if upd.Status != nil && !models.ValidIncidentStatus(*upd.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	checkPriority(v, upd.Priority)
	if v.HasErrors() {
		return nil, v
	}

	incident, err := s.incidentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		incident.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		incident.Description = *upd.Description
	}
	if upd.Severity != nil {
		incident.Severity = *upd.Severity
	}
	if upd.Priority != nil {
		incident.Priority = *upd.Priority
	}
	if upd.Status != nil {
		if *upd.Status == models.IncidentStatusResolved && incident.Status != models.IncidentStatusResolved {
			resolvedAt := s.now().UTC()
			incident.ResolvedAt = &resolvedAt
		}
		incident.Status = *upd.Status
	}

	if err := s.incidentRepo.Update(ctx, incident); err != nil {
		s.logger.Error("Failed to update incident",
			zap.String("incident_id", id.String()),
			zap.Error(err))
		return nil, err
	}
	return incident, nil
}

func (s *incidentService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.incidentRepo.Delete(ctx, id)
}

func (s *incidentService) AddResponse(ctx context.Context, incidentID uuid.UUID, in IncidentResponseInput) (*models.IncidentResponse, error) {
	v := apperrors.NewValidationError()
	if in.ResponseType != "" && !models.ValidResponseType(in.ResponseType) {
		v.Add("response_type", "The selected response_type is invalid.")
	}
	requireText(v, "description", in.Description)
	if in.Status != "" && !models.ValidResponseStatus(in.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	if v.HasErrors() {
		return nil, v
	}

	response := &models.IncidentResponse{
		IncidentID:   incidentID,
		ResponseType: in.ResponseType,
		Description:  in.Description,
		ActionTaken:  in.ActionTaken,
		Status:       in.Status,
		CreatedBy:    auth.UserRefFromContext(ctx),
		Metadata:     in.Metadata,
	}
	if response.ResponseType == "" {
		response.ResponseType = models.ResponseTypeManual
	}
	if response.Status == "" {
		response.Status = models.ResponseStatusOpen
	}

	// A missing incident surfaces as ErrNotFound from the foreign key.
	if err := s.incidentRepo.CreateResponse(ctx, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (s *incidentService) ListResponses(ctx context.Context, incidentID uuid.UUID) ([]*models.IncidentResponse, error) {
	if _, err := s.incidentRepo.GetByID(ctx, incidentID); err != nil {
		return nil, err
	}
	responses, err := s.incidentRepo.ListResponses(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	return nonNil(responses), nil
}
