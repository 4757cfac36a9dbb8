package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/apperrors"
	"github.com/sentinelai/sentinel-engine/pkg/events"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/repositories"
)

// ThreatActionInput is the caller-supplied part of a manually created action.
type ThreatActionInput struct {
	ThreatID      *uuid.UUID
	ActionType    string
	ActionDetails models.JSONMap
	Status        string // empty means pending
	Metadata      models.JSONMap
}

// ThreatActionService manages remediation actions.
type ThreatActionService interface {
	Create(ctx context.Context, in ThreatActionInput) (*models.ThreatAction, error)

	// Get returns an action with its threat attached.
	Get(ctx context.Context, id uuid.UUID) (*models.ThreatAction, error)

	List(ctx context.Context, filters models.ThreatActionFilters) (*models.PageResult[*models.ThreatAction], error)

	// Update applies a partial update. Moving into completed or failed stamps executed_at.
	Update(ctx context.Context, id uuid.UUID, upd models.ThreatActionUpdate) (*models.ThreatAction, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// AutoCreate generates the severity-driven actions for an existing threat.
	// Unlike the intake path, a failed write fails the whole call.
	AutoCreate(ctx context.Context, threatID uuid.UUID) ([]*models.ThreatAction, error)
}

type threatActionService struct {
	actionRepo repositories.ThreatActionRepository
	threatRepo repositories.ThreatRepository
	generator  ActionGenerator
	publisher  events.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewThreatActionService creates a ThreatActionService.
func NewThreatActionService(
	actionRepo repositories.ThreatActionRepository,
	threatRepo repositories.ThreatRepository,
	generator ActionGenerator,
	publisher events.Publisher,
	logger *zap.Logger,
) ThreatActionService {
	return &threatActionService{
		actionRepo: actionRepo,
		threatRepo: threatRepo,
		generator:  generator,
		publisher:  publisher,
		logger:     logger.Named("threat-action-service"),
		now:        time.Now,
	}
}

var _ ThreatActionService = (*threatActionService)(nil)

// checkThreatExists records a validation problem when threatID is missing or unknown.
// It returns the threat when found.
func checkThreatExists(ctx context.Context, repo repositories.ThreatRepository, v *apperrors.ValidationError, threatID *uuid.UUID) (*models.Threat, error) {
	if threatID == nil || *threatID == uuid.Nil {
		v.Add("threat_id", "The threat_id field is required.")
		return nil, nil
	}
	threat, err := repo.GetByID(ctx, *threatID)
	if errors.Is(err, apperrors.ErrNotFound) {
		v.Add("threat_id", "The selected threat_id is invalid.")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up threat: %w", err)
	}
	return threat, nil
}

func (s *threatActionService) Create(ctx context.Context, in ThreatActionInput) (*models.ThreatAction, error) {
	v := apperrors.NewValidationError()
	if in.ActionType == "" {
		v.Add("action_type", "The action_type field is required.")
	} else if !models.ValidActionType(in.ActionType) {
		v.Add("action_type", "The selected action_type is invalid.")
	}
	if in.Status != "" && !models.ValidActionStatus(in.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	threat, err := checkThreatExists(ctx, s.threatRepo, v, in.ThreatID)
	if err != nil {
		return nil, err
	}
	if v.HasErrors() {
		return nil, v
	}

	action := &models.ThreatAction{
		ThreatID:      threat.ID,
		ActionType:    in.ActionType,
		ActionDetails: in.ActionDetails,
		Status:        in.Status,
		Metadata:      in.Metadata,
	}
	if action.Status == "" {
		action.Status = models.ActionStatusPending
	}
	if models.IsTerminalActionStatus(action.Status) {
		executedAt := s.now().UTC()
		action.ExecutedAt = &executedAt
	}

	if err := s.actionRepo.Create(ctx, action); err != nil {
		s.logger.Error("Failed to create threat action",
			zap.String("threat_id", threat.ID.String()),
			zap.Error(err))
		return nil, err
	}
	action.Threat = threat

	s.publish(ctx, action)
	return action, nil
}

func (s *threatActionService) Get(ctx context.Context, id uuid.UUID) (*models.ThreatAction, error) {
	action, err := s.actionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	threat, err := s.threatRepo.GetByID(ctx, action.ThreatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action threat: %w", err)
	}
	action.Threat = threat
	return action, nil
}

func (s *threatActionService) List(ctx context.Context, filters models.ThreatActionFilters) (*models.PageResult[*models.ThreatAction], error) {
	actions, total, err := s.actionRepo.List(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list threat actions", zap.Error(err))
		return nil, err
	}
	return models.NewPageResult(actions, total, filters.Page), nil
}

func (s *threatActionService) Update(ctx context.Context, id uuid.UUID, upd models.ThreatActionUpdate) (*models.ThreatAction, error) {
	if upd.Status != nil && !models.ValidActionStatus(*upd.Status) {
		v := apperrors.NewValidationError()
		v.Add("status", "The selected status is invalid.")
		return nil, v
	}

	action, err := s.actionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		if models.IsTerminalActionStatus(*upd.Status) {
			executedAt := s.now().UTC()
			action.ExecutedAt = &executedAt
		}
		action.Status = *upd.Status
	}
	if upd.ActionDetails != nil {
		action.ActionDetails = upd.ActionDetails
	}
	if upd.Result != nil {
		action.Result = upd.Result
	}
	if upd.Metadata != nil {
		action.Metadata = upd.Metadata
	}

	if err := s.actionRepo.Update(ctx, action); err != nil {
		s.logger.Error("Failed to update threat action",
			zap.String("action_id", id.String()),
			zap.Error(err))
		return nil, err
	}

	threat, err := s.threatRepo.GetByID(ctx, action.ThreatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action threat: %w", err)
	}
	action.Threat = threat
	return action, nil
}

func (s *threatActionService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.actionRepo.Delete(ctx, id)
}

func (s *threatActionService) AutoCreate(ctx context.Context, threatID uuid.UUID) ([]*models.ThreatAction, error) {
	threat, err := s.threatRepo.GetByID(ctx, threatID)
	if err != nil {
		return nil, err
	}

	actions, err := s.generator.Generate(ctx, threat)
	if err != nil {
		s.logger.Error("Failed to auto-create threat actions",
			zap.String("threat_id", threatID.String()),
			zap.Int("created_before_failure", len(actions)),
			zap.Error(err))
		return nil, err
	}

	for _, action := range actions {
		s.publish(ctx, action)
	}
	return actions, nil
}

func (s *threatActionService) publish(ctx context.Context, action *models.ThreatAction) {
	if err := s.publisher.Publish(ctx, events.ActionCreated, action); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event", events.ActionCreated),
			zap.Error(err))
	}
}
