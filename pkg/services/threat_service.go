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
	"github.com/sentinelai/sentinel-engine/pkg/events"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/repositories"
)

// ThreatInput is the caller-supplied part of a new threat.
type ThreatInput struct {
	Type           string
	Severity       *int
	SourceIP       *string
	TargetIP       *string
	Description    string
	Classification *string
	Metadata       models.JSONMap
}

// ThreatCreateResult is a recorded threat and the actions generated for it.
type ThreatCreateResult struct {
	Threat  *models.Threat         `json:"threat"`
	Actions []*models.ThreatAction `json:"actions"`
}

// ThreatService records threats and drives their follow-up work.
type ThreatService interface {
	// Create validates and persists a threat, then runs action generation,
	// alerting and event publication. Those follow-ups never fail the call.
	Create(ctx context.Context, in ThreatInput) (*ThreatCreateResult, error)

	// Get returns a threat with its actions and incidents.
	Get(ctx context.Context, id uuid.UUID) (*models.Threat, error)

	List(ctx context.Context, filters models.ThreatFilters) (*models.PageResult[*models.Threat], error)

	// Update applies a partial update. Moving into resolved stamps resolved_at.
	Update(ctx context.Context, id uuid.UUID, upd models.ThreatUpdate) (*models.Threat, error)

	Delete(ctx context.Context, id uuid.UUID) error

	Statistics(ctx context.Context) (*models.ThreatStatistics, error)
}

type threatService struct {
	threatRepo   repositories.ThreatRepository
	actionRepo   repositories.ThreatActionRepository
	incidentRepo repositories.IncidentRepository
	generator    ActionGenerator
	notifier     AlertNotifier
	publisher    events.Publisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewThreatService creates a ThreatService.
func NewThreatService(
	threatRepo repositories.ThreatRepository,
	actionRepo repositories.ThreatActionRepository,
	incidentRepo repositories.IncidentRepository,
	generator ActionGenerator,
	notifier AlertNotifier,
	publisher events.Publisher,
	logger *zap.Logger,
) ThreatService {
	return &threatService{
		threatRepo:   threatRepo,
		actionRepo:   actionRepo,
		incidentRepo: incidentRepo,
		generator:    generator,
		notifier:     notifier,
		publisher:    publisher,
		logger:       logger.Named("threat-service"),
		now:          time.Now,
	}
}

var _ ThreatService = (*threatService)(nil)

func validateThreatInput(in ThreatInput) *apperrors.ValidationError {
	v := apperrors.NewValidationError()
	requireText(v, "type", in.Type)
	checkMaxLength(v, "type", in.Type, maxStringLength)
	checkSeverity(v, in.Severity, true)
	checkIP(v, "source_ip", in.SourceIP)
	checkIP(v, "target_ip", in.TargetIP)
	requireText(v, "description", in.Description)
	if in.Classification != nil {
		checkMaxLength(v, "classification", *in.Classification, maxStringLength)
	}
	return v
}

func (s *threatService) Create(ctx context.Context, in ThreatInput) (*ThreatCreateResult, error) {
	if v := validateThreatInput(in); v.HasErrors() {
		return nil, v
	}

	threat := &models.Threat{
		Type:           strings.TrimSpace(in.Type),
		Severity:       *in.Severity,
		Status:         models.ThreatStatusDetected,
		SourceIP:       normalizeOptional(in.SourceIP),
		TargetIP:       normalizeOptional(in.TargetIP),
		Description:    in.Description,
		Classification: normalizeOptional(in.Classification),
		Metadata:       in.Metadata,
		UserID:         auth.UserRefFromContext(ctx),
		DetectedAt:     s.now().UTC(),
	}

	if err := s.threatRepo.Create(ctx, threat); err != nil {
		s.logger.Error("Failed to create threat", zap.Error(err))
		return nil, err
	}

	actions, err := s.generator.Generate(ctx, threat)
	if err != nil {
		s.logger.Error("Failed to auto-create threat actions",
			zap.String("threat_id", threat.ID.String()),
			zap.Int("created", len(actions)),
			zap.Error(err))
	}
	if actions == nil {
		actions = []*models.ThreatAction{}
	}
	threat.Actions = actions

	s.notifier.NotifyThreat(ctx, threat)

	s.publish(ctx, events.ThreatRecorded, threat)
	for _, action := range actions {
		s.publish(ctx, events.ActionCreated, action)
	}

	s.logger.Info("Threat recorded",
		zap.String("threat_id", threat.ID.String()),
		zap.String("type", threat.Type),
		zap.Int("severity", threat.Severity),
		zap.Int("actions", len(actions)))

	return &ThreatCreateResult{Threat: threat, Actions: actions}, nil
}

func (s *threatService) Get(ctx context.Context, id uuid.UUID) (*models.Threat, error) {
	threat, err := s.threatRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	actions, err := s.actionRepo.ListByThreat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load threat actions: %w", err)
	}
	incidents, err := s.incidentRepo.ListByThreat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load threat incidents: %w", err)
	}

	threat.Actions = nonNil(actions)
	threat.Incidents = nonNil(incidents)
	return threat, nil
}

func (s *threatService) List(ctx context.Context, filters models.ThreatFilters) (*models.PageResult[*models.Threat], error) {
	threats, total, err := s.threatRepo.List(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list threats", zap.Error(err))
		return nil, err
	}
	return models.NewPageResult(threats, total, filters.Page), nil
}

func validateThreatUpdate(upd models.ThreatUpdate) *apperrors.ValidationError {
	v := apperrors.NewValidationError()
	if upd.Status != nil && !models.ValidThreatStatus(*upd.Status) {
		v.Add("status", "The selected status is invalid.")
	}
	checkSeverity(v, upd.Severity, false)
	if upd.Description != nil {
		requireText(v, "description", *upd.Description)
	}
	return v
}

func (s *threatService) Update(ctx context.Context, id uuid.UUID, upd models.ThreatUpdate) (*models.Threat, error) {
	if v := validateThreatUpdate(upd); v.HasErrors() {
		return nil, v
	}

	threat, err := s.threatRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		if *upd.Status == models.ThreatStatusResolved && threat.Status != models.ThreatStatusResolved {
			resolvedAt := s.now().UTC()
			threat.ResolvedAt = &resolvedAt
		}
		threat.Status = *upd.Status
	}
	if upd.Severity != nil {
		threat.Severity = *upd.Severity
	}
	if upd.Description != nil {
		threat.Description = *upd.Description
	}
	if upd.Metadata != nil {
		threat.Metadata = upd.Metadata
	}

	if err := s.threatRepo.Update(ctx, threat); err != nil {
		s.logger.Error("Failed to update threat",
			zap.String("threat_id", id.String()),
			zap.Error(err))
		return nil, err
	}

	s.publish(ctx, events.ThreatUpdated, threat)
	return threat, nil
}

func (s *threatService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.threatRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Threat deleted", zap.String("threat_id", id.String()))
	return nil
}

func (s *threatService) Statistics(ctx context.Context) (*models.ThreatStatistics, error) {
	return s.threatRepo.Statistics(ctx, s.now().UTC())
}

func (s *threatService) publish(ctx context.Context, event string, data any) {
	if err := s.publisher.Publish(ctx, event, data); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("event", event),
			zap.Error(err))
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
