package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/repositories"
)

// ActionGenerator creates the remediation actions a threat's severity calls for.
type ActionGenerator interface {
	// Generate persists PlanActions(threat) one row at a time and stops at the
	// first failed write. The actions created before the failure are returned
	// together with the error.
	//
	// The writes are independent: a concurrent reader of the threat's actions
	// can observe a partial set until Generate returns.
	Generate(ctx context.Context, threat *models.Threat) ([]*models.ThreatAction, error)
}

type actionGenerator struct {
	actionRepo repositories.ThreatActionRepository
	logger     *zap.Logger
}

// NewActionGenerator creates an ActionGenerator.
func NewActionGenerator(actionRepo repositories.ThreatActionRepository, logger *zap.Logger) ActionGenerator {
	return &actionGenerator{
		actionRepo: actionRepo,
		logger:     logger.Named("action-generator"),
	}
}

var _ ActionGenerator = (*actionGenerator)(nil)

func (g *actionGenerator) Generate(ctx context.Context, threat *models.Threat) ([]*models.ThreatAction, error) {
	planned := PlanActions(threat)
	created := make([]*models.ThreatAction, 0, len(planned))

	for _, action := range planned {
		if err := g.actionRepo.Create(ctx, action); err != nil {
			return created, fmt.Errorf("failed to create %s action for threat %s: %w", action.ActionType, threat.ID, err)
		}
		created = append(created, action)
	}

	g.logger.Debug("Generated threat actions",
		zap.String("threat_id", threat.ID.String()),
		zap.String("tier", string(ClassifySeverity(threat.Severity))),
		zap.Int("count", len(created)))

	return created, nil
}

// PlanActions returns the ordered actions for threat without persisting them.
//
//	critical: block_ip, then isolation when a target IP is known
//	high:     firewall_rule (deny)
//	always:   alert
//
// Every action starts pending. A missing source IP is carried as a JSON null.
func PlanActions(threat *models.Threat) []*models.ThreatAction {
	var actions []*models.ThreatAction

	switch ClassifySeverity(threat.Severity) {
	case TierCritical:
		actions = append(actions, newPendingAction(threat, models.ActionTypeBlockIP, models.JSONMap{
			"ip": nullableString(threat.SourceIP),
		}))
		if hasValue(threat.TargetIP) {
			actions = append(actions, newPendingAction(threat, models.ActionTypeIsolation, models.JSONMap{
				"target": *threat.TargetIP,
			}))
		}
	case TierHigh:
		actions = append(actions, newPendingAction(threat, models.ActionTypeFirewallRule, models.JSONMap{
			"ip":     nullableString(threat.SourceIP),
			"action": "deny",
		}))
	}

	actions = append(actions, newPendingAction(threat, models.ActionTypeAlert, models.JSONMap{
		"severity":  threat.Severity,
		"type":      threat.Type,
		"source_ip": nullableString(threat.SourceIP),
	}))

	return actions
}

func newPendingAction(threat *models.Threat, actionType string, details models.JSONMap) *models.ThreatAction {
	return &models.ThreatAction{
		ThreatID:      threat.ID,
		ActionType:    actionType,
		ActionDetails: details,
		Status:        models.ActionStatusPending,
	}
}

// nullableString returns *s, or nil so the value encodes as JSON null.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}
