package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/config"
	"github.com/sentinelai/sentinel-engine/pkg/logging"
	"github.com/sentinelai/sentinel-engine/pkg/mail"
	"github.com/sentinelai/sentinel-engine/pkg/models"
	"github.com/sentinelai/sentinel-engine/pkg/services/workqueue"
)

// AlertNotifier e-mails recipients about severe threats.
type AlertNotifier interface {
	// NotifyThreat queues an alert for threat when the policy allows it and
	// reports whether one was queued. Delivery happens in the background;
	// its failures are logged and never reach the caller.
	NotifyThreat(ctx context.Context, threat *models.Threat) bool
}

type alertNotifier struct {
	enabled     bool
	minSeverity int
	to          []string
	sender      mail.Sender
	dispatcher  workqueue.Dispatcher
	logger      *zap.Logger
}

// NewAlertNotifier creates an AlertNotifier from the threat alert policy.
// Recipients are trimmed and blanks dropped once, here.
func NewAlertNotifier(cfg config.ThreatAlertConfig, sender mail.Sender, dispatcher workqueue.Dispatcher, logger *zap.Logger) AlertNotifier {
	to := make([]string, 0, len(cfg.To))
	for _, addr := range cfg.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return &alertNotifier{
		enabled:     cfg.Enabled,
		minSeverity: cfg.MinSeverity,
		to:          to,
		sender:      sender,
		dispatcher:  dispatcher,
		logger:      logger.Named("alert-notifier"),
	}
}

var _ AlertNotifier = (*alertNotifier)(nil)

func (n *alertNotifier) shouldNotify(threat *models.Threat) bool {
	return n.enabled && threat.Severity >= n.minSeverity && len(n.to) > 0
}

func (n *alertNotifier) NotifyThreat(ctx context.Context, threat *models.Threat) bool {
	if !n.shouldNotify(threat) {
		return false
	}

	// The caller keeps mutating its threat; the task renders from a copy.
	snapshot := *threat
	recipients := append([]string(nil), n.to...)

	n.dispatcher.Submit("threat-alert-mail", func(taskCtx context.Context) error {
		msg, err := mail.RenderThreatAlert(&snapshot, recipients)
		if err != nil {
			n.logger.Warn("Failed to render threat alert email",
				zap.String("threat_id", snapshot.ID.String()),
				zap.Error(err))
			return err
		}
		if err := n.sender.Send(taskCtx, msg); err != nil {
			n.logger.Warn("Failed to send threat alert email",
				zap.String("threat_id", snapshot.ID.String()),
				zap.Strings("to", logging.MaskEmails(recipients)),
				zap.Error(err))
			return err
		}
		n.logger.Info("Threat alert email sent",
			zap.String("threat_id", snapshot.ID.String()),
			zap.Int("severity", snapshot.Severity),
			zap.Int("recipients", len(recipients)))
		return nil
	})
	return true
}
