// Package mail delivers outbound e-mail over SMTP and renders the alert messages.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/config"
	"github.com/sentinelai/sentinel-engine/pkg/logging"
)

// ErrNoRecipients is returned when a message has no To addresses.
var ErrNoRecipients = errors.New("message has no recipients")

// Message is a rendered e-mail ready for delivery.
type Message struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers messages. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPSender delivers messages through the configured SMTP relay.
type SMTPSender struct {
	cfg    *config.MailConfig
	logger *zap.Logger
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg *config.MailConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.Named("mail"),
	}
}

var _ Sender = (*SMTPSender)(nil)

// Send builds a multipart (HTML + plain text) message and delivers it in a single SMTP session.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	if msg.TextBody != "" {
		m.AddAlternativeString(gomail.TypeTextPlain, msg.TextBody)
	}

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	s.logger.Info("Mail sent",
		zap.String("subject", msg.Subject),
		zap.Strings("to", logging.MaskEmails(msg.To)))
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.sendTimeout()),
	}

	if s.cfg.RequireTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *SMTPSender) sendTimeout() time.Duration {
	if s.cfg.SendTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(s.cfg.SendTimeout) * time.Second
}
