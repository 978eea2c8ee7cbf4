package email

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/garyjia/vendor-lifecycle/internal/application/port"
	"github.com/garyjia/vendor-lifecycle/internal/domain/entity"
)

// ErrNoRecipients is returned for a notification without addresses
var ErrNoRecipients = errors.New("notification has no recipients")

// Config holds SMTP settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender sends composed messages; *gomail.Dialer satisfies it
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Notifier renders outbox rows into emails and sends them over SMTP
type Notifier struct {
	sender    Sender
	from      string
	templates map[string]messageTemplate
	logger    *zap.Logger
}

// NewNotifier creates an SMTP notifier
func NewNotifier(cfg Config, logger *zap.Logger) (*Notifier, error) {
	return NewNotifierWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, logger)
}

// NewNotifierWithSender creates a notifier on top of an arbitrary sender
func NewNotifierWithSender(sender Sender, from string, logger *zap.Logger) (*Notifier, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		sender:    sender,
		from:      from,
		templates: templates,
		logger:    logger,
	}, nil
}

// Render builds the subject and plain-text body of a notification
func (n *Notifier) Render(notification *entity.Notification) (string, string, error) {
	tmpl, ok := n.templates[notification.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", notification.Template)
	}
	return tmpl.render(notification.Variables)
}

// Send implements port.Notifier
func (n *Notifier) Send(ctx context.Context, notification *entity.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(notification.Recipients) == 0 {
		return ErrNoRecipients
	}

	subject, body, err := n.Render(notification)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", notification.Recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := n.sender.DialAndSend(msg); err != nil {
		n.logger.Error("Failed to send email",
			zap.Int64("notification_id", notification.ID),
			zap.String("template", notification.Template),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("Email sent",
		zap.Int64("notification_id", notification.ID),
		zap.String("template", notification.Template),
		zap.Strings("to", notification.Recipients))
	return nil
}

var _ port.Notifier = (*Notifier)(nil)
