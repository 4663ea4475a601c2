package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"course-payments/internal/config"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/infra/metrics"
)

var _ adapter.Notifier = (*SMTPNotifier)(nil)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier renders notifications with Renderer and sends them over SMTP.
type SMTPNotifier struct {
	dialer   sender
	from     string
	renderer *Renderer
	log      *zerolog.Logger
}

func NewSMTPNotifier(cfg config.SMTPConfig, logger *zerolog.Logger) *SMTPNotifier {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	l := logger.With().Str("component", "smtp_notifier").Logger()
	return &SMTPNotifier{
		dialer:   d,
		from:     cfg.From,
		renderer: NewRenderer(cfg.AppName),
		log:      &l,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg adapter.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := n.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		metrics.IncNotification(msg.Template, "error")
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", msg.To)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		metrics.IncNotification(msg.Template, "error")
		return fmt.Errorf("send %s email: %w", msg.Template, err)
	}
	metrics.IncNotification(msg.Template, "sent")
	n.log.Debug().Str("template", msg.Template).Msg("email sent")
	return nil
}

// LogNotifier renders notifications and logs them instead of sending. Used when no SMTP
// host is configured.
type LogNotifier struct {
	renderer *Renderer
	log      *zerolog.Logger
}

var _ adapter.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(appName string, logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "log_notifier").Logger()
	return &LogNotifier{renderer: NewRenderer(appName), log: &l}
}

func (n *LogNotifier) Send(ctx context.Context, msg adapter.Notification) error {
	subject, _, err := n.renderer.Render(msg.Template, msg.Data)
	if err != nil {
		metrics.IncNotification(msg.Template, "error")
		return err
	}
	metrics.IncNotification(msg.Template, "logged")
	n.log.Info().Str("template", msg.Template).Strs("cc", msg.Cc).Str("subject", subject).Msg("notification (not sent)")
	return nil
}
