// Package mailer delivers workflow notification emails through SendGrid, or
// to the log when no API key is configured.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// Config holds sender settings.
type Config struct {
	APIKey      string
	FromName    string
	FromAddress string
}

// Mailer renders templated notification emails and hands them to a transport.
type Mailer struct {
	renderer   *Renderer
	from       *sgmail.Email
	subjPrefix string
	send       func(ctx context.Context, m *sgmail.SGMailV3) error
	logger     zerolog.Logger
}

// New builds a Mailer. Without an API key messages are only logged.
func New(cfg Config, logger zerolog.Logger) (*Mailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	m := &Mailer{
		renderer:   renderer,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjPrefix: "[" + cfg.FromName + "] ",
		logger:     logger.With().Str("component", "mailer").Logger(),
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		m.send = m.logOnly
	} else {
		m.send = sendgridTransport(cfg.APIKey)
	}
	return m, nil
}

// SendTemplatedEmail renders template with data and mails it to every
// recipient. Each recipient gets its own personalization so addresses are
// not disclosed to one another.
func (m *Mailer) SendTemplatedEmail(ctx context.Context, recipients []string, template string, data map[string]interface{}) error {
	if len(recipients) == 0 {
		return nil
	}

	message, err := m.renderer.Render(template, data)
	if err != nil {
		return err
	}

	mail := m.prepare(recipients, message)
	if len(mail.Personalizations) == 0 {
		return errors.New("no valid recipients")
	}
	if err := m.send(ctx, mail); err != nil {
		return fmt.Errorf("send %s email: %w", template, err)
	}
	return nil
}

func (m *Mailer) prepare(recipients []string, message Message) *sgmail.SGMailV3 {
	mail := sgmail.NewV3Mail()
	mail.SetFrom(m.from)

	for _, recipient := range recipients {
		address := strings.TrimSpace(recipient)
		if address == "" {
			continue
		}
		p := sgmail.NewPersonalization()
		p.Subject = m.subjPrefix + message.Subject
		p.AddTos(sgmail.NewEmail("", address))
		mail.AddPersonalizations(p)
	}

	mail.AddContent(sgmail.NewContent("text/plain", message.Body))
	return mail
}

func (m *Mailer) logOnly(_ context.Context, mail *sgmail.SGMailV3) error {
	for _, p := range mail.Personalizations {
		for _, to := range p.To {
			m.logger.Info().Str("to", to.Address).Str("subject", p.Subject).Msg("email delivery skipped: sendgrid not configured")
		}
	}
	return nil
}

func sendgridTransport(key string) func(ctx context.Context, mail *sgmail.SGMailV3) error {
	return func(ctx context.Context, mail *sgmail.SGMailV3) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := sendgrid.GetRequest(key, endpoint, host)
		req.Method = http.MethodPost
		req.Body = sgmail.GetRequestBody(mail)

		res, err := sendgrid.API(req)
		if err != nil {
			return err
		}
		if res.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
		}
		return nil
	}
}
