package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Message is a rendered transactional email.
type Message struct {
	ToName   string
	ToEmail  string
	Subject  string
	Text     string
	HTML     string
	Category string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendgridMailer sends through the SendGrid v3 mail API.
type SendgridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendgridMailer builds a mailer from config. The API key is required.
func NewSendgridMailer(cfg config.SendgridConfig) (*SendgridMailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, fmt.Errorf("sendgrid from address required")
	}
	return &SendgridMailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.DefaultFrom),
	}, nil
}

func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	email := mail.NewSingleEmail(m.from, msg.Subject, mail.NewEmail(msg.ToName, msg.ToEmail), msg.Text, msg.HTML)
	if msg.Category != "" {
		email.AddCategories(msg.Category)
	}
	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "send email")
	}
	if resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeUpstream, fmt.Sprintf("sendgrid returned status %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": resp.Body})
	}
	return nil
}

// LogMailer records messages instead of sending them. Used when no SendGrid
// key is configured.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if m.logg == nil {
		return nil
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"to":       msg.ToEmail,
		"subject":  msg.Subject,
		"category": msg.Category,
	})
	m.logg.Info(ctx, "notification.email_skipped")
	return nil
}

// NewMailer picks SendGrid when a key is configured.
func NewMailer(cfg config.SendgridConfig, logg *logger.Logger) (Mailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return NewLogMailer(logg), nil
	}
	return NewSendgridMailer(cfg)
}
