package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/samg2014/VirtualHand/internal/observability"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// MailMessage is a plain-text email.
type MailMessage struct {
	To      string
	Subject string
	Text    string
}

// Mailer delivers outbound email.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// SendGridMailer delivers email through the SendGrid v3 API.
type SendGridMailer struct {
	key    string
	host   string
	from   *sgmail.Email
	logger zerolog.Logger
}

// NewSendGridMailer constructs a SendGrid-backed mailer.
func NewSendGridMailer(apiKey, appName, fromEmail string, logger zerolog.Logger) *SendGridMailer {
	return &SendGridMailer{
		key:    apiKey,
		host:   sendGridHost,
		from:   sgmail.NewEmail(appName, fromEmail),
		logger: logger.With().Str("component", "sendgrid_mailer").Logger(),
	}
}

// Send posts the message to SendGrid.
func (m *SendGridMailer) Send(ctx context.Context, msg MailMessage) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	body := sgmail.NewV3Mail()
	body.SetFrom(m.from)
	body.AddPersonalizations(p)
	body.AddContent(sgmail.NewContent("text/plain", msg.Text))

	req := sendgrid.GetRequest(m.key, sendGridEndpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(body)

	res, err := sendgrid.API(req)
	if err != nil {
		observability.MailDeliveries().WithLabelValues("sendgrid", "error").Inc()
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		observability.MailDeliveries().WithLabelValues("sendgrid", "rejected").Inc()
		return fmt.Errorf("sendgrid rejected message: status %d", res.StatusCode)
	}

	observability.MailDeliveries().WithLabelValues("sendgrid", "sent").Inc()
	m.logger.Info().Str("to", maskEmail(msg.To)).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// LogMailer writes messages to the log instead of sending them. Used when no provider is configured.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer constructs a logging mailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "log_mailer").Logger()}
}

// Send logs the message and reports success.
func (l *LogMailer) Send(ctx context.Context, msg MailMessage) error {
	observability.MailDeliveries().WithLabelValues("log", "sent").Inc()
	l.logger.Info().Str("to", maskEmail(msg.To)).Str("subject", msg.Subject).Msg("email delivered to log")
	return nil
}
