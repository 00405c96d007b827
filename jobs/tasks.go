package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/facilityhub/backoffice/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks the payload before it is queued or delivered.
func (p SendEmailPayload) Validate() error {
	if _, err := mail.ParseAddress(p.To); err != nil {
		return fmt.Errorf("mail: invalid recipient %q: %w", p.To, err)
	}
	if p.Subject == "" {
		return errors.New("mail: subject is required")
	}
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
	Transport() string
}

// LogMailer writes emails to the log instead of delivering them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)))
	return nil
}

// Transport implements Mailer.
func (LogMailer) Transport() string { return "log" }

// SendEmailHandler processes TaskTypeSendEmail tasks.
type SendEmailHandler struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle implements asynq.HandlerFunc.
func (h *SendEmailHandler) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := h.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("mail: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if h.Mailer == nil {
		return errors.New("mail: no mailer configured")
	}
	if err := h.Mailer.Send(ctx, payload); err != nil {
		if h.Logger != nil {
			h.Logger.WarnContext(ctx, "send email failed", slog.String("to", payload.To), slog.Any("error", err))
		}
		return err
	}
	h.Metrics.EmailDelivered(h.Mailer.Transport())
	return nil
}
