package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/jobs"
)

// AlertQueue enqueues outgoing email. jobs.Client satisfies it.
type AlertQueue interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// SecurityService changes credentials on behalf of the security settings resource.
type SecurityService struct {
	principals    Principals
	notifications *Manager
	alerts        AlertQueue
	logger        *slog.Logger
}

// NewSecurityService constructs the service. notifications and alerts may be nil, in which
// case no security alert is sent.
func NewSecurityService(principals Principals, notifications *Manager, alerts AlertQueue, logger *slog.Logger) *SecurityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityService{principals: principals, notifications: notifications, alerts: alerts, logger: logger}
}

// ChangePassword replaces the owner's password after verifying current.
func (s *SecurityService) ChangePassword(ctx context.Context, ownerID, current, next string) error {
	id, err := shared.ParseObjectID(ownerID)
	if err != nil {
		return err
	}
	user, err := s.principals.FindPrincipalByID(ctx, id)
	if err != nil {
		return err
	}
	if !user.CheckPassword(current) {
		return fmt.Errorf("settings: current password does not match: %w", shared.ErrUnauthorized)
	}
	updated := user.Clone()
	if err := updated.SetPassword(next); err != nil {
		return err
	}
	if err := s.principals.SavePrincipal(ctx, updated); err != nil {
		return fmt.Errorf("settings: save password: %w", err)
	}
	s.notifyPasswordChanged(ctx, id, updated.Email)
	return nil
}

func (s *SecurityService) notifyPasswordChanged(ctx context.Context, userID, email string) {
	if s.alerts == nil || s.notifications == nil || email == "" {
		return
	}
	prefs, err := s.notifications.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "load notification settings", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	if !prefs.Bool("securityAlerts") {
		return
	}
	_, err = s.alerts.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: "Your password was changed",
		Body:    "The password for your back-office account was just changed. If this was not you, contact an administrator.",
	})
	if err != nil {
		s.logger.WarnContext(ctx, "enqueue security alert", slog.String("user_id", userID), slog.Any("error", err))
	}
}
