package auth

import (
	"context"
	"errors"

	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/internal/users"
)

// UserFinder loads principals for authentication.
type UserFinder interface {
	Get(ctx context.Context, id string) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users    UserFinder
	sessions *shared.SessionManager
}

// NewService constructs a new Service.
func NewService(finder UserFinder, sessions *shared.SessionManager) *Service {
	return &Service{users: finder, sessions: sessions}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !user.CheckPassword(password) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*shared.Session, *users.User, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ResolvePrincipal maps a session token to an active user.
func (s *Service) ResolvePrincipal(ctx context.Context, token string) (*users.User, error) {
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrUnauthorized
	}
	return user, nil
}
