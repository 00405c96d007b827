package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/internal/users"
)

// profileFields are the general settings mirrored on the user record.
var profileFields = []string{"firstName", "lastName", "email", "profileImage"}

// ProfileService updates general settings and keeps the user record in step with them.
type ProfileService struct {
	manager    *Manager
	principals Principals
	logger     *slog.Logger
}

// NewProfileService wraps the general settings manager.
func NewProfileService(manager *Manager, principals Principals, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{manager: manager, principals: principals, logger: logger}
}

// Get returns the owner's general settings.
func (s *ProfileService) Get(ctx context.Context, ownerID string) (*Record, error) {
	return s.manager.Get(ctx, ownerID)
}

// Update applies patch to the general settings. A changed email must not belong to another
// user. Only the profile fields present in the patch are written through to the user record.
// The two writes are not atomic: when the second fails the settings change stays and the
// error is returned.
func (s *ProfileService) Update(ctx context.Context, ownerID string, patch map[string]any, actorID string) (*Record, error) {
	id, err := shared.ParseObjectID(ownerID)
	if err != nil {
		return nil, err
	}
	clean, err := s.manager.Normalize(patch)
	if err != nil {
		return nil, err
	}
	owner, err := s.manager.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := owner.Clone()
	if email, ok := clean["email"].(string); ok {
		if users.EmailKey(email) != users.EmailKey(owner.Email) {
			if email == "" {
				return nil, &ValidationError{Fields: map[string]string{"email": "email cannot be empty"}}
			}
			taken, err := s.principals.EmailTaken(ctx, email, id)
			if err != nil {
				return nil, fmt.Errorf("settings: check email: %w", err)
			}
			if taken {
				return nil, fmt.Errorf("settings: email %q already in use: %w", email, shared.ErrConflict)
			}
		}
		updated.Email = email
	}
	if image, ok := clean["profileImage"].(string); ok {
		updated.ProfileImage = image
	}
	_, hasFirst := clean["firstName"]
	_, hasLast := clean["lastName"]
	if hasFirst || hasLast {
		// Both halves are stored so the record joins back to the saved user name.
		current, err := s.manager.current(ctx, id, owner)
		if err != nil {
			return nil, err
		}
		first, last := current.String("firstName"), current.String("lastName")
		if v, ok := clean["firstName"].(string); ok {
			first = v
		}
		if v, ok := clean["lastName"].(string); ok {
			last = v
		}
		if JoinName(first, last) == "" {
			return nil, &ValidationError{Fields: map[string]string{"firstName": "name cannot be empty"}}
		}
		clean["firstName"], clean["lastName"] = first, last
		updated.Name = JoinName(first, last)
	}

	rec, err := s.manager.write(ctx, id, owner, clean, actorID)
	if err != nil {
		return nil, err
	}
	if !touchesProfile(clean) {
		return s.manager.present(rec, owner), nil
	}
	if err := s.principals.SavePrincipal(ctx, updated); err != nil {
		s.logger.ErrorContext(ctx, "profile write-through failed",
			slog.String("user_id", id), slog.Any("error", err))
		return nil, fmt.Errorf("settings: sync profile to user: %w", err)
	}
	return s.manager.present(rec, updated), nil
}

func touchesProfile(clean map[string]any) bool {
	for _, name := range profileFields {
		if _, ok := clean[name]; ok {
			return true
		}
	}
	return false
}
