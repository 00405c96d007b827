package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/shared"
)

// Service handles user business logic.
type Service struct {
	repo       Repository
	authorizer *authz.Authorizer
	audit      shared.Auditor
	now        func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, authorizer *authz.Authorizer, audit shared.Auditor) *Service {
	if authorizer == nil {
		authorizer = authz.NewAuthorizer(nil)
	}
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, authorizer: authorizer, audit: audit, now: time.Now}
}

// Create registers a new user with permissions derived from its role.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID string) (*User, error) {
	role, err := authz.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.Validationf("name is required")
	}
	email := strings.TrimSpace(in.Email)
	taken, err := s.repo.EmailTaken(ctx, email, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("email %s already in use: %w", email, shared.ErrConflict)
	}

	now := s.now().UTC()
	user := &User{
		ID:         shared.NewObjectID(),
		Name:       name,
		Email:      email,
		Department: strings.TrimSpace(in.Department),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	user.AssignRole(s.authorizer, role)
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.create", user.ID, map[string]any{"role": role})
	return user, nil
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	id, err := shared.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// List returns users matching filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, shared.Pagination, error) {
	filters.Page, filters.PerPage = shared.NormalizePage(filters.Page, filters.PerPage)
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Update applies a partial update. A role change recomputes permissions in the same write.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput, actorID string) (*User, error) {
	id, err := shared.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	var role authz.Role
	if in.Role != nil {
		if role, err = authz.ParseRole(*in.Role); err != nil {
			return nil, err
		}
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil && EmailKey(*in.Email) != EmailKey(user.Email) {
		taken, err := s.repo.EmailTaken(ctx, *in.Email, user.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("email %s already in use: %w", *in.Email, shared.ErrConflict)
		}
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, shared.Validationf("name must not be empty")
		}
		user.Name = name
	}
	if in.Department != nil {
		user.Department = strings.TrimSpace(*in.Department)
	}
	if in.ProfileImage != nil {
		user.ProfileImage = strings.TrimSpace(*in.ProfileImage)
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	previous := user.Role
	if in.Role != nil {
		user.AssignRole(s.authorizer, role)
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	meta := map[string]any{}
	if in.Role != nil && previous != role {
		meta["role_from"] = previous
		meta["role_to"] = role
	}
	s.record(ctx, actorID, "user.update", user.ID, meta)
	return user, nil
}

// BulkUpdateRole assigns role to every user in ids inside one transaction.
func (s *Service) BulkUpdateRole(ctx context.Context, in BulkRoleInput, actorID string) ([]User, error) {
	role, err := authz.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	if len(in.IDs) == 0 {
		return nil, shared.Validationf("ids must not be empty")
	}
	ids := make([]string, 0, len(in.IDs))
	for _, raw := range in.IDs {
		id, err := shared.ParseObjectID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	var updated []User
	err = s.repo.WithTx(ctx, func(repo Repository) error {
		updated = updated[:0]
		now := s.now().UTC()
		for _, id := range ids {
			user, err := repo.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("user %s: %w", id, err)
			}
			user.AssignRole(s.authorizer, role)
			user.UpdatedAt = now
			if err := repo.Save(ctx, user); err != nil {
				return err
			}
			updated = append(updated, *user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, u := range updated {
		s.record(ctx, actorID, "user.role", u.ID, map[string]any{"role_to": role, "bulk": true})
	}
	return updated, nil
}

// Delete removes a user. Principals may not delete themselves.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	id, err := shared.ParseObjectID(id)
	if err != nil {
		return err
	}
	if id == actorID {
		return shared.Validationf("cannot delete your own account")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", id, nil)
	return nil
}

// FindPrincipalByID loads the principal for id.
func (s *Service) FindPrincipalByID(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// SavePrincipal persists principal. Role is re-derived so stored permissions always match it.
func (s *Service) SavePrincipal(ctx context.Context, principal *User) error {
	if principal == nil {
		return errors.New("users: nil principal")
	}
	principal.AssignRole(s.authorizer, principal.Role)
	principal.UpdatedAt = s.now().UTC()
	return s.repo.Save(ctx, principal)
}

// EmailTaken reports whether email belongs to a user other than excludeID.
func (s *Service) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return s.repo.EmailTaken(ctx, email, excludeID)
}

// Authorizer exposes the role table wrapper used by the service.
func (s *Service) Authorizer() *authz.Authorizer {
	return s.authorizer
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: entityID,
		Meta:     meta,
		At:       s.now().UTC(),
	})
}
