package settings

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/facilityhub/backoffice/internal/shared"
)

// Service groups the per-kind managers with the profile and security services.
type Service struct {
	managers map[Kind]*Manager
	profile  *ProfileService
	security *SecurityService
}

// NewService instantiates one manager per descriptor over store.
func NewService(store Store, principals Principals, alerts AlertQueue, opts Options) *Service {
	opts = opts.withDefaults()
	managers := make(map[Kind]*Manager)
	for kind, desc := range Descriptors() {
		managers[kind] = NewManager(desc, store, principals, opts)
	}
	return &Service{
		managers: managers,
		profile:  NewProfileService(managers[KindGeneral], principals, opts.Logger),
		security: NewSecurityService(principals, managers[KindNotification], alerts, opts.Logger),
	}
}

// Manager returns the manager for kind.
func (s *Service) Manager(kind Kind) (*Manager, error) {
	m, ok := s.managers[kind]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m, nil
}

// Profile returns the general settings service.
func (s *Service) Profile() *ProfileService { return s.profile }

// Security returns the password service.
func (s *Service) Security() *SecurityService { return s.security }

// Get returns the record of kind for ownerID.
func (s *Service) Get(ctx context.Context, kind Kind, ownerID string) (*Record, error) {
	m, err := s.Manager(kind)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, ownerID)
}

// Update patches the record of kind for ownerID. General settings go through the profile service.
func (s *Service) Update(ctx context.Context, kind Kind, ownerID string, patch map[string]any, actorID string) (*Record, error) {
	if kind == KindGeneral {
		return s.profile.Update(ctx, ownerID, patch, actorID)
	}
	m, err := s.Manager(kind)
	if err != nil {
		return nil, err
	}
	return m.Update(ctx, ownerID, patch, actorID)
}

// Overview is the set of user-owned settings returned by GET /settings.
type Overview struct {
	General      *Record `json:"general"`
	Notification *Record `json:"notification"`
	Security     *Record `json:"security"`
	MapManager   *Record `json:"mapManager"`
}

// Overview loads every user-owned record for userID concurrently.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	if _, err := shared.ParseObjectID(userID); err != nil {
		return nil, err
	}
	var out Overview
	targets := []struct {
		kind Kind
		dst  **Record
	}{
		{KindGeneral, &out.General},
		{KindNotification, &out.Notification},
		{KindSecurity, &out.Security},
		{KindMapManager, &out.MapManager},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			rec, err := s.Get(gctx, t.kind, userID)
			if err != nil {
				return err
			}
			*t.dst = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
