package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/internal/users"
)

// Principals is the principal half of the persistence contract. users.Service satisfies it.
type Principals interface {
	FindPrincipalByID(ctx context.Context, id string) (*users.User, error)
	SavePrincipal(ctx context.Context, principal *users.User) error
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
}

// Options configures managers and services. Zero values are usable.
type Options struct {
	Logger    *slog.Logger
	Metrics   *Metrics
	Validator *validator.Validate
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Validator == nil {
		o.Validator = validator.New()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Manager implements get-or-create and partial update for one settings kind.
type Manager struct {
	desc       *Descriptor
	store      Store
	principals Principals
	opts       Options
}

// NewManager builds a manager for desc.
func NewManager(desc *Descriptor, store Store, principals Principals, opts Options) *Manager {
	return &Manager{desc: desc, store: store, principals: principals, opts: opts.withDefaults()}
}

// Descriptor returns the resource descriptor the manager serves.
func (m *Manager) Descriptor() *Descriptor { return m.desc }

// Get returns the owner's record, creating it with defaults when absent.
func (m *Manager) Get(ctx context.Context, ownerID string) (*Record, error) {
	id, err := shared.ParseObjectID(ownerID)
	if err != nil {
		return nil, err
	}
	owner, err := m.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := m.store.FindByOwner(ctx, m.desc.Kind, id)
	switch {
	case err == nil:
		return m.present(rec, owner), nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("settings: load %s: %w", m.desc.Kind, err)
	}

	created, err := m.store.Create(ctx, &Record{
		Kind:       m.desc.Kind,
		OwnerID:    id,
		OwnerField: m.desc.OwnerField,
		Fields:     m.desc.Base(owner),
		UpdatedAt:  m.opts.Now().UTC(),
	})
	if errors.Is(err, shared.ErrConflict) {
		m.opts.Metrics.recordRace(m.desc.Kind)
		rec, err = m.store.FindByOwner(ctx, m.desc.Kind, id)
		if err != nil {
			return nil, fmt.Errorf("settings: reload %s after create race: %w", m.desc.Kind, err)
		}
		return m.present(rec, owner), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: create %s: %w", m.desc.Kind, err)
	}
	m.opts.Metrics.recordCreated(m.desc.Kind)
	m.opts.Logger.DebugContext(ctx, "settings created with defaults", slog.String("kind", string(m.desc.Kind)), slog.String("owner", id))
	return m.present(created, owner), nil
}

// Update applies the whitelisted fields of patch. A missing record is created with defaults
// and patched in the same write.
func (m *Manager) Update(ctx context.Context, ownerID string, patch map[string]any, actorID string) (*Record, error) {
	id, err := shared.ParseObjectID(ownerID)
	if err != nil {
		return nil, err
	}
	clean, err := m.Normalize(patch)
	if err != nil {
		return nil, err
	}
	owner, err := m.resolveOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, id, owner, clean, actorID)
}

// Normalize filters patch against the descriptor's field whitelist.
func (m *Manager) Normalize(patch map[string]any) (map[string]any, error) {
	return m.desc.Normalize(patch, m.opts.Validator)
}

func (m *Manager) apply(ctx context.Context, id string, owner *users.User, clean map[string]any, actorID string) (*Record, error) {
	rec, err := m.write(ctx, id, owner, clean, actorID)
	if err != nil {
		return nil, err
	}
	return m.present(rec, owner), nil
}

// current returns the presented record without creating it.
func (m *Manager) current(ctx context.Context, id string, owner *users.User) (*Record, error) {
	rec, err := m.store.FindByOwner(ctx, m.desc.Kind, id)
	if errors.Is(err, shared.ErrNotFound) {
		rec, err = &Record{Kind: m.desc.Kind, OwnerID: id, Fields: m.desc.Base(owner)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: load %s: %w", m.desc.Kind, err)
	}
	return m.present(rec, owner), nil
}

// write upserts clean and returns the stored record as is.
func (m *Manager) write(ctx context.Context, id string, owner *users.User, clean map[string]any, actorID string) (*Record, error) {
	rec, err := m.store.Upsert(ctx, UpsertInput{
		Kind:      m.desc.Kind,
		OwnerID:   id,
		Base:      m.desc.Base(owner),
		Patch:     clean,
		UpdatedBy: actorID,
		At:        m.opts.Now().UTC(),
	})
	m.opts.Metrics.recordUpdate(m.desc.Kind, err)
	if err != nil {
		return nil, fmt.Errorf("settings: update %s: %w", m.desc.Kind, err)
	}
	return rec, nil
}

// resolveOwner loads the owning user for user-owned kinds. Organization owners are only
// format-checked.
func (m *Manager) resolveOwner(ctx context.Context, id string) (*users.User, error) {
	if m.desc.Owner != OwnerUser {
		return nil, nil
	}
	if m.principals == nil {
		return nil, errors.New("settings: no principal source configured")
	}
	owner, err := m.principals.FindPrincipalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return owner, nil
}

func (m *Manager) present(rec *Record, owner *users.User) *Record {
	out := rec.Clone()
	out.Kind = m.desc.Kind
	out.OwnerField = m.desc.OwnerField
	out.Fields = m.desc.Complete(rec.Fields)
	if m.desc.Mirror != nil && owner != nil {
		m.desc.Mirror(out.Fields, owner)
	}
	return out
}
