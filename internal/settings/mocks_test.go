package settings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/shared"
	"github.com/facilityhub/backoffice/internal/users"
	"github.com/facilityhub/backoffice/jobs"
)

const testOrgID = "507f1f77bcf86cd799439011"

// ============================================================================
// MEMORY STORE
// ============================================================================

type storeKey struct {
	kind  Kind
	owner string
}

type memoryStore struct {
	mu      sync.Mutex
	records map[storeKey]*Record

	finds   int
	creates int
	upserts int

	// beforeCreate runs inside Create before the uniqueness check.
	beforeCreate func(rec *Record)
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[storeKey]*Record)}
}

func (s *memoryStore) FindByOwner(ctx context.Context, kind Kind, ownerID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	rec, ok := s.records[storeKey{kind, ownerID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *memoryStore) Create(ctx context.Context, rec *Record) (*Record, error) {
	if s.beforeCreate != nil {
		s.beforeCreate(rec)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	key := storeKey{rec.Kind, rec.OwnerID}
	if _, ok := s.records[key]; ok {
		return nil, shared.ErrConflict
	}
	s.records[key] = rec.Clone()
	return rec.Clone(), nil
}

func (s *memoryStore) Upsert(ctx context.Context, in UpsertInput) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := storeKey{in.Kind, in.OwnerID}
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{Kind: in.Kind, OwnerID: in.OwnerID, Fields: make(map[string]any)}
		for k, v := range in.Base {
			rec.Fields[k] = v
		}
	}
	for k, v := range in.Patch {
		rec.Fields[k] = v
	}
	rec.UpdatedAt = in.At
	rec.UpdatedBy = in.UpdatedBy
	s.records[key] = rec
	return rec.Clone(), nil
}

// insertRaw stores a record directly, bypassing the counters.
func (s *memoryStore) insertRaw(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[storeKey{rec.Kind, rec.OwnerID}] = rec.Clone()
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ============================================================================
// FAKE PRINCIPALS
// ============================================================================

type fakePrincipals struct {
	mu      sync.Mutex
	users   map[string]*users.User
	saveErr error
	saves   int
}

func newFakePrincipals(list ...*users.User) *fakePrincipals {
	p := &fakePrincipals{users: make(map[string]*users.User)}
	for _, u := range list {
		p.users[u.ID] = u.Clone()
	}
	return p
}

func (p *fakePrincipals) FindPrincipalByID(ctx context.Context, id string) (*users.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u.Clone(), nil
}

func (p *fakePrincipals) SavePrincipal(ctx context.Context, principal *users.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	if _, ok := p.users[principal.ID]; !ok {
		return shared.ErrNotFound
	}
	p.saves++
	p.users[principal.ID] = principal.Clone()
	return nil
}

func (p *fakePrincipals) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, u := range p.users {
		if id != excludeID && users.EmailKey(u.Email) == users.EmailKey(email) {
			return true, nil
		}
	}
	return false, nil
}

// put replaces a user as an administrator edit through the users API would.
func (p *fakePrincipals) put(u *users.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.ID] = u.Clone()
}

func (p *fakePrincipals) get(t *testing.T, id string) *users.User {
	t.Helper()
	u, err := p.FindPrincipalByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

// ============================================================================
// RECORDING ALERT QUEUE
// ============================================================================

type recordingQueue struct {
	mu   sync.Mutex
	sent []jobs.SendEmailPayload
	err  error
}

func (q *recordingQueue) EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.sent = append(q.sent, payload)
	return &asynq.TaskInfo{Queue: jobs.QueueDefault, Type: jobs.TaskTypeSendEmail}, nil
}

func (q *recordingQueue) payloads() []jobs.SendEmailPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]jobs.SendEmailPayload(nil), q.sent...)
}

// ============================================================================
// HELPERS
// ============================================================================

func newTestUser(t *testing.T, name, email string, role authz.Role, password string) *users.User {
	t.Helper()
	u := &users.User{ID: shared.NewObjectID(), Name: name, Email: email, IsActive: true}
	u.AssignRole(authz.NewAuthorizer(nil), role)
	require.NoError(t, u.SetPassword(password))
	return u
}

var errBoom = errors.New("boom")
