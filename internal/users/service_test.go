package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	users   map[string]*User
	saveErr error
	txCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*User)}
}

func (m *mockRepository) Get(ctx context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u.Clone(), nil
}

func (m *mockRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if EmailKey(u.Email) == EmailKey(email) {
			return u.Clone(), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		if filters.Role != "" && u.Role != filters.Role {
			continue
		}
		if filters.Search != "" && !strings.Contains(u.Name, filters.Search) {
			continue
		}
		out = append(out, *u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *mockRepository) Create(ctx context.Context, user *User) error {
	for _, u := range m.users {
		if EmailKey(u.Email) == EmailKey(user.Email) {
			return shared.ErrConflict
		}
	}
	m.users[user.ID] = user.Clone()
	return nil
}

func (m *mockRepository) Save(ctx context.Context, user *User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.users[user.ID]; !ok {
		return shared.ErrNotFound
	}
	m.users[user.ID] = user.Clone()
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	for _, u := range m.users {
		if u.ID != excludeID && EmailKey(u.Email) == EmailKey(email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	m.txCalls++
	snapshot := make(map[string]*User, len(m.users))
	for id, u := range m.users {
		snapshot[id] = u.Clone()
	}
	if err := fn(m); err != nil {
		m.users = snapshot
		return err
	}
	return nil
}

type recordingAuditor struct {
	logs []shared.AuditLog
}

func (a *recordingAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService() (*Service, *mockRepository, *recordingAuditor) {
	repo := newMockRepository()
	audit := &recordingAuditor{}
	return NewService(repo, authz.NewAuthorizer(nil), audit), repo, audit
}

func mustCreate(t *testing.T, svc *Service, name, email, role string) *User {
	t.Helper()
	u, err := svc.Create(context.Background(), CreateInput{Name: name, Email: email, Password: "secret-pass", Role: role}, "")
	require.NoError(t, err)
	return u
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateDerivesPermissionsFromRole(t *testing.T) {
	svc, repo, audit := newTestService()

	u := mustCreate(t, svc, "Jane Doe", "jane@example.com", "staff")
	assert.Len(t, u.ID, shared.ObjectIDLength)
	assert.Equal(t, authz.RoleStaff, u.Role)
	assert.Equal(t, []string{"view_basic"}, u.Permissions.Strings())
	assert.True(t, u.CheckPassword("secret-pass"))
	assert.NotEqual(t, "secret-pass", repo.users[u.ID].PasswordHash)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "user.create", audit.logs[0].Action)
}

func TestCreateRejectsUnknownRoleAndDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "X", Email: "x@example.com", Password: "secret-pass", Role: "owner"}, "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	mustCreate(t, svc, "Jane", "jane@example.com", "viewer")
	_, err = svc.Create(ctx, CreateInput{Name: "Other", Email: "JANE@example.com", Password: "secret-pass", Role: "viewer"}, "")
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRejectsShortPassword(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateInput{Name: "X", Email: "x@example.com", Password: "short", Role: "staff"}, "")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRoleRecomputesPermissions(t *testing.T) {
	svc, repo, _ := newTestService()
	u := mustCreate(t, svc, "Tom", "tom@example.com", "staff")

	role := "security"
	updated, err := svc.Update(context.Background(), u.ID, UpdateInput{Role: &role}, "")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleSecurity, updated.Role)
	assert.True(t, updated.Permissions.Equal(authz.DefaultTable().PermissionsFor(authz.RoleSecurity)))
	assert.True(t, repo.users[u.ID].Permissions.Has(authz.CapViewSecurity))
}

func TestUpdateSameRoleKeepsPermissions(t *testing.T) {
	svc, _, _ := newTestService()
	u := mustCreate(t, svc, "Tom", "tom@example.com", "manager")

	role := "manager"
	updated, err := svc.Update(context.Background(), u.ID, UpdateInput{Role: &role}, "")
	require.NoError(t, err)
	assert.True(t, updated.Permissions.Equal(u.Permissions))
}

func TestUpdateWithoutRoleLeavesPermissions(t *testing.T) {
	svc, _, _ := newTestService()
	u := mustCreate(t, svc, "Tom", "tom@example.com", "technician")

	name := "Thomas"
	updated, err := svc.Update(context.Background(), u.ID, UpdateInput{Name: &name}, "")
	require.NoError(t, err)
	assert.Equal(t, "Thomas", updated.Name)
	assert.True(t, updated.Permissions.Equal(u.Permissions))
}

func TestUpdateEmailConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	mustCreate(t, svc, "A", "a@example.com", "staff")
	b := mustCreate(t, svc, "B", "b@example.com", "staff")

	email := "A@Example.com"
	_, err := svc.Update(context.Background(), b.ID, UpdateInput{Email: &email}, "")
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, "b@example.com", repo.users[b.ID].Email)
}

func TestUpdateInvalidReference(t *testing.T) {
	svc, _, _ := newTestService()
	name := "x"
	_, err := svc.Update(context.Background(), "not-an-id", UpdateInput{Name: &name}, "")
	assert.ErrorIs(t, err, shared.ErrInvalidReference)

	_, err = svc.Update(context.Background(), shared.NewObjectID(), UpdateInput{Name: &name}, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBulkUpdateRoleRecomputesEveryUser(t *testing.T) {
	svc, repo, audit := newTestService()
	a := mustCreate(t, svc, "A", "a@example.com", "staff")
	b := mustCreate(t, svc, "B", "b@example.com", "viewer")
	audit.logs = nil

	updated, err := svc.BulkUpdateRole(context.Background(), BulkRoleInput{IDs: []string{a.ID, b.ID}, Role: "technician"}, "")
	require.NoError(t, err)
	require.Len(t, updated, 2)
	want := authz.DefaultTable().PermissionsFor(authz.RoleTechnician)
	for _, id := range []string{a.ID, b.ID} {
		assert.Equal(t, authz.RoleTechnician, repo.users[id].Role)
		assert.True(t, repo.users[id].Permissions.Equal(want))
	}
	assert.Equal(t, 1, repo.txCalls)
	assert.Len(t, audit.logs, 2)
}

func TestBulkUpdateRoleRollsBackOnMissingUser(t *testing.T) {
	svc, repo, _ := newTestService()
	a := mustCreate(t, svc, "A", "a@example.com", "staff")

	_, err := svc.BulkUpdateRole(context.Background(), BulkRoleInput{IDs: []string{a.ID, shared.NewObjectID()}, Role: "admin"}, "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, authz.RoleStaff, repo.users[a.ID].Role)
}

func TestSavePrincipalRederivesPermissions(t *testing.T) {
	svc, repo, _ := newTestService()
	u := mustCreate(t, svc, "A", "a@example.com", "staff")

	u.Permissions = authz.NewCapabilitySet(authz.CapDeleteUsers)
	require.NoError(t, svc.SavePrincipal(context.Background(), u))
	assert.Equal(t, []string{"view_basic"}, repo.users[u.ID].Permissions.Strings())
}

func TestDelete(t *testing.T) {
	svc, repo, _ := newTestService()
	u := mustCreate(t, svc, "A", "a@example.com", "staff")

	err := svc.Delete(context.Background(), u.ID, u.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.Delete(context.Background(), u.ID, shared.NewObjectID()))
	assert.NotContains(t, repo.users, u.ID)

	err = svc.Delete(context.Background(), u.ID, "")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestEmailKeyFoldsCase(t *testing.T) {
	assert.Equal(t, EmailKey(" Admin@Example.COM "), EmailKey("admin@example.com"))
}

func TestNilUserHasNoCapabilities(t *testing.T) {
	var u *User
	var p authz.Principal = u

	assert.NotPanics(t, func() {
		assert.False(t, authz.HasPermission(p, authz.CapViewBasic))
		assert.False(t, authz.HasAnyPermission(p, authz.CapViewBasic, authz.CapEditAll))
		assert.False(t, authz.HasAllPermissions(p, authz.CapViewBasic))
	})
	assert.Empty(t, p.PrincipalID())
}
