package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/shared"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestManagerGetCreatesOrganizationDefaults(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(MapManagement, store, nil, Options{Now: fixedNow})

	rec, err := m.Get(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.Equal(t, testOrgID, rec.OwnerID)
	assert.Equal(t, map[string]any{
		"autoPublishUpdates":       false,
		"highResolutionThumbnails": false,
		"enableVersionControl":     false,
	}, rec.Fields)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.count())

	again, err := m.Get(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fields, again.Fields)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.count())
}

func TestManagerGetUsesDocumentedDefaults(t *testing.T) {
	owner := newTestUser(t, "Dana Scully", "dana@example.com", authz.RoleStaff, "password123")
	store := newMemoryStore()
	principals := newFakePrincipals(owner)

	tests := []struct {
		desc *Descriptor
		want map[string]any
	}{
		{Notification, map[string]any{
			"emailNotifications": false, "pushNotifications": false, "smsNotifications": false,
			"maintenanceAlerts": false, "securityAlerts": true, "weeklyReports": false,
			"systemUpdates": false, "emergencyAlerts": true,
		}},
		{Security, map[string]any{
			"twoFactorEnabled": false, "sessionTimeout": 30, "passwordExpiryDays": 90,
			"loginAlerts": true, "ipWhitelistEnabled": false,
		}},
		{MapManager, map[string]any{
			"defaultView": "2d", "gridUnit": "meters", "showGrid": true,
			"snapToGrid": true, "autoSave": true, "refreshInterval": 30,
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.desc.Kind), func(t *testing.T) {
			rec, err := NewManager(tt.desc, store, principals, Options{}).Get(context.Background(), owner.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Fields)
		})
	}
}

func TestManagerGetSeedsGeneralFromUser(t *testing.T) {
	tests := []struct {
		name      string
		fullName  string
		wantFirst string
		wantLast  string
	}{
		{"first and last", "Jane Doe", "Jane", "Doe"},
		{"middle names kept in last name", "Jane Mary Doe", "Jane", "Mary Doe"},
		{"single token", "Cher", "Cher", "User"},
		{"empty", "   ", "Admin", "User"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := newTestUser(t, tt.fullName, "jane@example.com", authz.RoleStaff, "password123")
			owner.ProfileImage = "https://cdn.example.com/jane.png"
			m := NewManager(General, newMemoryStore(), newFakePrincipals(owner), Options{})

			rec, err := m.Get(context.Background(), owner.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFirst, rec.String("firstName"))
			assert.Equal(t, tt.wantLast, rec.String("lastName"))
			assert.Equal(t, "jane@example.com", rec.String("email"))
			assert.Equal(t, "https://cdn.example.com/jane.png", rec.String("profileImage"))
			assert.Equal(t, "en", rec.String("language"))
			assert.Equal(t, "UTC", rec.String("timezone"))
			assert.Equal(t, "light", rec.String("theme"))
			assert.Equal(t, "MM/DD/YYYY", rec.String("dateFormat"))
			assert.Equal(t, "", rec.String("phone"))
		})
	}
}

func TestManagerRejectsMalformedOwnerBeforeStorage(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(MapManagement, store, nil, Options{})

	for _, id := range []string{"", "not-an-id", "507f1f77bcf86cd79943901", "507f1f77bcf86cd79943901z"} {
		_, err := m.Get(context.Background(), id)
		assert.ErrorIs(t, err, shared.ErrInvalidReference, id)

		_, err = m.Update(context.Background(), id, map[string]any{"autoPublishUpdates": true}, "")
		assert.ErrorIs(t, err, shared.ErrInvalidReference, id)
	}
	assert.Zero(t, store.finds)
	assert.Zero(t, store.creates)
	assert.Zero(t, store.upserts)
}

func TestManagerUnknownUserIsNotFound(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(Notification, store, newFakePrincipals(), Options{})

	_, err := m.Get(context.Background(), shared.NewObjectID())
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = m.Update(context.Background(), shared.NewObjectID(), map[string]any{"weeklyReports": true}, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Zero(t, store.count())
}

func TestManagerGetResolvesCreateRace(t *testing.T) {
	store := newMemoryStore()
	store.beforeCreate = func(rec *Record) {
		winner := rec.Clone()
		winner.Fields["autoPublishUpdates"] = true
		store.insertRaw(winner)
	}
	m := NewManager(MapManagement, store, nil, Options{})

	rec, err := m.Get(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.True(t, rec.Bool("autoPublishUpdates"))
	assert.Equal(t, 1, store.count())
}

func TestManagerUpdateUpsertsAbsentRecord(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(MapManagement, store, nil, Options{Now: fixedNow})

	rec, err := m.Update(context.Background(), testOrgID, map[string]any{"autoPublishUpdates": true}, "actor-1")
	require.NoError(t, err)
	assert.True(t, rec.Bool("autoPublishUpdates"))
	assert.False(t, rec.Bool("highResolutionThumbnails"))
	assert.False(t, rec.Bool("enableVersionControl"))
	assert.Equal(t, "actor-1", rec.UpdatedBy)
	assert.Equal(t, fixedNow(), rec.UpdatedAt)
	assert.Equal(t, 1, store.upserts)
	assert.Zero(t, store.creates)

	got, err := m.Get(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.True(t, got.Bool("autoPublishUpdates"))
	assert.Zero(t, store.creates)
}

func TestManagerUpdateChangesOnlyPatchedFields(t *testing.T) {
	owner := newTestUser(t, "Ops Lead", "ops@example.com", authz.RoleManager, "password123")
	m := NewManager(Security, newMemoryStore(), newFakePrincipals(owner), Options{})
	ctx := context.Background()

	before, err := m.Get(ctx, owner.ID)
	require.NoError(t, err)

	_, err = m.Update(ctx, owner.ID, map[string]any{"sessionTimeout": 120}, owner.ID)
	require.NoError(t, err)

	after, err := m.Get(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, after.Int("sessionTimeout"))
	for k, v := range before.Fields {
		if k == "sessionTimeout" {
			continue
		}
		assert.Equal(t, v, after.Fields[k], k)
	}
}

func TestManagerUpdateIsIdempotent(t *testing.T) {
	owner := newTestUser(t, "Ops Lead", "ops@example.com", authz.RoleManager, "password123")
	m := NewManager(MapManager, newMemoryStore(), newFakePrincipals(owner), Options{})
	patch := map[string]any{"defaultView": "3d", "refreshInterval": float64(60)}

	first, err := m.Update(context.Background(), owner.ID, patch, owner.ID)
	require.NoError(t, err)
	second, err := m.Update(context.Background(), owner.ID, patch, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, 60, second.Int("refreshInterval"))
}

func TestManagerUpdateRejectsProtectedFields(t *testing.T) {
	owner := newTestUser(t, "Ops Lead", "ops@example.com", authz.RoleStaff, "password123")
	store := newMemoryStore()
	m := NewManager(General, store, newFakePrincipals(owner), Options{})

	for _, field := range []string{"role", "permissions", "password"} {
		_, err := m.Update(context.Background(), owner.ID, map[string]any{field: "admin", "theme": "dark"}, owner.ID)
		require.ErrorIs(t, err, shared.ErrValidation, field)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Fields, field)
	}
	assert.Zero(t, store.upserts)
}

func TestManagerUpdateIgnoresStrayFields(t *testing.T) {
	store := newMemoryStore()
	m := NewManager(MapManagement, store, nil, Options{})

	rec, err := m.Update(context.Background(), testOrgID, map[string]any{
		"enableVersionControl": true,
		"organizationId":       "000000000000000000000000",
		"updatedBy":            "someone-else",
		"colour":               "teal",
	}, "actor-1")
	require.NoError(t, err)
	assert.True(t, rec.Bool("enableVersionControl"))
	assert.Equal(t, testOrgID, rec.OwnerID)
	assert.Equal(t, "actor-1", rec.UpdatedBy)
	assert.NotContains(t, rec.Fields, "colour")

	stored, err := store.FindByOwner(context.Background(), KindMapManagement, testOrgID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Fields, "colour")
	assert.NotContains(t, stored.Fields, "organizationId")
}

func TestManagerUpdateChecksTypesAndRanges(t *testing.T) {
	owner := newTestUser(t, "Ops Lead", "ops@example.com", authz.RoleStaff, "password123")
	store := newMemoryStore()
	principals := newFakePrincipals(owner)

	tests := []struct {
		name  string
		desc  *Descriptor
		patch map[string]any
		field string
	}{
		{"string for bool", Notification, map[string]any{"weeklyReports": "yes"}, "weeklyReports"},
		{"string for int", Security, map[string]any{"sessionTimeout": "abc"}, "sessionTimeout"},
		{"fractional int", Security, map[string]any{"sessionTimeout": 30.5}, "sessionTimeout"},
		{"below range", Security, map[string]any{"sessionTimeout": 2}, "sessionTimeout"},
		{"above range", MapManager, map[string]any{"refreshInterval": 7200}, "refreshInterval"},
		{"unknown enum", General, map[string]any{"theme": "neon"}, "theme"},
		{"bad email", General, map[string]any{"email": "not-an-email"}, "email"},
		{"bad timezone", General, map[string]any{"timezone": "Mars/Olympus"}, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.desc, store, principals, Options{}).Update(context.Background(), owner.ID, tt.patch, owner.ID)
			require.ErrorIs(t, err, shared.ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
	assert.Zero(t, store.upserts)
}

func TestManagerCompletesRecordsMissingNewFields(t *testing.T) {
	store := newMemoryStore()
	store.insertRaw(&Record{
		Kind:    KindMapManagement,
		OwnerID: testOrgID,
		Fields:  map[string]any{"autoPublishUpdates": true, "legacy": 1},
	})
	m := NewManager(MapManagement, store, nil, Options{})

	rec, err := m.Get(context.Background(), testOrgID)
	require.NoError(t, err)
	assert.True(t, rec.Bool("autoPublishUpdates"))
	assert.Contains(t, rec.Fields, "enableVersionControl")
	assert.NotContains(t, rec.Fields, "legacy")
	assert.Zero(t, store.creates)
}

func TestRecordMarshalJSONFlattensOwner(t *testing.T) {
	rec := &Record{
		Kind:       KindMapManagement,
		OwnerID:    testOrgID,
		OwnerField: "organizationId",
		Fields:     map[string]any{"autoPublishUpdates": true},
		UpdatedAt:  fixedNow(),
		UpdatedBy:  "actor-1",
	}
	raw, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"organizationId": "507f1f77bcf86cd799439011",
		"autoPublishUpdates": true,
		"updatedAt": "2026-03-01T12:00:00Z",
		"updatedBy": "actor-1"
	}`, string(raw))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("map-management")
	require.NoError(t, err)
	assert.Equal(t, KindMapManagement, kind)

	kind, err = ParseKind("Notification")
	require.NoError(t, err)
	assert.Equal(t, KindNotification, kind)

	_, err = ParseKind("billing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
