package settings

import (
	"strings"

	"github.com/facilityhub/backoffice/internal/users"
)

const (
	ownerFieldUser         = "userId"
	ownerFieldOrganization = "organizationId"
)

// General holds the profile section. It is seeded from the owning user.
var General = &Descriptor{
	Kind:       KindGeneral,
	OwnerField: ownerFieldUser,
	Owner:      OwnerUser,
	Fields: []Field{
		{Name: "firstName", Type: TypeString, Default: "Admin", Rule: "max=100"},
		{Name: "lastName", Type: TypeString, Default: "User", Rule: "max=100"},
		{Name: "email", Type: TypeString, Default: "", Rule: "omitempty,email"},
		{Name: "phone", Type: TypeString, Default: "", Rule: "omitempty,max=32"},
		{Name: "profileImage", Type: TypeString, Default: "", Rule: "omitempty,max=2048"},
		{Name: "language", Type: TypeEnum, Default: "en", Enum: []string{"en", "es", "fr", "de"}},
		{Name: "timezone", Type: TypeString, Default: "UTC", Rule: "required,timezone"},
		{Name: "theme", Type: TypeEnum, Default: "light", Enum: []string{"light", "dark", "system"}},
		{Name: "dateFormat", Type: TypeEnum, Default: "MM/DD/YYYY", Enum: []string{"MM/DD/YYYY", "DD/MM/YYYY", "YYYY-MM-DD"}},
	},
	Seed:   seedGeneral,
	Mirror: mirrorProfile,
}

// Notification holds per-user delivery preferences.
var Notification = &Descriptor{
	Kind:       KindNotification,
	OwnerField: ownerFieldUser,
	Owner:      OwnerUser,
	Fields: []Field{
		{Name: "emailNotifications", Type: TypeBool, Default: false},
		{Name: "pushNotifications", Type: TypeBool, Default: false},
		{Name: "smsNotifications", Type: TypeBool, Default: false},
		{Name: "maintenanceAlerts", Type: TypeBool, Default: false},
		{Name: "securityAlerts", Type: TypeBool, Default: true},
		{Name: "weeklyReports", Type: TypeBool, Default: false},
		{Name: "systemUpdates", Type: TypeBool, Default: false},
		{Name: "emergencyAlerts", Type: TypeBool, Default: true},
	},
}

// Security holds per-user security preferences. Passwords are changed through SecurityService.
var Security = &Descriptor{
	Kind:       KindSecurity,
	OwnerField: ownerFieldUser,
	Owner:      OwnerUser,
	Fields: []Field{
		{Name: "twoFactorEnabled", Type: TypeBool, Default: false},
		{Name: "sessionTimeout", Type: TypeInt, Default: 30, Min: 5, Max: 1440},
		{Name: "passwordExpiryDays", Type: TypeInt, Default: 90, Min: 0, Max: 365},
		{Name: "loginAlerts", Type: TypeBool, Default: true},
		{Name: "ipWhitelistEnabled", Type: TypeBool, Default: false},
	},
}

// MapManagement is organization-wide map publishing configuration.
var MapManagement = &Descriptor{
	Kind:       KindMapManagement,
	OwnerField: ownerFieldOrganization,
	Owner:      OwnerOrganization,
	Fields: []Field{
		{Name: "autoPublishUpdates", Type: TypeBool, Default: false},
		{Name: "highResolutionThumbnails", Type: TypeBool, Default: false},
		{Name: "enableVersionControl", Type: TypeBool, Default: false},
	},
}

// MapManager is the per-user map editor configuration.
var MapManager = &Descriptor{
	Kind:       KindMapManager,
	OwnerField: ownerFieldUser,
	Owner:      OwnerUser,
	Fields: []Field{
		{Name: "defaultView", Type: TypeEnum, Default: "2d", Enum: []string{"2d", "3d"}},
		{Name: "gridUnit", Type: TypeEnum, Default: "meters", Enum: []string{"meters", "feet"}},
		{Name: "showGrid", Type: TypeBool, Default: true},
		{Name: "snapToGrid", Type: TypeBool, Default: true},
		{Name: "autoSave", Type: TypeBool, Default: true},
		{Name: "refreshInterval", Type: TypeInt, Default: 30, Min: 5, Max: 3600},
	},
}

// Descriptors returns every resource descriptor keyed by kind.
func Descriptors() map[Kind]*Descriptor {
	return map[Kind]*Descriptor{
		KindGeneral:       General,
		KindNotification:  Notification,
		KindSecurity:      Security,
		KindMapManagement: MapManagement,
		KindMapManager:    MapManager,
	}
}

// SplitName splits a display name into first and last name. The first token is the first
// name and the remainder the last name, falling back to "Admin" and "User".
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	first, last = "Admin", "User"
	if len(parts) > 0 {
		first = parts[0]
	}
	if len(parts) > 1 {
		last = strings.Join(parts[1:], " ")
	}
	return first, last
}

// JoinName reassembles a display name.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func seedGeneral(owner *users.User) map[string]any {
	first, last := SplitName(owner.Name)
	return map[string]any{
		"firstName":    first,
		"lastName":     last,
		"email":        owner.Email,
		"profileImage": owner.ProfileImage,
	}
}

// mirrorProfile shows the user's current email, image and name. Stored names are kept while
// they still join to the user's name, so multi-word first names survive.
func mirrorProfile(fields map[string]any, owner *users.User) {
	first, _ := fields["firstName"].(string)
	last, _ := fields["lastName"].(string)
	if JoinName(first, last) != strings.TrimSpace(owner.Name) {
		fields["firstName"], fields["lastName"] = SplitName(owner.Name)
	}
	fields["email"] = owner.Email
	fields["profileImage"] = owner.ProfileImage
}
