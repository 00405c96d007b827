package users

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/facilityhub/backoffice/internal/authz"
	"github.com/facilityhub/backoffice/internal/shared"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// User is an administrative account and the system's principal.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         authz.Role
	Permissions  authz.CapabilitySet
	Department   string
	ProfileImage string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PrincipalID implements authz.Principal.
func (u *User) PrincipalID() string {
	if u == nil {
		return ""
	}
	return u.ID
}

// Capabilities implements authz.Principal. A nil user holds no capabilities.
func (u *User) Capabilities() authz.CapabilitySet {
	if u == nil {
		return nil
	}
	return u.Permissions
}

// AssignRole sets the role and replaces the permission set with the one derived from it.
func (u *User) AssignRole(a *authz.Authorizer, role authz.Role) {
	u.Role, u.Permissions = a.Recompute(role)
}

// SetPassword hashes plain and stores it.
func (u *User) SetPassword(plain string) error {
	if len(plain) < MinPasswordLength {
		return shared.Validationf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares plain with the stored hash.
func (u *User) CheckPassword(plain string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.Permissions = u.Permissions.Clone()
	return &c
}

// View is the JSON representation of a user.
type View struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Permissions  []string  `json:"permissions"`
	Department   string    `json:"department,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// View renders u without credentials.
func (u *User) View() View {
	return View{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         string(u.Role),
		Permissions:  u.Permissions.Strings(),
		Department:   u.Department,
		ProfileImage: u.ProfileImage,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// EmailKey folds an email address for case-insensitive comparison.
func EmailKey(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// ListFilters narrows user listings.
type ListFilters struct {
	Search  string
	Role    authz.Role
	Page    int
	PerPage int
}

// CreateInput carries the fields for a new user.
type CreateInput struct {
	Name       string `json:"name" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	Role       string `json:"role" validate:"required"`
	Department string `json:"department" validate:"max=120"`
}

// UpdateInput carries a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Name         *string `json:"name" validate:"omitempty,max=120"`
	Email        *string `json:"email" validate:"omitempty,email,max=254"`
	Role         *string `json:"role"`
	Department   *string `json:"department" validate:"omitempty,max=120"`
	ProfileImage *string `json:"profileImage" validate:"omitempty,max=2048"`
	IsActive     *bool   `json:"isActive"`
}

// BulkRoleInput assigns one role to many users.
type BulkRoleInput struct {
	IDs  []string `json:"ids" validate:"required,min=1,max=500,dive,len=24,hexadecimal"`
	Role string   `json:"role" validate:"required"`
}
