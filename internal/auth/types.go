package auth

import "time"

// Tenant is an isolated customer namespace identified by its domain.
type Tenant struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User belongs to exactly one tenant. Email uniqueness is scoped to
// (email, tenant_id), never globally.
type User struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	IsActive       bool       `json:"is_active"`
	EmailConfirmed bool       `json:"email_confirmed"`
	ExternalAuth   bool       `json:"external_auth"`
	ResetToken     string     `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DisplayName joins the user's first and last name for token claims.
func (u User) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Role groups permissions. Role names are unique.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is a (resource, action) capability. The pair is unique.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// RolePermission grants a permission to a role.
type RolePermission struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// RefreshToken is a persisted opaque credential. Once revoked it never
// transitions back to active; expiry is a time-derived state checked lazily.
type RefreshToken struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Token       string     `json:"-"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedByIP string     `json:"created_by_ip,omitempty"`
	Revoked     bool       `json:"is_revoked"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	RevokedByIP string     `json:"revoked_by_ip,omitempty"`
}

// ActiveAt reports whether the token may still be rotated or revoked.
func (t RefreshToken) ActiveAt(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Session is the disposable roles/permissions projection cached per user.
// It is never the system of record.
type Session struct {
	UserID      string   `json:"user_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// AuthUser is the user view returned to downstream callers.
type AuthUser struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	TenantDomain string   `json:"tenant_domain"`
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
}

// AuthResult is produced by every successful authentication use case.
type AuthResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}
