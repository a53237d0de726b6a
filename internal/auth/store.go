package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations required by the auth core.
//
// Implementations map uniqueness violations (email+tenant, domain, token)
// to ErrConflict and missing rows to ErrNotFound. Tx runs fn within a single
// transaction; every authentication use case executes inside one so that
// partial writes (a tenant without its user, a revoke without its
// replacement token) never persist.
type Store interface {
	Tx(ctx context.Context, fn func(Store) error) error

	CreateTenant(ctx context.Context, t *Tenant) error
	FindTenantByDomain(ctx context.Context, domain string) (Tenant, error)
	FindTenantByID(ctx context.Context, id string) (Tenant, error)

	CreateUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, id string) (User, error)
	// FindUserByEmail resolves across all tenants and succeeds only when
	// exactly one user matches; ambiguity reports ErrNotFound. Used by the
	// tenant-less login and reset paths.
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByEmailInTenant(ctx context.Context, email, tenantID string) (User, error)
	FindUserByResetToken(ctx context.Context, token string) (User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	// ResetPassword replaces the hash, clears the reset token and its
	// expiry, and stamps updated_at in one statement.
	ResetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error

	FindRoleByName(ctx context.Context, name string) (Role, error)
	AssignRole(ctx context.Context, userID, roleID string, at time.Time) error
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)

	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	// RevokeActiveRefreshToken marks the token revoked if and only if it is
	// still active at now. The active check and the revoke write happen in
	// the same statement, so of two concurrent rotations exactly one wins;
	// the loser gets ErrNotFound.
	RevokeActiveRefreshToken(ctx context.Context, token, ip string, now time.Time) (RefreshToken, error)
}
