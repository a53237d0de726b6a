package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"authcore.dev/internal/obs"
)

const defaultResetTTL = time.Hour

// Service composes tenant resolution, credential verification, permission
// aggregation, token issuance and the session cache into the authentication
// use cases. Every use case runs its store work inside a single transaction;
// session-cache writes happen after commit and are best-effort.
type Service struct {
	store    Store
	tokens   *TokenService
	sessions *SessionGateway
	resetTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithSessionGateway enables write-through session caching.
func WithSessionGateway(g *SessionGateway) ServiceOption {
	return func(s *Service) { s.sessions = g }
}

// WithResetTTL overrides the password-reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authentication service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	s := &Service{
		store:    store,
		tokens:   tokens,
		resetTTL: defaultResetTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the token service for transport-layer validation.
func (s *Service) Tokens() *TokenService { return s.tokens }

// RegisterInput carries the registration use-case request.
type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	TenantDomain string
	IP           string
}

// Register creates the tenant (when unseen), the user, the default role
// assignment and the first token pair. A duplicate (email, tenant) reports
// ErrConflict; the unique index backs the check under concurrency.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if in.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if NormalizeDomain(in.TenantDomain) == "" {
		return AuthResult{}, fmt.Errorf("%w: tenant domain is required", ErrInvalidInput)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	var result AuthResult
	err = s.store.Tx(ctx, func(tx Store) error {
		tenant, err := NewTenantResolver(tx).ResolveOrCreate(ctx, in.TenantDomain, in.TenantDomain)
		if err != nil {
			return err
		}
		if _, err := tx.FindUserByEmailInTenant(ctx, email, tenant.ID); err == nil {
			return fmt.Errorf("%w: email already registered for tenant", ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		user := User{
			TenantID:     tenant.ID,
			Email:        email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			IsActive:     true,
		}
		if err := tx.CreateUser(ctx, &user); err != nil {
			return err
		}

		// Seeded default role; tolerate a catalog without it.
		if role, err := tx.FindRoleByName(ctx, RoleUser); err == nil {
			if err := tx.AssignRole(ctx, user.ID, role.ID, s.now().UTC()); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		result, err = s.issueTokens(ctx, tx, user, tenant, in.IP)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}
	s.putSession(ctx, result)
	return result, nil
}

// LoginInput carries the login use-case request. TenantDomain may be empty,
// in which case the user is resolved by email alone; that relaxation only
// works when the email matches exactly one user system-wide.
type LoginInput struct {
	Email        string
	Password     string
	TenantDomain string
	IP           string
}

// Login verifies credentials and issues a fresh token pair. The caller
// cannot distinguish an unknown user, a bad password or a deactivated
// account: all fail with ErrUnauthorized. Store failures are not part of
// that taxonomy and surface unchanged.
func (s *Service) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, ErrUnauthorized
	}

	var result AuthResult
	err := s.store.Tx(ctx, func(tx Store) error {
		user, tenant, err := s.resolveUser(ctx, tx, email, in.TenantDomain)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			return ErrUnauthorized
		}
		if err != nil {
			return err
		}
		if !VerifyPassword(user.PasswordHash, in.Password) {
			return ErrUnauthorized
		}
		if !user.IsActive {
			return ErrUnauthorized
		}
		if err := tx.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
			return err
		}
		result, err = s.issueTokens(ctx, tx, user, tenant, in.IP)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}
	s.putSession(ctx, result)
	return result, nil
}

// Refresh rotates a refresh token: the old token is revoked and a brand-new
// access+refresh pair is issued in the same transaction. A token that is
// absent, revoked or expired fails with ErrUnauthorized; of two concurrent
// rotations of the same token exactly one succeeds.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip string) (AuthResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return AuthResult{}, ErrUnauthorized
	}

	var result AuthResult
	err := s.store.Tx(ctx, func(tx Store) error {
		revoked, err := tx.RevokeActiveRefreshToken(ctx, refreshToken, ip, s.now().UTC())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		user, err := tx.FindUserByID(ctx, revoked.UserID)
		if errors.Is(err, ErrNotFound) {
			return ErrUnauthorized
		}
		if err != nil {
			return err
		}
		tenant, err := tx.FindTenantByID(ctx, user.TenantID)
		if err != nil {
			return err
		}
		result, err = s.issueTokens(ctx, tx, user, tenant, ip)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}
	s.putSession(ctx, result)
	return result, nil
}

// Revoke marks a refresh token revoked (logout) and drops the user's cached
// session. Inactive or unknown tokens report ErrUnauthorized.
func (s *Service) Revoke(ctx context.Context, refreshToken, ip string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrUnauthorized
	}

	var userID string
	err := s.store.Tx(ctx, func(tx Store) error {
		revoked, err := tx.RevokeActiveRefreshToken(ctx, refreshToken, ip, s.now().UTC())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		userID = revoked.UserID
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn", "msg": "session invalidate failed",
			"user_id": userID, "error": err.Error(),
		})
	}
	return nil
}

// OAuthInput carries an identity already verified by an upstream provider.
type OAuthInput struct {
	Email        string
	Name         string
	Provider     string
	TenantDomain string
	IP           string
}

// OAuthLogin trusts the provider's assertion and never verifies a password.
// An unseen email in the resolved tenant is provisioned on first login with
// no local password and a confirmed email.
func (s *Service) OAuthLogin(ctx context.Context, in OAuthInput) (AuthResult, error) {
	email := NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Provider) == "" {
		return AuthResult{}, fmt.Errorf("%w: provider is required", ErrInvalidInput)
	}
	if NormalizeDomain(in.TenantDomain) == "" {
		return AuthResult{}, fmt.Errorf("%w: tenant domain is required", ErrInvalidInput)
	}

	var result AuthResult
	err := s.store.Tx(ctx, func(tx Store) error {
		tenant, err := NewTenantResolver(tx).ResolveOrCreate(ctx, in.TenantDomain, in.TenantDomain)
		if err != nil {
			return err
		}

		user, err := tx.FindUserByEmailInTenant(ctx, email, tenant.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			first, last := splitName(in.Name)
			user = User{
				TenantID:       tenant.ID,
				Email:          email,
				FirstName:      first,
				LastName:       last,
				IsActive:       true,
				EmailConfirmed: true,
				ExternalAuth:   true,
			}
			if err := tx.CreateUser(ctx, &user); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if !user.IsActive {
				return ErrUnauthorized
			}
			if err := tx.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
				return err
			}
		}

		result, err = s.issueTokens(ctx, tx, user, tenant, in.IP)
		return err
	})
	if err != nil {
		return AuthResult{}, err
	}
	s.putSession(ctx, result)
	return result, nil
}

// RequestPasswordReset generates and stores a single-use reset token for the
// matching user. The found flag is for the mail-dispatch collaborator only:
// the externally visible response must be identical whether or not the email
// matched.
func (s *Service) RequestPasswordReset(ctx context.Context, email, tenantDomain string) (token string, found bool, err error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", false, nil
	}

	err = s.store.Tx(ctx, func(tx Store) error {
		user, _, err := s.resolveUser(ctx, tx, email, tenantDomain)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			return nil
		}
		if err != nil {
			return err
		}
		token = newResetToken()
		found = true
		return tx.SetResetToken(ctx, user.ID, token, s.now().UTC().Add(s.resetTTL))
	})
	if err != nil {
		return "", false, err
	}
	return token, found, nil
}

// ConfirmPasswordReset consumes a reset token. An unknown, expired or
// already-consumed token reports false without a distinguishing error. On
// success the stored token is cleared, making it single-use by construction.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return false, nil
	}

	ok := false
	err := s.store.Tx(ctx, func(tx Store) error {
		user, err := tx.FindUserByResetToken(ctx, token)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if user.ResetExpiresAt == nil || user.ResetExpiresAt.Before(now) {
			return nil
		}
		hash, err := HashPassword(newPassword)
		if err != nil {
			return err
		}
		if err := tx.ResetPassword(ctx, user.ID, hash, now); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// resolveUser locates a user scoped by tenant domain when given, otherwise
// by email across all tenants.
func (s *Service) resolveUser(ctx context.Context, tx Store, email, tenantDomain string) (User, Tenant, error) {
	if NormalizeDomain(tenantDomain) != "" {
		tenant, err := NewTenantResolver(tx).Resolve(ctx, tenantDomain)
		if err != nil {
			return User{}, Tenant{}, err
		}
		user, err := tx.FindUserByEmailInTenant(ctx, email, tenant.ID)
		if err != nil {
			return User{}, Tenant{}, err
		}
		return user, tenant, nil
	}

	user, err := tx.FindUserByEmail(ctx, email)
	if err != nil {
		return User{}, Tenant{}, err
	}
	tenant, err := tx.FindTenantByID(ctx, user.TenantID)
	if err != nil {
		return User{}, Tenant{}, err
	}
	return user, tenant, nil
}

// issueTokens aggregates roles/permissions, signs an access token and
// persists exactly one new refresh token row.
func (s *Service) issueTokens(ctx context.Context, tx Store, user User, tenant Tenant, ip string) (AuthResult, error) {
	roles, permissions, err := Aggregate(ctx, tx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}

	accessToken, _, err := s.tokens.IssueAccessToken(user, tenant, roles, permissions)
	if err != nil {
		return AuthResult{}, err
	}

	opaque, err := s.tokens.NewRefreshToken()
	if err != nil {
		return AuthResult{}, err
	}
	now := s.now().UTC()
	record := RefreshToken{
		UserID:      user.ID,
		Token:       opaque,
		ExpiresAt:   now.Add(s.tokens.RefreshTTL()),
		CreatedAt:   now,
		CreatedByIP: ip,
	}
	if err := tx.CreateRefreshToken(ctx, &record); err != nil {
		return AuthResult{}, err
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: opaque,
		ExpiresAt:    record.ExpiresAt,
		User: AuthUser{
			ID:           user.ID,
			Email:        user.Email,
			FirstName:    user.FirstName,
			LastName:     user.LastName,
			TenantDomain: tenant.Domain,
			Roles:        roles,
			Permissions:  permissions,
		},
	}, nil
}

// putSession populates the session cache after a successful authentication.
// Failures are logged and swallowed: the cache is never allowed to fail a
// login, refresh or registration.
func (s *Service) putSession(ctx context.Context, result AuthResult) {
	err := s.sessions.Put(ctx, Session{
		UserID:      result.User.ID,
		Roles:       result.User.Roles,
		Permissions: result.User.Permissions,
	})
	if err != nil {
		obs.LogRequest(map[string]any{
			"level": "warn", "msg": "session cache write failed",
			"user_id": result.User.ID, "error": err.Error(),
		})
	}
}

func newResetToken() string {
	id := uuid.New()
	return base64.StdEncoding.EncodeToString(id[:])
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}
