package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type serviceFixture struct {
	store *MemoryStore
	svc   *Service
	clock *time.Time
}

func newServiceFixture(t *testing.T, opts ...ServiceOption) *serviceFixture {
	t.Helper()
	store := NewMemoryStore()
	if err := store.SeedRBAC(context.Background()); err != nil {
		t.Fatalf("SeedRBAC: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	tokens, err := NewTokenService(testSecret, "authcore", "authcore-clients",
		WithTokenClock(func() time.Time { return *clock }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	opts = append(opts, WithClock(func() time.Time { return *clock }))
	svc, err := NewService(store, tokens, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceFixture{store: store, svc: svc, clock: clock}
}

func (f *serviceFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *serviceFixture) register(t *testing.T, email, password, domain string) AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), RegisterInput{
		Email:        email,
		Password:     password,
		TenantDomain: domain,
	})
	if err != nil {
		t.Fatalf("Register(%s, %s): %v", email, domain, err)
	}
	return result
}

func TestRegisterDuplicatePerTenantOnly(t *testing.T) {
	f := newServiceFixture(t)

	f.register(t, "kim@acme.io", "password-one", "acme.io")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email: "kim@acme.io", Password: "password-two", TenantDomain: "acme.io",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("same tenant duplicate: expected ErrConflict, got %v", err)
	}

	// The same email registers fine under another tenant.
	f.register(t, "kim@acme.io", "password-two", "globex.io")
}

func TestLoginWithoutTenantDomain(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "solo@acme.io", "password-one", "acme.io")

	// Exactly one match system-wide: the relaxation works.
	result, err := f.svc.Login(context.Background(), LoginInput{
		Email: "solo@acme.io", Password: "password-one",
	})
	if err != nil {
		t.Fatalf("tenant-less login: %v", err)
	}
	if result.User.TenantDomain != "acme.io" {
		t.Fatalf("unexpected tenant: %s", result.User.TenantDomain)
	}

	// Ambiguous across tenants: the relaxation must refuse.
	f.register(t, "solo@acme.io", "password-two", "globex.io")
	_, err = f.svc.Login(context.Background(), LoginInput{
		Email: "solo@acme.io", Password: "password-one",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("ambiguous login: expected ErrUnauthorized, got %v", err)
	}

	// Scoping by tenant still works.
	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "solo@acme.io", Password: "password-one", TenantDomain: "acme.io",
	}); err != nil {
		t.Fatalf("tenant-scoped login: %v", err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "kim@acme.io", "password-one", "acme.io")

	cases := []LoginInput{
		{Email: "ghost@acme.io", Password: "password-one", TenantDomain: "acme.io"},
		{Email: "kim@acme.io", Password: "wrong", TenantDomain: "acme.io"},
		{Email: "kim@acme.io", Password: "password-one", TenantDomain: "nowhere.io"},
		{Email: "", Password: "password-one"},
		{Email: "kim@acme.io", Password: ""},
	}
	for _, in := range cases {
		if _, err := f.svc.Login(context.Background(), in); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("login %+v: expected ErrUnauthorized, got %v", in, err)
		}
	}

	// Deactivated account fails the same way.
	f.store.mu.Lock()
	u := f.store.data.users[created.User.ID]
	u.IsActive = false
	f.store.data.users[created.User.ID] = u
	f.store.mu.Unlock()
	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "kim@acme.io", Password: "password-one", TenantDomain: "acme.io",
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive login: expected ErrUnauthorized, got %v", err)
	}
}

// outageStore delegates to an inner Store but fails user lookups with a
// fixed infrastructure error, simulating a database outage mid-request.
type outageStore struct {
	Store
	err error
}

func (o *outageStore) Tx(ctx context.Context, fn func(Store) error) error {
	return o.Store.Tx(ctx, func(tx Store) error {
		return fn(&outageStore{Store: tx, err: o.err})
	})
}

func (o *outageStore) FindUserByEmailInTenant(ctx context.Context, email, tenantID string) (User, error) {
	return User{}, o.err
}

func (o *outageStore) FindUserByID(ctx context.Context, id string) (User, error) {
	return User{}, o.err
}

func TestLoginSurfacesStoreOutage(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "kim@acme.io", "password-one", "acme.io")

	outage := errors.New("pg: connection refused")
	svc, err := NewService(&outageStore{Store: f.store, err: outage}, f.svc.Tokens())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Login(context.Background(), LoginInput{
		Email: "kim@acme.io", Password: "password-one", TenantDomain: "acme.io",
	})
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("store outage must not read as invalid credentials")
	}
	if !errors.Is(err, outage) {
		t.Fatalf("expected the store error to surface, got %v", err)
	}
}

func TestRefreshSurfacesStoreOutage(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "kim@acme.io", "password-one", "acme.io")

	outage := errors.New("pg: connection refused")
	svc, err := NewService(&outageStore{Store: f.store, err: outage}, f.svc.Tokens(),
		WithClock(func() time.Time { return *f.clock }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Refresh(context.Background(), created.RefreshToken, "10.0.0.1")
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("store outage must not read as invalid credentials")
	}
	if !errors.Is(err, outage) {
		t.Fatalf("expected the store error to surface, got %v", err)
	}
}

func TestLoginStampsLastLogin(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "kim@acme.io", "password-one", "acme.io")

	f.advance(time.Hour)
	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "kim@acme.io", Password: "password-one", TenantDomain: "acme.io",
	}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var user User
	err := f.store.Tx(context.Background(), func(tx Store) error {
		var err error
		user, err = tx.FindUserByID(context.Background(), created.User.ID)
		return err
	})
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if user.LastLoginAt == nil || !user.LastLoginAt.Equal(*f.clock) {
		t.Fatalf("expected last login at %v, got %v", *f.clock, user.LastLoginAt)
	}
}

func TestRefreshRotationIsAtomicAndSingleUse(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "rot@acme.io", "password-one", "acme.io")

	rotated, err := f.svc.Refresh(context.Background(), created.RefreshToken, "10.0.0.1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == created.RefreshToken {
		t.Fatal("rotation must mint a new opaque token")
	}

	if _, err := f.svc.Refresh(context.Background(), created.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("replay: expected ErrUnauthorized, got %v", err)
	}

	// The consumed token carries its revocation audit trail.
	record, err := f.store.FindRefreshToken(context.Background(), created.RefreshToken)
	if err != nil {
		t.Fatalf("FindRefreshToken: %v", err)
	}
	if !record.Revoked || record.RevokedAt == nil || record.RevokedByIP != "10.0.0.1" {
		t.Fatalf("expected revoked record with audit fields, got %+v", record)
	}

	// The replacement token still works.
	if _, err := f.svc.Refresh(context.Background(), rotated.RefreshToken, "10.0.0.1"); err != nil {
		t.Fatalf("rotated token refresh: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "exp@acme.io", "password-one", "acme.io")

	f.advance(8 * 24 * time.Hour)
	if _, err := f.svc.Refresh(context.Background(), created.RefreshToken, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired refresh: expected ErrUnauthorized, got %v", err)
	}
}

func TestRevokeMakesTokenDead(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "out@acme.io", "password-one", "acme.io")

	if err := f.svc.Revoke(context.Background(), created.RefreshToken, "10.0.0.1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	record, err := f.store.FindRefreshToken(context.Background(), created.RefreshToken)
	if err != nil {
		t.Fatalf("FindRefreshToken: %v", err)
	}
	if record.ActiveAt(*f.clock) {
		t.Fatalf("revoked token still reads active: %+v", record)
	}
	if err := f.svc.Revoke(context.Background(), created.RefreshToken, "10.0.0.1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("double revoke: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), created.RefreshToken, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh after revoke: expected ErrUnauthorized, got %v", err)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "reset@acme.io", "old-password", "acme.io")

	token, found, err := f.svc.RequestPasswordReset(context.Background(), "reset@acme.io", "acme.io")
	if err != nil || !found || token == "" {
		t.Fatalf("RequestPasswordReset: token=%q found=%v err=%v", token, found, err)
	}

	// Unknown email: no token, no error.
	ghostToken, ghostFound, err := f.svc.RequestPasswordReset(context.Background(), "ghost@acme.io", "acme.io")
	if err != nil || ghostFound || ghostToken != "" {
		t.Fatalf("unknown email: token=%q found=%v err=%v", ghostToken, ghostFound, err)
	}

	ok, err := f.svc.ConfirmPasswordReset(context.Background(), token, "new-password")
	if err != nil || !ok {
		t.Fatalf("ConfirmPasswordReset: ok=%v err=%v", ok, err)
	}

	// The token is single-use.
	ok, err = f.svc.ConfirmPasswordReset(context.Background(), token, "sneaky-password")
	if err != nil || ok {
		t.Fatalf("reused token: ok=%v err=%v", ok, err)
	}

	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "reset@acme.io", Password: "old-password", TenantDomain: "acme.io",
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old password should be dead, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "reset@acme.io", Password: "new-password", TenantDomain: "acme.io",
	}); err != nil {
		t.Fatalf("new password login: %v", err)
	}
}

func TestPasswordResetTokenExpires(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "late@acme.io", "old-password", "acme.io")

	token, _, err := f.svc.RequestPasswordReset(context.Background(), "late@acme.io", "acme.io")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	f.advance(2 * time.Hour)
	ok, err := f.svc.ConfirmPasswordReset(context.Background(), token, "new-password")
	if err != nil || ok {
		t.Fatalf("expired token: ok=%v err=%v", ok, err)
	}
}

func TestOAuthLoginProvisionsOnce(t *testing.T) {
	f := newServiceFixture(t)

	first, err := f.svc.OAuthLogin(context.Background(), OAuthInput{
		Email: "ext@acme.io", Name: "Ann Chen", Provider: "google", TenantDomain: "acme.io",
	})
	if err != nil {
		t.Fatalf("first OAuthLogin: %v", err)
	}
	if first.User.FirstName != "Ann" || first.User.LastName != "Chen" {
		t.Fatalf("unexpected provisioned name: %+v", first.User)
	}

	second, err := f.svc.OAuthLogin(context.Background(), OAuthInput{
		Email: "ext@acme.io", Provider: "google", TenantDomain: "acme.io",
	})
	if err != nil {
		t.Fatalf("second OAuthLogin: %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Fatal("second oauth login must reuse the provisioned user")
	}

	// The provisioned user has no usable local password.
	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "ext@acme.io", Password: "guess", TenantDomain: "acme.io",
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("password login for external user: expected ErrUnauthorized, got %v", err)
	}
}

// recordingCache captures session writes; failingCache errors on every call.
type recordingCache struct {
	entries map[string][]byte
	deletes []string
}

func (c *recordingCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = value
	return nil
}

func (c *recordingCache) Delete(ctx context.Context, key string) error {
	c.deletes = append(c.deletes, key)
	delete(c.entries, key)
	return nil
}

func (c *recordingCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := c.entries[key]
	return ok, nil
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("cache down")
}
func (failingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Delete(ctx context.Context, key string) error {
	return errors.New("cache down")
}
func (failingCache) Exists(ctx context.Context, key string) (bool, error) {
	return false, errors.New("cache down")
}

func TestSessionWriteThrough(t *testing.T) {
	cache := &recordingCache{}
	f := newServiceFixture(t, WithSessionGateway(NewSessionGateway(cache, time.Minute)))

	created := f.register(t, "kim@acme.io", "password-one", "acme.io")
	if _, ok := cache.entries["user_session:"+created.User.ID]; !ok {
		t.Fatalf("expected session cache entry, have %v", cache.entries)
	}

	if err := f.svc.Revoke(context.Background(), created.RefreshToken, ""); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if len(cache.deletes) != 1 || cache.deletes[0] != "user_session:"+created.User.ID {
		t.Fatalf("expected session invalidation, got %v", cache.deletes)
	}
}

func TestCacheFailureNeverFailsAuth(t *testing.T) {
	f := newServiceFixture(t, WithSessionGateway(NewSessionGateway(failingCache{}, time.Minute)))

	created := f.register(t, "kim@acme.io", "password-one", "acme.io")
	if _, err := f.svc.Login(context.Background(), LoginInput{
		Email: "kim@acme.io", Password: "password-one", TenantDomain: "acme.io",
	}); err != nil {
		t.Fatalf("login must survive a dead cache: %v", err)
	}
	if err := f.svc.Revoke(context.Background(), created.RefreshToken, ""); err != nil {
		t.Fatalf("revoke must survive a dead cache: %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newServiceFixture(t)

	cases := []RegisterInput{
		{Email: "", Password: "pw", TenantDomain: "acme.io"},
		{Email: "not-an-email", Password: "pw", TenantDomain: "acme.io"},
		{Email: "a@b.io", Password: "", TenantDomain: "acme.io"},
		{Email: "a@b.io", Password: "pw", TenantDomain: ""},
	}
	for _, in := range cases {
		if _, err := f.svc.Register(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("register %+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestRegisterAssignsDefaultRole(t *testing.T) {
	f := newServiceFixture(t)
	created := f.register(t, "kim@acme.io", "password-one", "acme.io")

	if len(created.User.Roles) != 1 || created.User.Roles[0] != RoleUser {
		t.Fatalf("expected default role %q, got %v", RoleUser, created.User.Roles)
	}
	if len(created.User.Permissions) != 1 || created.User.Permissions[0] != PermUsersRead {
		t.Fatalf("expected %q permission, got %v", PermUsersRead, created.User.Permissions)
	}
}
