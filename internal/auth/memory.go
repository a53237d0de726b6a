package auth

import (
	"context"
	"sync"
	"time"

	"authcore.dev/internal/ids"
)

// MemoryStore is a Store backed by process memory, used by tests and by the
// API in storeless development mode. Tx takes a snapshot of the data set and
// restores it when fn fails, so partial writes never persist, mirroring the
// relational implementation.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	tenants   map[string]Tenant       // id -> tenant
	users     map[string]User         // id -> user
	roles     map[string]Role         // id -> role
	perms     map[string]Permission   // id -> permission
	userRoles []UserRole
	rolePerms []RolePermission
	refresh   map[string]RefreshToken // opaque token -> record
}

func newMemData() *memData {
	return &memData{
		tenants: make(map[string]Tenant),
		users:   make(map[string]User),
		roles:   make(map[string]Role),
		perms:   make(map[string]Permission),
		refresh: make(map[string]RefreshToken),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.tenants {
		c.tenants[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.perms {
		c.perms[k] = v
	}
	for k, v := range d.refresh {
		c.refresh[k] = v
	}
	c.userRoles = append(c.userRoles, d.userRoles...)
	c.rolePerms = append(c.rolePerms, d.rolePerms...)
	return c
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

// SeedRBAC installs the built-in roles and permission catalog: Admin holds
// every permission, User holds users.read.
func (s *MemoryStore) SeedRBAC(ctx context.Context) error {
	return s.Tx(ctx, func(tx Store) error {
		now := time.Now().UTC()
		admin := Role{ID: ids.New(), Name: RoleAdmin, Description: "Full administrative access", CreatedAt: now}
		user := Role{ID: ids.New(), Name: RoleUser, Description: "Standard user access", CreatedAt: now}
		t := tx.(*memTx)
		t.data.roles[admin.ID] = admin
		t.data.roles[user.ID] = user
		for _, p := range BuiltinPermissions {
			p.ID = ids.New()
			p.CreatedAt = now
			t.data.perms[p.ID] = p
			t.data.rolePerms = append(t.data.rolePerms, RolePermission{RoleID: admin.ID, PermissionID: p.ID, AssignedAt: now})
			if p.Name == PermUsersRead {
				t.data.rolePerms = append(t.data.rolePerms, RolePermission{RoleID: user.ID, PermissionID: p.ID, AssignedAt: now})
			}
		}
		return nil
	})
}

// Tx runs fn under the store lock with rollback-on-error semantics.
func (s *MemoryStore) Tx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.data.clone()
	if err := fn(&memTx{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// Store methods on MemoryStore delegate under the lock so direct calls from
// tests are safe too.

func (s *MemoryStore) CreateTenant(ctx context.Context, t *Tenant) error {
	return s.Tx(ctx, func(tx Store) error { return tx.CreateTenant(ctx, t) })
}

func (s *MemoryStore) FindTenantByDomain(ctx context.Context, domain string) (t Tenant, err error) {
	err = s.Tx(ctx, func(tx Store) error { t, err = tx.FindTenantByDomain(ctx, domain); return err })
	return t, err
}

func (s *MemoryStore) FindTenantByID(ctx context.Context, id string) (t Tenant, err error) {
	err = s.Tx(ctx, func(tx Store) error { t, err = tx.FindTenantByID(ctx, id); return err })
	return t, err
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	return s.Tx(ctx, func(tx Store) error { return tx.CreateUser(ctx, u) })
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (u User, err error) {
	err = s.Tx(ctx, func(tx Store) error { u, err = tx.FindUserByID(ctx, id); return err })
	return u, err
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (u User, err error) {
	err = s.Tx(ctx, func(tx Store) error { u, err = tx.FindUserByEmail(ctx, email); return err })
	return u, err
}

func (s *MemoryStore) FindUserByEmailInTenant(ctx context.Context, email, tenantID string) (u User, err error) {
	err = s.Tx(ctx, func(tx Store) error { u, err = tx.FindUserByEmailInTenant(ctx, email, tenantID); return err })
	return u, err
}

func (s *MemoryStore) FindUserByResetToken(ctx context.Context, token string) (u User, err error) {
	err = s.Tx(ctx, func(tx Store) error { u, err = tx.FindUserByResetToken(ctx, token); return err })
	return u, err
}

func (s *MemoryStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.Tx(ctx, func(tx Store) error { return tx.TouchLastLogin(ctx, userID, at) })
}

func (s *MemoryStore) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.Tx(ctx, func(tx Store) error { return tx.SetResetToken(ctx, userID, token, expiresAt) })
}

func (s *MemoryStore) ResetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return s.Tx(ctx, func(tx Store) error { return tx.ResetPassword(ctx, userID, passwordHash, at) })
}

func (s *MemoryStore) FindRoleByName(ctx context.Context, name string) (r Role, err error) {
	err = s.Tx(ctx, func(tx Store) error { r, err = tx.FindRoleByName(ctx, name); return err })
	return r, err
}

func (s *MemoryStore) AssignRole(ctx context.Context, userID, roleID string, at time.Time) error {
	return s.Tx(ctx, func(tx Store) error { return tx.AssignRole(ctx, userID, roleID, at) })
}

func (s *MemoryStore) RolesForUser(ctx context.Context, userID string) (roles []Role, err error) {
	err = s.Tx(ctx, func(tx Store) error { roles, err = tx.RolesForUser(ctx, userID); return err })
	return roles, err
}

func (s *MemoryStore) PermissionsForRole(ctx context.Context, roleID string) (perms []Permission, err error) {
	err = s.Tx(ctx, func(tx Store) error { perms, err = tx.PermissionsForRole(ctx, roleID); return err })
	return perms, err
}

func (s *MemoryStore) CreateRefreshToken(ctx context.Context, t *RefreshToken) error {
	return s.Tx(ctx, func(tx Store) error { return tx.CreateRefreshToken(ctx, t) })
}

func (s *MemoryStore) FindRefreshToken(ctx context.Context, token string) (t RefreshToken, err error) {
	err = s.Tx(ctx, func(tx Store) error { t, err = tx.FindRefreshToken(ctx, token); return err })
	return t, err
}

func (s *MemoryStore) RevokeActiveRefreshToken(ctx context.Context, token, ip string, now time.Time) (t RefreshToken, err error) {
	err = s.Tx(ctx, func(tx Store) error { t, err = tx.RevokeActiveRefreshToken(ctx, token, ip, now); return err })
	return t, err
}

// memTx is the unsynchronized view handed to Tx callbacks.
type memTx struct {
	data *memData
}

var _ Store = (*memTx)(nil)

func (t *memTx) Tx(ctx context.Context, fn func(Store) error) error {
	// Already inside the outer transaction.
	return fn(t)
}

func (t *memTx) CreateTenant(ctx context.Context, tn *Tenant) error {
	domain := NormalizeDomain(tn.Domain)
	for _, existing := range t.data.tenants {
		if existing.Domain == domain {
			return ErrConflict
		}
	}
	if tn.ID == "" {
		tn.ID = ids.New()
	}
	now := time.Now().UTC()
	tn.Domain = domain
	tn.CreatedAt = now
	tn.UpdatedAt = now
	t.data.tenants[tn.ID] = *tn
	return nil
}

func (t *memTx) FindTenantByDomain(ctx context.Context, domain string) (Tenant, error) {
	domain = NormalizeDomain(domain)
	for _, tn := range t.data.tenants {
		if tn.Domain == domain {
			return tn, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (t *memTx) FindTenantByID(ctx context.Context, id string) (Tenant, error) {
	tn, ok := t.data.tenants[id]
	if !ok {
		return Tenant{}, ErrNotFound
	}
	return tn, nil
}

func (t *memTx) CreateUser(ctx context.Context, u *User) error {
	email := NormalizeEmail(u.Email)
	for _, existing := range t.data.users {
		if existing.Email == email && existing.TenantID == u.TenantID {
			return ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	t.data.users[u.ID] = *u
	return nil
}

func (t *memTx) FindUserByID(ctx context.Context, id string) (User, error) {
	u, ok := t.data.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (t *memTx) FindUserByEmail(ctx context.Context, email string) (User, error) {
	email = NormalizeEmail(email)
	var found []User
	for _, u := range t.data.users {
		if u.Email == email {
			found = append(found, u)
		}
	}
	if len(found) != 1 {
		return User{}, ErrNotFound
	}
	return found[0], nil
}

func (t *memTx) FindUserByEmailInTenant(ctx context.Context, email, tenantID string) (User, error) {
	email = NormalizeEmail(email)
	for _, u := range t.data.users {
		if u.Email == email && u.TenantID == tenantID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (t *memTx) FindUserByResetToken(ctx context.Context, token string) (User, error) {
	for _, u := range t.data.users {
		if u.ResetToken != "" && u.ResetToken == token {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (t *memTx) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	u, ok := t.data.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	u.UpdatedAt = at
	t.data.users[userID] = u
	return nil
}

func (t *memTx) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	u, ok := t.data.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.ResetToken = token
	u.ResetExpiresAt = &expiresAt
	t.data.users[userID] = u
	return nil
}

func (t *memTx) ResetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	u, ok := t.data.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetExpiresAt = nil
	u.UpdatedAt = at
	t.data.users[userID] = u
	return nil
}

func (t *memTx) FindRoleByName(ctx context.Context, name string) (Role, error) {
	for _, r := range t.data.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (t *memTx) AssignRole(ctx context.Context, userID, roleID string, at time.Time) error {
	for _, ur := range t.data.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			return nil
		}
	}
	t.data.userRoles = append(t.data.userRoles, UserRole{UserID: userID, RoleID: roleID, AssignedAt: at})
	return nil
}

func (t *memTx) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	var roles []Role
	for _, ur := range t.data.userRoles {
		if ur.UserID != userID {
			continue
		}
		if r, ok := t.data.roles[ur.RoleID]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

func (t *memTx) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	var perms []Permission
	for _, rp := range t.data.rolePerms {
		if rp.RoleID != roleID {
			continue
		}
		if p, ok := t.data.perms[rp.PermissionID]; ok {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

func (t *memTx) CreateRefreshToken(ctx context.Context, rt *RefreshToken) error {
	if _, exists := t.data.refresh[rt.Token]; exists {
		return ErrConflict
	}
	if rt.ID == "" {
		rt.ID = ids.New()
	}
	if rt.CreatedAt.IsZero() {
		rt.CreatedAt = time.Now().UTC()
	}
	t.data.refresh[rt.Token] = *rt
	return nil
}

func (t *memTx) FindRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	rt, ok := t.data.refresh[token]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return rt, nil
}

func (t *memTx) RevokeActiveRefreshToken(ctx context.Context, token, ip string, now time.Time) (RefreshToken, error) {
	rt, ok := t.data.refresh[token]
	if !ok || !rt.ActiveAt(now) {
		return RefreshToken{}, ErrNotFound
	}
	rt.Revoked = true
	rt.RevokedAt = &now
	rt.RevokedByIP = ip
	t.data.refresh[token] = rt
	return rt, nil
}
