package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authcore.dev/internal/auth"
	"authcore.dev/internal/ids"
)

// Tenants --------------------------------------------------------------

func (s *Store) CreateTenant(ctx context.Context, t *auth.Tenant) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into tenants (id, domain, name, is_active)
		values ($1, lower($2), $3, $4)
		returning created_at, updated_at
	`, t.ID, t.Domain, t.Name, t.IsActive)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *Store) FindTenantByDomain(ctx context.Context, domain string) (auth.Tenant, error) {
	return s.scanTenant(s.q.QueryRowContext(ctx, `
		select id, domain, name, is_active, created_at, updated_at
		from tenants
		where domain = lower($1)
	`, domain))
}

func (s *Store) FindTenantByID(ctx context.Context, id string) (auth.Tenant, error) {
	return s.scanTenant(s.q.QueryRowContext(ctx, `
		select id, domain, name, is_active, created_at, updated_at
		from tenants
		where id = $1
	`, id))
}

func (s *Store) scanTenant(row *sql.Row) (auth.Tenant, error) {
	var t auth.Tenant
	err := row.Scan(&t.ID, &t.Domain, &t.Name, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Tenant{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Tenant{}, err
	}
	return t, nil
}

// Users ----------------------------------------------------------------

const userColumns = `id, tenant_id, email, password_hash, first_name, last_name,
	is_active, email_confirmed, external_auth, reset_token, reset_token_expires_at,
	last_login_at, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into users (id, tenant_id, email, password_hash, first_name, last_name,
			is_active, email_confirmed, external_auth)
		values ($1, $2, lower($3), $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.IsActive, u.EmailConfirmed, u.ExternalAuth)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (auth.User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

// FindUserByEmail resolves across all tenants; two matches are treated the
// same as none, so the tenant-less login relaxation never picks a user
// arbitrarily.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+userColumns+` from users where email = lower($1) limit 2`, email)
	if err != nil {
		return auth.User{}, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return auth.User{}, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return auth.User{}, err
	}
	if len(users) != 1 {
		return auth.User{}, auth.ErrNotFound
	}
	return users[0], nil
}

func (s *Store) FindUserByEmailInTenant(ctx context.Context, email, tenantID string) (auth.User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = lower($1) and tenant_id = $2`,
		email, tenantID))
}

func (s *Store) FindUserByResetToken(ctx context.Context, token string) (auth.User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where reset_token = $1`, token))
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx,
		`update users set last_login_at = $2, updated_at = $2 where id = $1`,
		userID, at)
}

func (s *Store) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.execOne(ctx, `
		update users
		set reset_token = $2, reset_token_expires_at = $3, updated_at = now()
		where id = $1
	`, userID, token, expiresAt)
}

func (s *Store) ResetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return s.execOne(ctx, `
		update users
		set password_hash = $2, reset_token = null, reset_token_expires_at = null, updated_at = $3
		where id = $1
	`, userID, passwordHash, at)
}

func (s *Store) scanUser(row *sql.Row) (auth.User, error) {
	var (
		u           auth.User
		resetToken  sql.NullString
		resetExpiry sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsActive, &u.EmailConfirmed, &u.ExternalAuth, &resetToken, &resetExpiry,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	u.ResetToken = resetToken.String
	u.ResetExpiresAt = timePtr(resetExpiry)
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

func scanUserRows(rows *sql.Rows) (auth.User, error) {
	var (
		u           auth.User
		resetToken  sql.NullString
		resetExpiry sql.NullTime
		lastLogin   sql.NullTime
	)
	err := rows.Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsActive, &u.EmailConfirmed, &u.ExternalAuth, &resetToken, &resetExpiry,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return auth.User{}, err
	}
	u.ResetToken = resetToken.String
	u.ResetExpiresAt = timePtr(resetExpiry)
	u.LastLoginAt = timePtr(lastLogin)
	return u, nil
}

// Roles and permissions ------------------------------------------------

func (s *Store) FindRoleByName(ctx context.Context, name string) (auth.Role, error) {
	var r auth.Role
	err := s.q.QueryRowContext(ctx, `
		select id, name, description, created_at from roles where name = $1
	`, name).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	return r, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string, at time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, assigned_at)
		values ($1, $2, $3)
		on conflict do nothing
	`, userID, roleID, at)
	return mapPgError(err)
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.q.QueryContext(ctx, `
		select p.id, p.name, p.resource, p.action, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Refresh tokens -------------------------------------------------------

const refreshColumns = `id, user_id, token, expires_at, created_at, created_by_ip,
	is_revoked, revoked_at, revoked_by_ip`

func (s *Store) CreateRefreshToken(ctx context.Context, t *auth.RefreshToken) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	_, err := s.q.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token, expires_at, created_at, created_by_ip)
		values ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.UserID, t.Token, t.ExpiresAt, t.CreatedAt, nullString(t.CreatedByIP))
	return mapPgError(err)
}

func (s *Store) FindRefreshToken(ctx context.Context, token string) (auth.RefreshToken, error) {
	return s.scanRefreshToken(s.q.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where token = $1`, token))
}

// RevokeActiveRefreshToken performs the revoke and the active-state check in
// one statement, so two concurrent rotations of the same token serialize on
// the row lock and exactly one sees an affected row.
func (s *Store) RevokeActiveRefreshToken(ctx context.Context, token, ip string, now time.Time) (auth.RefreshToken, error) {
	return s.scanRefreshToken(s.q.QueryRowContext(ctx, `
		update refresh_tokens
		set is_revoked = true, revoked_at = $2, revoked_by_ip = $3
		where token = $1 and is_revoked = false and expires_at > $2
		returning `+refreshColumns,
		token, now, nullString(ip)))
}

func (s *Store) scanRefreshToken(row *sql.Row) (auth.RefreshToken, error) {
	var (
		t           auth.RefreshToken
		createdByIP sql.NullString
		revokedAt   sql.NullTime
		revokedByIP sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt, &createdByIP,
		&t.Revoked, &revokedAt, &revokedByIP)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RefreshToken{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RefreshToken{}, mapPgError(err)
	}
	t.CreatedByIP = createdByIP.String
	t.RevokedAt = timePtr(revokedAt)
	t.RevokedByIP = revokedByIP.String
	return t, nil
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
