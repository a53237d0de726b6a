package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TenantResolver maps a domain string to a tenant record.
type TenantResolver struct {
	store Store
}

// NewTenantResolver constructs a resolver over store.
func NewTenantResolver(store Store) *TenantResolver {
	return &TenantResolver{store: store}
}

// Resolve returns the tenant for domain, or ErrNotFound.
func (r *TenantResolver) Resolve(ctx context.Context, domain string) (Tenant, error) {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return Tenant{}, fmt.Errorf("%w: tenant domain is required", ErrInvalidInput)
	}
	return r.store.FindTenantByDomain(ctx, domain)
}

// ResolveOrCreate returns the tenant for domain, creating an active one when
// absent. The domain unique constraint is the arbiter under concurrent first
// registrations: the create loser re-resolves and proceeds with the winner's
// row.
func (r *TenantResolver) ResolveOrCreate(ctx context.Context, domain, displayName string) (Tenant, error) {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return Tenant{}, fmt.Errorf("%w: tenant domain is required", ErrInvalidInput)
	}
	tenant, err := r.store.FindTenantByDomain(ctx, domain)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Tenant{}, err
	}

	if strings.TrimSpace(displayName) == "" {
		displayName = domain
	}
	created := Tenant{Domain: domain, Name: displayName, IsActive: true}
	if err := r.store.CreateTenant(ctx, &created); err != nil {
		if errors.Is(err, ErrConflict) {
			return r.store.FindTenantByDomain(ctx, domain)
		}
		return Tenant{}, err
	}
	return created, nil
}

// NormalizeDomain lower-cases and trims a tenant domain so lookups are
// case-insensitive.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
