package auth

import "context"

type claimsContextKey struct{}

// ContextWithClaims attaches validated access token claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts previously attached claims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// HasPermission reports whether the context claims carry the permission.
func HasPermission(ctx context.Context, perm string) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	for _, p := range claims.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
