package auth

import (
	"context"
	"sort"
)

// Aggregate flattens a user's role assignments into role names and the
// deduplicated union of permission names across those roles. A user with no
// roles yields two empty slices, not an error. Results are sorted so that
// issued claims are deterministic.
func Aggregate(ctx context.Context, store Store, userID string) (roles []string, permissions []string, err error) {
	assigned, err := store.RolesForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	roles = make([]string, 0, len(assigned))
	permSet := make(map[string]struct{})
	for _, role := range assigned {
		roles = append(roles, role.Name)
		perms, err := store.PermissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range perms {
			permSet[p.Name] = struct{}{}
		}
	}

	permissions = make([]string, 0, len(permSet))
	for name := range permSet {
		permissions = append(permissions, name)
	}
	sort.Strings(roles)
	sort.Strings(permissions)
	return roles, permissions, nil
}
