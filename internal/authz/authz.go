package authz

import (
	"fmt"
	"sort"

	"steeple/internal/domain"
)

// Engine evaluates (actor, required permission) against role grants.
// Default deny: a permission nobody granted is a denial, not an error.
// Phase-1 grants are role-scoped; resourceRefs are accepted for future
// resource-scoped grants but not consulted yet.
type Engine struct {
	// Grants maps role code -> permission codes.
	Grants map[string][]string
}

func New(grants map[string][]string) Engine {
	return Engine{Grants: grants}
}

// Authorize returns nil when some role of the actor grants the permission,
// or an AuthzDeniedError naming the reason. An empty permission marks a
// public verb and always passes.
func (e Engine) Authorize(actor domain.Actor, verb, permission string, resourceRefs ...string) error {
	if permission == "" {
		return nil
	}
	for _, role := range actor.Roles {
		for _, granted := range e.Grants[role] {
			if granted == permission {
				return nil
			}
		}
	}
	roles := e.rolesGranting(permission)
	if len(roles) == 0 {
		return domain.AuthzDeniedError{Verb: verb, Reason: fmt.Sprintf("permission %s granted to no role", permission)}
	}
	return domain.AuthzDeniedError{Verb: verb, Reason: fmt.Sprintf("need one of roles %v", roles)}
}

// Permissions returns the union of permissions across the actor's roles.
func (e Engine) Permissions(actor domain.Actor) []string {
	set := map[string]bool{}
	for _, role := range actor.Roles {
		for _, p := range e.Grants[role] {
			set[p] = true
		}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

func (e Engine) rolesGranting(permission string) []string {
	var roles []string
	for role, perms := range e.Grants {
		for _, p := range perms {
			if p == permission {
				roles = append(roles, role)
				break
			}
		}
	}
	sort.Strings(roles)
	return roles
}
