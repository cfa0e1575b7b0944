// Package graph answers role membership, composite and scope-mapping queries
// over the entity store. All queries are read-only and total: empty relations
// yield empty results, never errors.
package graph

import (
	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/store"
)

type Graph struct {
	store *store.EntityStore
}

func New(entityStore *store.EntityStore) *Graph {
	return &Graph{store: entityStore}
}

// HasRole reports whether role grants target, expanding composites one level
// deep. The origin system never walked the full transitive closure here and
// callers depend on that; see DESIGN.md before changing the depth.
func (g *Graph) HasRole(role, target *models.Role) bool {
	if role == nil || target == nil {
		return false
	}
	if role.ID == target.ID {
		return true
	}
	_, ok := role.Composites[target.ID]
	return ok
}

// ScopeMappings resolves a client's direct scope mappings to role entities.
// Dangling ids (roles removed out from under the mapping) are skipped.
func (g *Graph) ScopeMappings(client *models.Client) []*models.Role {
	var out []*models.Role
	for id := range client.ScopeMappings {
		if role, ok := g.store.GetRole(id); ok {
			out = append(out, role)
		}
	}
	return out
}

// RealmScopeMappings filters the client's scope mappings to realm-owned
// roles.
func (g *Graph) RealmScopeMappings(client *models.Client) []*models.Role {
	var out []*models.Role
	for _, role := range g.ScopeMappings(client) {
		if role.IsRealmRole() {
			out = append(out, role)
		}
	}
	return out
}

// ClientScopeMappings returns the roles in holder's scope mappings that are
// owned by owner: "what roles of mine does this other client hold."
func (g *Graph) ClientScopeMappings(owner, holder *models.Client) []*models.Role {
	var out []*models.Role
	for _, role := range g.ScopeMappings(holder) {
		if role.ClientID == owner.ID {
			out = append(out, role)
		}
	}
	return out
}

// HasScope reports whether the client may request the role: the full-scope
// flag short-circuits everything, then direct scope mappings and their
// one-level composite expansion, then the client's own roles likewise.
func (g *Graph) HasScope(client *models.Client, role *models.Role) bool {
	if client.FullScopeAllowed {
		return true
	}
	if client.HasScopeMapping(role.ID) {
		return true
	}

	for _, mapping := range g.ScopeMappings(client) {
		if g.HasRole(mapping, role) {
			return true
		}
	}

	for _, owned := range g.store.ClientRoles(client.ID) {
		if g.HasRole(owned, role) {
			return true
		}
	}

	return false
}

// Composites resolves a role's direct composite members.
func (g *Graph) Composites(role *models.Role) []*models.Role {
	var out []*models.Role
	for id := range role.Composites {
		if member, ok := g.store.GetRole(id); ok {
			out = append(out, member)
		}
	}
	return out
}

// RealmComposites filters a role's composite members to realm roles.
func (g *Graph) RealmComposites(role *models.Role) []*models.Role {
	var out []*models.Role
	for _, member := range g.Composites(role) {
		if member.IsRealmRole() {
			out = append(out, member)
		}
	}
	return out
}

// ClientComposites filters a role's composite members to roles owned by the
// given client.
func (g *Graph) ClientComposites(client *models.Client, role *models.Role) []*models.Role {
	var out []*models.Role
	for _, member := range g.Composites(role) {
		if member.ClientID == client.ID {
			out = append(out, member)
		}
	}
	return out
}

// UserHasRole reports whether the user holds the role directly or through
// one level of composite expansion of a granted role.
func (g *Graph) UserHasRole(user *models.User, role *models.Role) bool {
	if user.HasGrant(role.ID) {
		return true
	}
	for id := range user.RoleGrants {
		granted, ok := g.store.GetRole(id)
		if !ok {
			continue
		}
		if g.HasRole(granted, role) {
			return true
		}
	}
	return false
}
