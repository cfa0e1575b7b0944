// Package exportimport serializes realm state to admin-API-compatible JSON
// representations and applies partial role imports with all-or-nothing or
// skip-on-conflict semantics.
package exportimport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ektropy/realm-authz/internal/cache"
	"github.com/ektropy/realm-authz/internal/constants"
	"github.com/ektropy/realm-authz/internal/directory"
	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/session"
	"github.com/ektropy/realm-authz/internal/utils"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Gateway struct {
	dir      *directory.Directory
	validate *validator.Validate
	cache    cache.Cache
	logger   *zap.Logger
}

// New builds a gateway. The cache may be nil when no cache backend is
// configured.
func New(dir *directory.Directory, representationCache cache.Cache, logger *zap.Logger) *Gateway {
	return &Gateway{
		dir:      dir,
		validate: validator.New(),
		cache:    representationCache,
		logger:   logger,
	}
}

// ExportRoles produces the realm's complete role set: realm roles plus
// client roles grouped by clientId. Output order is not significant but is
// kept sorted so repeated exports of unchanged state compare equal.
func (g *Gateway) ExportRoles(ctx context.Context, realmID string) (*models.RolesRepresentation, error) {
	if _, err := g.dir.GetRealm(realmID); err != nil {
		return nil, err
	}

	if g.cache != nil {
		if raw, err := g.cache.Get(ctx, realmID, constants.RoleExportCacheKey); err == nil {
			var rep models.RolesRepresentation
			if err := json.Unmarshal([]byte(raw), &rep); err == nil {
				return &rep, nil
			}
		}
	}

	rep := &models.RolesRepresentation{
		Client: make(map[string][]models.RoleRepresentation),
	}
	for _, role := range g.dir.ListRealmRoles(realmID) {
		rep.Realm = append(rep.Realm, g.roleToRepresentation(role))
	}
	sortRoles(rep.Realm)

	for _, client := range g.dir.Store().ClientsByRealm(realmID) {
		roles := g.dir.ListClientRoles(client.ID)
		if len(roles) == 0 {
			continue
		}
		reps := make([]models.RoleRepresentation, 0, len(roles))
		for _, role := range roles {
			reps = append(reps, g.roleToRepresentation(role))
		}
		sortRoles(reps)
		rep.Client[client.ClientID] = reps
	}

	if g.cache != nil {
		if raw, err := json.Marshal(rep); err == nil {
			if err := g.cache.Set(ctx, realmID, constants.RoleExportCacheKey, string(raw), constants.DefaultCacheTTL); err != nil {
				g.logger.Warn("Failed to cache role export",
					zap.String("realm_id", realmID),
					zap.Error(err))
			}
		}
	}

	return rep, nil
}

// roleToRepresentation fills in composite member names, realm roles directly
// and client roles grouped by owner clientId.
func (g *Gateway) roleToRepresentation(role *models.Role) models.RoleRepresentation {
	rep := role.ToRepresentation()
	if !role.IsComposite() {
		return rep
	}

	composites := &models.RoleComposites{Client: make(map[string][]string)}
	for _, member := range g.dir.Graph().RealmComposites(role) {
		composites.Realm = append(composites.Realm, member.Name)
	}
	for _, owner := range g.dir.Store().ClientsByRealm(role.RealmID) {
		for _, member := range g.dir.Graph().ClientComposites(owner, role) {
			composites.Client[owner.ClientID] = append(composites.Client[owner.ClientID], member.Name)
		}
	}
	sort.Strings(composites.Realm)
	for _, names := range composites.Client {
		sort.Strings(names)
	}
	if len(composites.Client) == 0 {
		composites.Client = nil
	}
	rep.Composites = composites
	return rep
}

// ImportRoles applies a partial role import. With skip=false any conflict
// (existing realm role name, missing client, existing client role) aborts
// before a single mutation; with skip=true conflicting items are dropped and
// the remainder imports. Composite links are resolved in a second phase once
// every imported role exists.
func (g *Gateway) ImportRoles(ctx context.Context, s *session.Session, realmID string, rep *models.RolesRepresentation, skip bool) error {
	realm, err := g.dir.GetRealm(realmID)
	if err != nil {
		return err
	}
	if rep == nil || rep.IsEmpty() {
		return &models.ConflictError{Reason: "no roles to import"}
	}
	if err := g.validate.Struct(rep); err != nil {
		return fmt.Errorf("invalid roles representation: %s",
			strings.Join(utils.FormatValidationErrors(err), "; "))
	}

	plan, err := g.planImport(realm.ID, rep, skip)
	if err != nil {
		return err
	}

	for _, roleRep := range plan.realmRoles {
		role, err := g.dir.AddRealmRole(s, realm.ID, roleRep.Name)
		if err != nil {
			return err
		}
		if err := g.dir.SetRoleDescription(s, role.ID, roleRep.Description, roleRep.ScopeParamRequired); err != nil {
			return err
		}
	}
	for clientID, roleReps := range plan.clientRoles {
		client, err := g.dir.GetClientByClientID(realm.ID, clientID)
		if err != nil {
			return err
		}
		for _, roleRep := range roleReps {
			role, err := g.dir.AddClientRole(s, client.ID, roleRep.Name)
			if err != nil {
				return err
			}
			if err := g.dir.SetRoleDescription(s, role.ID, roleRep.Description, roleRep.ScopeParamRequired); err != nil {
				return err
			}
		}
	}

	if err := g.linkComposites(s, realm.ID, plan); err != nil {
		return err
	}

	if g.cache != nil {
		if err := g.cache.Delete(ctx, realmID, constants.RoleExportCacheKey); err != nil {
			g.logger.Warn("Failed to invalidate role export cache",
				zap.String("realm_id", realmID),
				zap.Error(err))
		}
	}

	g.logger.Info("Roles imported",
		zap.String("realm_id", realmID),
		zap.Int("realm_roles", len(plan.realmRoles)),
		zap.Int("client_containers", len(plan.clientRoles)),
		zap.Bool("skip_on_conflict", skip))
	return nil
}

type importPlan struct {
	realmRoles  []models.RoleRepresentation
	clientRoles map[string][]models.RoleRepresentation
}

// planImport runs every conflict check up front so a rejected import leaves
// no partial state behind.
func (g *Gateway) planImport(realmID string, rep *models.RolesRepresentation, skip bool) (*importPlan, error) {
	plan := &importPlan{clientRoles: make(map[string][]models.RoleRepresentation)}

	existing := make(map[string]struct{})
	for _, role := range g.dir.ListRealmRoles(realmID) {
		existing[role.Name] = struct{}{}
	}
	for _, roleRep := range rep.Realm {
		if _, conflict := existing[roleRep.Name]; conflict {
			if skip {
				g.logger.Debug("Skipping existing realm role", zap.String("role_name", roleRep.Name))
				continue
			}
			return nil, &models.ConflictError{
				Reason: fmt.Sprintf("realm role %q already exists", roleRep.Name),
			}
		}
		plan.realmRoles = append(plan.realmRoles, roleRep)
	}

	for clientID, roleReps := range rep.Client {
		client, err := g.dir.GetClientByClientID(realmID, clientID)
		if err != nil {
			if skip {
				g.logger.Debug("Skipping roles of unknown client", zap.String("client_id", clientID))
				continue
			}
			return nil, &models.ConflictError{
				Reason: fmt.Sprintf("client %q not found", clientID),
			}
		}

		names := make(map[string]struct{})
		for _, role := range g.dir.ListClientRoles(client.ID) {
			names[role.Name] = struct{}{}
		}
		for _, roleRep := range roleReps {
			if _, conflict := names[roleRep.Name]; conflict {
				if skip {
					g.logger.Debug("Skipping existing client role",
						zap.String("client_id", clientID),
						zap.String("role_name", roleRep.Name))
					continue
				}
				return nil, &models.ConflictError{
					Reason: fmt.Sprintf("client role %q for client %q already exists", roleRep.Name, clientID),
				}
			}
			plan.clientRoles[clientID] = append(plan.clientRoles[clientID], roleRep)
		}
	}

	return plan, nil
}

// linkComposites wires composite membership after all roles exist. Members
// missing from the model are ignored, matching the tolerance of the origin
// importer.
func (g *Gateway) linkComposites(s *session.Session, realmID string, plan *importPlan) error {
	link := func(roleID string, composites *models.RoleComposites) error {
		for _, name := range composites.Realm {
			member, err := g.dir.GetRealmRole(realmID, name)
			if err != nil {
				continue
			}
			if err := g.dir.AddComposite(s, roleID, member.ID); err != nil {
				return err
			}
		}
		for clientID, names := range composites.Client {
			client, err := g.dir.GetClientByClientID(realmID, clientID)
			if err != nil {
				continue
			}
			for _, name := range names {
				member, err := g.dir.GetClientRole(client.ID, name)
				if err != nil {
					continue
				}
				if err := g.dir.AddComposite(s, roleID, member.ID); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, roleRep := range plan.realmRoles {
		if roleRep.Composites == nil {
			continue
		}
		role, err := g.dir.GetRealmRole(realmID, roleRep.Name)
		if err != nil {
			return err
		}
		if err := link(role.ID, roleRep.Composites); err != nil {
			return err
		}
	}
	for clientID, roleReps := range plan.clientRoles {
		client, err := g.dir.GetClientByClientID(realmID, clientID)
		if err != nil {
			return err
		}
		for _, roleRep := range roleReps {
			if roleRep.Composites == nil {
				continue
			}
			role, err := g.dir.GetClientRole(client.ID, roleRep.Name)
			if err != nil {
				return err
			}
			if err := link(role.ID, roleRep.Composites); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportRealm produces the full realm representation: attributes, clients
// with their mappers, secrets, nodes and scope state, users with their grant
// sets, and the complete role set. It must carry everything a mutation can
// dirty a session for, so a snapshot restore loses nothing.
func (g *Gateway) ExportRealm(ctx context.Context, realmID string) (*models.RealmRepresentation, error) {
	realm, err := g.dir.GetRealm(realmID)
	if err != nil {
		return nil, err
	}

	roles, err := g.ExportRoles(ctx, realmID)
	if err != nil {
		return nil, err
	}

	rep := &models.RealmRepresentation{
		ID:           realm.ID,
		Realm:        realm.Name,
		Enabled:      realm.Enabled,
		NotBefore:    realm.NotBefore,
		DefaultRoles: append([]string(nil), realm.DefaultRoles...),
		Attributes:   realm.Attributes,
		Roles:        roles,
	}

	clients := g.dir.Store().ClientsByRealm(realmID)
	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	for _, client := range clients {
		rep.Clients = append(rep.Clients, g.clientToRepresentation(client))
	}

	users := g.dir.Store().UsersByRealm(realmID)
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	for _, user := range users {
		rep.Users = append(rep.Users, g.userToRepresentation(user))
	}
	return rep, nil
}

func (g *Gateway) clientToRepresentation(c *models.Client) models.ClientRepresentation {
	rep := models.ClientRepresentation{
		ID:                    c.ID,
		ClientID:              c.ClientID,
		Secret:                c.Secret,
		Protocol:              c.Protocol,
		Enabled:               c.Enabled,
		PublicClient:          c.PublicClient,
		BearerOnly:            c.BearerOnly,
		ConsentRequired:       c.ConsentRequired,
		FullScopeAllowed:      c.FullScopeAllowed,
		FrontchannelLogout:    c.FrontchannelLogout,
		SurrogateAuthRequired: c.SurrogateAuthRequired,
		DirectGrantsOnly:      c.DirectGrantsOnly,
		NotBefore:             c.NotBefore,
		WebOrigins:            append([]string(nil), c.WebOrigins...),
		RedirectURIs:          append([]string(nil), c.RedirectURIs...),
		Attributes:            c.Attributes,
		DefaultRoles:          append([]string(nil), c.DefaultRoles...),
		ScopeMappings:         g.scopeMappingsToRepresentation(c),

		NodeReRegistrationTimeout: c.NodeReRegistrationTimeout,
	}
	if len(c.RegisteredNodes) > 0 {
		rep.RegisteredNodes = make(map[string]int, len(c.RegisteredNodes))
		for host, registered := range c.RegisteredNodes {
			rep.RegisteredNodes[host] = registered
		}
	}
	for _, mapper := range c.ProtocolMappers {
		rep.ProtocolMappers = append(rep.ProtocolMappers, mapper.ToRepresentation())
	}
	return rep
}

// scopeMappingsToRepresentation resolves the client's scope mappings to role
// names grouped by owning container.
func (g *Gateway) scopeMappingsToRepresentation(c *models.Client) *models.ScopeMappingsRepresentation {
	if len(c.ScopeMappings) == 0 {
		return nil
	}

	rep := &models.ScopeMappingsRepresentation{Client: make(map[string][]string)}
	for _, role := range g.dir.Graph().RealmScopeMappings(c) {
		rep.Realm = append(rep.Realm, role.Name)
	}
	for _, owner := range g.dir.Store().ClientsByRealm(c.RealmID) {
		for _, role := range g.dir.Graph().ClientScopeMappings(owner, c) {
			rep.Client[owner.ClientID] = append(rep.Client[owner.ClientID], role.Name)
		}
	}
	sort.Strings(rep.Realm)
	for _, names := range rep.Client {
		sort.Strings(names)
	}
	if len(rep.Client) == 0 {
		rep.Client = nil
	}
	return rep
}

// userToRepresentation resolves the user's grants to role names. Dangling
// grant ids are skipped, same as the scope-mapping reads.
func (g *Gateway) userToRepresentation(u *models.User) models.UserRepresentation {
	rep := models.UserRepresentation{
		ID:       u.ID,
		Username: u.Username,
		Enabled:  u.Enabled,
	}
	clientRoles := make(map[string][]string)
	for id := range u.RoleGrants {
		role, ok := g.dir.Store().GetRole(id)
		if !ok {
			continue
		}
		if role.IsRealmRole() {
			rep.RealmRoles = append(rep.RealmRoles, role.Name)
			continue
		}
		if owner, ok := g.dir.Store().GetClient(role.ClientID); ok {
			clientRoles[owner.ClientID] = append(clientRoles[owner.ClientID], role.Name)
		}
	}
	sort.Strings(rep.RealmRoles)
	for _, names := range clientRoles {
		sort.Strings(names)
	}
	if len(clientRoles) > 0 {
		rep.ClientRoles = clientRoles
	}
	return rep
}

// InvalidateRealm drops the realm's cached representations after a commit.
func (g *Gateway) InvalidateRealm(ctx context.Context, realmID string) error {
	if g.cache == nil {
		return nil
	}
	return g.cache.FlushRealm(ctx, realmID)
}

func sortRoles(roles []models.RoleRepresentation) {
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
}
