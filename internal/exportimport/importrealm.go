package exportimport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/session"
	"github.com/ektropy/realm-authz/internal/utils"
	"go.uber.org/zap"
)

// ImportRealm restores a full realm representation into the model: the realm
// itself, its clients with flags and mappers, then the role set through the
// regular partial-import path. Ids are regenerated; names bind everything
// together, matching role round-trip semantics.
func (g *Gateway) ImportRealm(ctx context.Context, s *session.Session, rep *models.RealmRepresentation) (*models.Realm, error) {
	if rep == nil {
		return nil, fmt.Errorf("no realm representation to import")
	}
	if err := g.validate.Struct(rep); err != nil {
		return nil, fmt.Errorf("invalid realm representation: %s",
			strings.Join(utils.FormatValidationErrors(err), "; "))
	}

	realm, err := g.dir.CreateRealm(s, rep.Realm)
	if err != nil {
		return nil, err
	}

	for _, clientRep := range rep.Clients {
		client, err := g.dir.CreateClient(s, realm.ID, clientRep.ClientID)
		if err != nil {
			return nil, err
		}
		if err := g.dir.SetClientFlags(s, client.ID, models.ClientFlags{
			PublicClient:          clientRep.PublicClient,
			BearerOnly:            clientRep.BearerOnly,
			ConsentRequired:       clientRep.ConsentRequired,
			FullScopeAllowed:      clientRep.FullScopeAllowed,
			FrontchannelLogout:    clientRep.FrontchannelLogout,
			SurrogateAuthRequired: clientRep.SurrogateAuthRequired,
			DirectGrantsOnly:      clientRep.DirectGrantsOnly,
		}); err != nil {
			return nil, err
		}
		if err := g.dir.SetClientEnabled(s, client.ID, clientRep.Enabled); err != nil {
			return nil, err
		}
		if clientRep.Secret != "" {
			if err := g.dir.SetClientSecret(s, client.ID, clientRep.Secret); err != nil {
				return nil, err
			}
		}
		if clientRep.NotBefore != 0 {
			if err := g.dir.SetNotBefore(s, client.ID, clientRep.NotBefore); err != nil {
				return nil, err
			}
		}
		if len(clientRep.WebOrigins) > 0 {
			if err := g.dir.SetWebOrigins(s, client.ID, clientRep.WebOrigins); err != nil {
				return nil, err
			}
		}
		if len(clientRep.RedirectURIs) > 0 {
			if err := g.dir.SetRedirectURIs(s, client.ID, clientRep.RedirectURIs); err != nil {
				return nil, err
			}
		}
		for name, value := range clientRep.Attributes {
			if err := g.dir.SetClientAttribute(s, client.ID, name, value); err != nil {
				return nil, err
			}
		}
		for _, mapperRep := range clientRep.ProtocolMappers {
			if _, err := g.dir.AddProtocolMapper(s, client.ID, mapperRep); err != nil {
				return nil, err
			}
		}
		for host, registered := range clientRep.RegisteredNodes {
			if err := g.dir.RegisterNode(s, client.ID, host, registered); err != nil {
				return nil, err
			}
		}
		if clientRep.NodeReRegistrationTimeout != 0 {
			if err := g.dir.SetNodeReRegistrationTimeout(s, client.ID, clientRep.NodeReRegistrationTimeout); err != nil {
				return nil, err
			}
		}
	}

	if rep.Roles != nil && !rep.Roles.IsEmpty() {
		if err := g.ImportRoles(ctx, s, realm.ID, rep.Roles, false); err != nil {
			return nil, err
		}
	}

	for _, clientRep := range rep.Clients {
		if len(clientRep.DefaultRoles) == 0 {
			continue
		}
		client, err := g.dir.GetClientByClientID(realm.ID, clientRep.ClientID)
		if err != nil {
			return nil, err
		}
		for _, name := range clientRep.DefaultRoles {
			if err := g.dir.AddDefaultRole(s, client.ID, name); err != nil {
				return nil, err
			}
		}
	}

	// scope mappings and user grants resolve by role name, so they apply
	// after every role exists; missing names are skipped like composite
	// members are
	for _, clientRep := range rep.Clients {
		if clientRep.ScopeMappings == nil {
			continue
		}
		client, err := g.dir.GetClientByClientID(realm.ID, clientRep.ClientID)
		if err != nil {
			return nil, err
		}
		if err := g.applyScopeMappings(s, realm.ID, client.ID, clientRep.ScopeMappings); err != nil {
			return nil, err
		}
	}

	for _, userRep := range rep.Users {
		if err := g.importUser(s, realm.ID, userRep); err != nil {
			return nil, err
		}
	}

	g.logger.Info("Realm imported",
		zap.String("realm_id", realm.ID),
		zap.String("realm_name", realm.Name),
		zap.Int("clients", len(rep.Clients)),
		zap.Int("users", len(rep.Users)))
	return realm, nil
}

func (g *Gateway) applyScopeMappings(s *session.Session, realmID, clientID string, mappings *models.ScopeMappingsRepresentation) error {
	for _, name := range mappings.Realm {
		role, err := g.dir.GetRealmRole(realmID, name)
		if err != nil {
			continue
		}
		if err := g.dir.AddScopeMapping(s, clientID, role.ID); err != nil {
			return err
		}
	}
	for ownerClientID, names := range mappings.Client {
		owner, err := g.dir.GetClientByClientID(realmID, ownerClientID)
		if err != nil {
			continue
		}
		for _, name := range names {
			role, err := g.dir.GetClientRole(owner.ID, name)
			if err != nil {
				continue
			}
			if err := g.dir.AddScopeMapping(s, clientID, role.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Gateway) importUser(s *session.Session, realmID string, rep models.UserRepresentation) error {
	user, err := g.dir.CreateUser(s, realmID, rep.Username)
	if err != nil {
		return err
	}
	if !rep.Enabled {
		if err := g.dir.SetUserEnabled(s, user.ID, false); err != nil {
			return err
		}
	}
	for _, name := range rep.RealmRoles {
		role, err := g.dir.GetRealmRole(realmID, name)
		if err != nil {
			continue
		}
		if err := g.dir.GrantRole(s, user.ID, role.ID); err != nil {
			return err
		}
	}
	for ownerClientID, names := range rep.ClientRoles {
		owner, err := g.dir.GetClientByClientID(realmID, ownerClientID)
		if err != nil {
			continue
		}
		for _, name := range names {
			role, err := g.dir.GetClientRole(owner.ID, name)
			if err != nil {
				continue
			}
			if err := g.dir.GrantRole(s, user.ID, role.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
