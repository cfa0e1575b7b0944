package directory

import (
	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateClient registers a client in the realm. The public clientId must be
// unique within the realm.
func (d *Directory) CreateClient(s *session.Session, realmID, clientID string) (*models.Client, error) {
	lock := d.realmLock(realmID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := d.store.GetRealm(realmID); !ok {
		return nil, &models.NotFoundError{Resource: "realm", Ref: realmID}
	}
	if _, exists := d.store.ClientByClientID(realmID, clientID); exists {
		return nil, &models.DuplicateError{Resource: "client", Name: clientID}
	}

	client := &models.Client{
		ID:              uuid.NewString(),
		RealmID:         realmID,
		ClientID:        clientID,
		Enabled:         true,
		Attributes:      make(map[string]string),
		ScopeMappings:   make(map[string]struct{}),
		RegisteredNodes: make(map[string]int),
	}
	d.store.PutClient(client)

	if err := d.requestWrite(s, realmID); err != nil {
		return nil, err
	}

	d.logger.Info("Client created",
		zap.String("id", client.ID),
		zap.String("client_id", clientID),
		zap.String("realm_id", realmID))
	return client, nil
}

// GetClient looks a client up by internal id.
func (d *Directory) GetClient(clientID string) (*models.Client, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	return client, nil
}

// GetClientByClientID looks a client up by its public clientId within a
// realm.
func (d *Directory) GetClientByClientID(realmID, clientID string) (*models.Client, error) {
	lock := d.realmLock(realmID)
	lock.RLock()
	defer lock.RUnlock()

	client, ok := d.store.ClientByClientID(realmID, clientID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	return client, nil
}

// SetClientID renames the client's public id. The uniqueness scan excludes
// the client itself by identity, so re-setting the current value is allowed.
func (d *Directory) SetClientID(s *session.Session, clientID, newClientID string) error {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return &models.NotFoundError{Resource: "client", Ref: clientID}
	}

	lock := d.realmLock(client.RealmID)
	lock.Lock()
	defer lock.Unlock()

	// re-read under the lock: the client may have been removed while we
	// waited
	if client, ok = d.store.GetClient(clientID); !ok {
		return &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	for _, other := range d.store.ClientsByRealm(client.RealmID) {
		if other == client {
			continue
		}
		if other.ClientID == newClientID {
			return &models.DuplicateError{Resource: "client", Name: newClientID}
		}
	}

	client.ClientID = newClientID
	return d.requestWrite(s, client.RealmID)
}

// mutateClient runs fn on the client under the realm's write lock and marks
// the session dirty once. fn must not fail after mutating.
func (d *Directory) mutateClient(s *session.Session, clientID string, fn func(c *models.Client) error) error {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return &models.NotFoundError{Resource: "client", Ref: clientID}
	}

	lock := d.realmLock(client.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if client, ok = d.store.GetClient(clientID); !ok {
		return &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	if err := fn(client); err != nil {
		return err
	}
	return d.requestWrite(s, client.RealmID)
}

func (d *Directory) SetClientSecret(s *session.Session, clientID, secret string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.Secret = secret
		return nil
	})
}

// ValidateClientSecret compares by exact value.
func (d *Directory) ValidateClientSecret(clientID, secret string) (bool, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return false, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	return client.Secret == secret, nil
}

func (d *Directory) SetClientEnabled(s *session.Session, clientID string, enabled bool) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.Enabled = enabled
		return nil
	})
}

// SetClientFlags replaces the client's protocol flags in one marked
// mutation.
func (d *Directory) SetClientFlags(s *session.Session, clientID string, flags models.ClientFlags) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.PublicClient = flags.PublicClient
		c.BearerOnly = flags.BearerOnly
		c.ConsentRequired = flags.ConsentRequired
		c.FullScopeAllowed = flags.FullScopeAllowed
		c.FrontchannelLogout = flags.FrontchannelLogout
		c.SurrogateAuthRequired = flags.SurrogateAuthRequired
		c.DirectGrantsOnly = flags.DirectGrantsOnly
		return nil
	})
}

func (d *Directory) SetFullScopeAllowed(s *session.Session, clientID string, allowed bool) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.FullScopeAllowed = allowed
		return nil
	})
}

// SetNotBefore moves the client's token-invalidation watermark.
func (d *Directory) SetNotBefore(s *session.Session, clientID string, notBefore int) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.NotBefore = notBefore
		return nil
	})
}

// SetWebOrigins replaces the allowed web origins.
func (d *Directory) SetWebOrigins(s *session.Session, clientID string, origins []string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.WebOrigins = append([]string(nil), origins...)
		return nil
	})
}

// AddWebOrigin is read-modify-write over SetWebOrigins; duplicate origins
// are dropped.
func (d *Directory) AddWebOrigin(s *session.Session, clientID, origin string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		for _, existing := range c.WebOrigins {
			if existing == origin {
				return nil
			}
		}
		c.WebOrigins = append(c.WebOrigins, origin)
		return nil
	})
}

func (d *Directory) RemoveWebOrigin(s *session.Session, clientID, origin string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		out := c.WebOrigins[:0]
		for _, existing := range c.WebOrigins {
			if existing != origin {
				out = append(out, existing)
			}
		}
		c.WebOrigins = out
		return nil
	})
}

func (d *Directory) SetRedirectURIs(s *session.Session, clientID string, uris []string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.RedirectURIs = append([]string(nil), uris...)
		return nil
	})
}

func (d *Directory) AddRedirectURI(s *session.Session, clientID, uri string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		for _, existing := range c.RedirectURIs {
			if existing == uri {
				return nil
			}
		}
		c.RedirectURIs = append(c.RedirectURIs, uri)
		return nil
	})
}

func (d *Directory) RemoveRedirectURI(s *session.Session, clientID, uri string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		out := c.RedirectURIs[:0]
		for _, existing := range c.RedirectURIs {
			if existing != uri {
				out = append(out, existing)
			}
		}
		c.RedirectURIs = out
		return nil
	})
}

func (d *Directory) SetClientAttribute(s *session.Session, clientID, name, value string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.Attributes[name] = value
		return nil
	})
}

func (d *Directory) RemoveClientAttribute(s *session.Session, clientID, name string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		delete(c.Attributes, name)
		return nil
	})
}

// AddProtocolMapper registers a mapper, unique per (protocol, name) on the
// client.
func (d *Directory) AddProtocolMapper(s *session.Session, clientID string, rep models.ProtocolMapperRepresentation) (*models.ProtocolMapper, error) {
	var mapper *models.ProtocolMapper
	err := d.mutateClient(s, clientID, func(c *models.Client) error {
		for _, existing := range c.ProtocolMappers {
			if existing.Protocol == rep.Protocol && existing.Name == rep.Name {
				return &models.DuplicateError{Resource: "protocol mapper", Name: rep.Name}
			}
		}
		config := make(map[string]string, len(rep.Config))
		for k, v := range rep.Config {
			config[k] = v
		}
		mapper = &models.ProtocolMapper{
			ID:              uuid.NewString(),
			Protocol:        rep.Protocol,
			Name:            rep.Name,
			ProtocolMapper:  rep.ProtocolMapper,
			Config:          config,
			ConsentRequired: rep.ConsentRequired,
			ConsentText:     rep.ConsentText,
		}
		c.ProtocolMappers = append(c.ProtocolMappers, mapper)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mapper, nil
}

func (d *Directory) RemoveProtocolMapper(s *session.Session, clientID, mapperID string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		out := c.ProtocolMappers[:0]
		for _, existing := range c.ProtocolMappers {
			if existing.ID != mapperID {
				out = append(out, existing)
			}
		}
		c.ProtocolMappers = out
		return nil
	})
}

// GetProtocolMapperByName finds a mapper by its (protocol, name) pair.
func (d *Directory) GetProtocolMapperByName(clientID, protocol, name string) (*models.ProtocolMapper, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	for _, mapper := range client.ProtocolMappers {
		if mapper.Protocol == protocol && mapper.Name == name {
			return mapper, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "protocol mapper", Ref: name}
}

// AddScopeMapping grants the client access to a role from any container in
// the realm.
func (d *Directory) AddScopeMapping(s *session.Session, clientID, roleID string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		role, ok := d.store.GetRole(roleID)
		if !ok || role.RealmID != c.RealmID {
			return &models.NotFoundError{Resource: "role", Ref: roleID}
		}
		c.ScopeMappings[roleID] = struct{}{}
		return nil
	})
}

func (d *Directory) DeleteScopeMapping(s *session.Session, clientID, roleID string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		delete(c.ScopeMappings, roleID)
		return nil
	})
}

// AddDefaultRole appends a default role name, creating the role on the
// client when it does not exist yet, as the origin system does.
func (d *Directory) AddDefaultRole(s *session.Session, clientID, name string) error {
	if _, err := d.GetClientRole(clientID, name); err != nil {
		if !models.IsNotFound(err) {
			return err
		}
		if _, err := d.AddClientRole(s, clientID, name); err != nil {
			return err
		}
	}

	return d.mutateClient(s, clientID, func(c *models.Client) error {
		for _, existing := range c.DefaultRoles {
			if existing == name {
				return nil
			}
		}
		c.DefaultRoles = append(c.DefaultRoles, name)
		return nil
	})
}

// RegisterNode records a cluster node registration timestamp for the client.
func (d *Directory) RegisterNode(s *session.Session, clientID, nodeHost string, registrationTime int) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.RegisteredNodes[nodeHost] = registrationTime
		return nil
	})
}

func (d *Directory) UnregisterNode(s *session.Session, clientID, nodeHost string) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		delete(c.RegisteredNodes, nodeHost)
		return nil
	})
}

func (d *Directory) SetNodeReRegistrationTimeout(s *session.Session, clientID string, timeout int) error {
	return d.mutateClient(s, clientID, func(c *models.Client) error {
		c.NodeReRegistrationTimeout = timeout
		return nil
	})
}

// RemoveClient deletes a client and all roles it owns, cascading each role
// removal.
func (d *Directory) RemoveClient(s *session.Session, clientID string) (bool, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return false, nil
	}

	for _, role := range d.store.ClientRoles(clientID) {
		if _, err := d.RemoveRole(s, role.ID); err != nil {
			return false, err
		}
	}

	lock := d.realmLock(client.RealmID)
	lock.Lock()
	defer lock.Unlock()

	removed := d.store.DeleteClient(clientID)
	if err := d.requestWrite(s, client.RealmID); err != nil {
		return removed, err
	}

	d.logger.Info("Client removed",
		zap.String("id", clientID),
		zap.String("client_id", client.ClientID),
		zap.String("realm_id", client.RealmID))
	return removed, nil
}
