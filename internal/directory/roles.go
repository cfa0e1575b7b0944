package directory

import (
	"fmt"

	"github.com/ektropy/realm-authz/internal/constants"
	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddRealmRole creates a realm-owned role with a generated id.
func (d *Directory) AddRealmRole(s *session.Session, realmID, name string) (*models.Role, error) {
	return d.addRole(s, realmID, "", uuid.NewString(), name)
}

// AddRealmRoleWithID is the restore/import path: the caller supplies the id.
func (d *Directory) AddRealmRoleWithID(s *session.Session, realmID, id, name string) (*models.Role, error) {
	return d.addRole(s, realmID, "", id, name)
}

// AddClientRole creates a role owned by the client, with a generated id.
func (d *Directory) AddClientRole(s *session.Session, clientID, name string) (*models.Role, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	return d.addRole(s, client.RealmID, clientID, uuid.NewString(), name)
}

// AddClientRoleWithID is the restore/import path for client roles.
func (d *Directory) AddClientRoleWithID(s *session.Session, clientID, id, name string) (*models.Role, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	return d.addRole(s, client.RealmID, clientID, id, name)
}

// addRole performs the check-then-insert under the realm lock. The name must
// be unique within the owning container (case-sensitive), and the supplied id
// must not collide with any existing role: ids are never silently reused.
func (d *Directory) addRole(s *session.Session, realmID, ownerClientID, id, name string) (*models.Role, error) {
	lock := d.realmLock(realmID)
	lock.Lock()
	defer lock.Unlock()

	if name == "" || len(name) > constants.MaxRoleNameLength {
		return nil, fmt.Errorf("role name must be 1 to %d characters", constants.MaxRoleNameLength)
	}
	if _, ok := d.store.GetRealm(realmID); !ok {
		return nil, &models.NotFoundError{Resource: "realm", Ref: realmID}
	}
	if ownerClientID != "" {
		if _, ok := d.store.GetClient(ownerClientID); !ok {
			return nil, &models.NotFoundError{Resource: "client", Ref: ownerClientID}
		}
	}
	if _, ok := d.store.GetRole(id); ok {
		return nil, &models.DuplicateError{Resource: "role id", Name: id}
	}
	for _, existing := range d.containerRoles(realmID, ownerClientID) {
		if existing.Name == name {
			return nil, &models.DuplicateError{Resource: "role", Name: name}
		}
	}

	role := &models.Role{
		ID:         id,
		RealmID:    realmID,
		ClientID:   ownerClientID,
		Name:       name,
		Composites: make(map[string]struct{}),
	}
	d.store.PutRole(role)

	if err := d.requestWrite(s, realmID); err != nil {
		return nil, err
	}

	d.logger.Info("Role created",
		zap.String("role_id", role.ID),
		zap.String("role_name", name),
		zap.String("realm_id", realmID),
		zap.String("client_id", ownerClientID))
	return role, nil
}

func (d *Directory) containerRoles(realmID, ownerClientID string) []*models.Role {
	if ownerClientID == "" {
		return d.store.RealmRoles(realmID)
	}
	return d.store.ClientRoles(ownerClientID)
}

// GetRealmRole finds a realm role by name.
func (d *Directory) GetRealmRole(realmID, name string) (*models.Role, error) {
	lock := d.realmLock(realmID)
	lock.RLock()
	defer lock.RUnlock()

	for _, role := range d.store.RealmRoles(realmID) {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "role", Ref: name}
}

// GetClientRole finds a client-owned role by name.
func (d *Directory) GetClientRole(clientID, name string) (*models.Role, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "client", Ref: clientID}
	}

	lock := d.realmLock(client.RealmID)
	lock.RLock()
	defer lock.RUnlock()

	for _, role := range d.store.ClientRoles(clientID) {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "role", Ref: name}
}

// ListRealmRoles returns the realm's own roles.
func (d *Directory) ListRealmRoles(realmID string) []*models.Role {
	lock := d.realmLock(realmID)
	lock.RLock()
	defer lock.RUnlock()
	return d.store.RealmRoles(realmID)
}

// ListClientRoles returns the client's own roles.
func (d *Directory) ListClientRoles(clientID string) []*models.Role {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return nil
	}
	lock := d.realmLock(client.RealmID)
	lock.RLock()
	defer lock.RUnlock()
	return d.store.ClientRoles(clientID)
}

// RemoveRole deletes the role and cascades under one realm lock, so no
// partially-cascaded state is observable: user grants, every client's scope
// mappings, composite references, and the owning container. Returns whether
// the role was present.
func (d *Directory) RemoveRole(s *session.Session, roleID string) (bool, error) {
	role, ok := d.store.GetRole(roleID)
	if !ok {
		return false, nil
	}

	lock := d.realmLock(role.RealmID)
	lock.Lock()
	defer lock.Unlock()

	// re-read under the lock: another session may have removed it already
	if role, ok = d.store.GetRole(roleID); !ok {
		return false, nil
	}

	for _, user := range d.store.UsersByRealm(role.RealmID) {
		delete(user.RoleGrants, roleID)
	}
	for _, client := range d.store.ClientsByRealm(role.RealmID) {
		delete(client.ScopeMappings, roleID)
	}
	for _, other := range d.store.RealmRoles(role.RealmID) {
		delete(other.Composites, roleID)
	}
	for _, client := range d.store.ClientsByRealm(role.RealmID) {
		for _, other := range d.store.ClientRoles(client.ID) {
			delete(other.Composites, roleID)
		}
	}

	removed := d.store.DeleteRole(roleID)

	if err := d.requestWrite(s, role.RealmID); err != nil {
		return removed, err
	}

	d.logger.Info("Role removed",
		zap.String("role_id", roleID),
		zap.String("role_name", role.Name),
		zap.String("realm_id", role.RealmID))
	return removed, nil
}

// AddComposite makes role grant member. Both must live in the same realm.
func (d *Directory) AddComposite(s *session.Session, roleID, memberID string) error {
	role, ok := d.store.GetRole(roleID)
	if !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}

	lock := d.realmLock(role.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if role, ok = d.store.GetRole(roleID); !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}
	member, ok := d.store.GetRole(memberID)
	if !ok || member.RealmID != role.RealmID {
		return &models.NotFoundError{Resource: "role", Ref: memberID}
	}

	role.Composites[memberID] = struct{}{}
	return d.requestWrite(s, role.RealmID)
}

// RemoveComposite removes member from role's composite set.
func (d *Directory) RemoveComposite(s *session.Session, roleID, memberID string) error {
	role, ok := d.store.GetRole(roleID)
	if !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}

	lock := d.realmLock(role.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if role, ok = d.store.GetRole(roleID); !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}
	delete(role.Composites, memberID)
	return d.requestWrite(s, role.RealmID)
}

// UpdateRole renames and redescribes a role; renames re-run the container
// uniqueness check excluding the role itself.
func (d *Directory) UpdateRole(s *session.Session, roleID string, rep models.RoleRepresentation) error {
	role, ok := d.store.GetRole(roleID)
	if !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}

	lock := d.realmLock(role.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if role, ok = d.store.GetRole(roleID); !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}
	if len(rep.Description) > constants.MaxDescriptionLength {
		return fmt.Errorf("role description exceeds %d characters", constants.MaxDescriptionLength)
	}
	if rep.Name != role.Name {
		if rep.Name == "" || len(rep.Name) > constants.MaxRoleNameLength {
			return fmt.Errorf("role name must be 1 to %d characters", constants.MaxRoleNameLength)
		}
		for _, existing := range d.containerRoles(role.RealmID, role.ClientID) {
			if existing.ID != role.ID && existing.Name == rep.Name {
				return &models.DuplicateError{Resource: "role", Name: rep.Name}
			}
		}
		role.Name = rep.Name
	}
	role.Description = rep.Description
	role.ScopeParamRequired = rep.ScopeParamRequired

	return d.requestWrite(s, role.RealmID)
}

// SetRoleDescription updates description and scope-param flag without
// touching the name.
func (d *Directory) SetRoleDescription(s *session.Session, roleID, description string, scopeParamRequired bool) error {
	role, ok := d.store.GetRole(roleID)
	if !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}

	lock := d.realmLock(role.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if role, ok = d.store.GetRole(roleID); !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}
	if len(description) > constants.MaxDescriptionLength {
		return fmt.Errorf("role description exceeds %d characters", constants.MaxDescriptionLength)
	}
	role.Description = description
	role.ScopeParamRequired = scopeParamRequired
	return d.requestWrite(s, role.RealmID)
}
