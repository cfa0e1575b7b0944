// Package directory enforces the per-realm invariants over the entity store:
// clientId uniqueness, role-name uniqueness per container, protocol-mapper
// uniqueness per (protocol, name), and the removal cascade. Every mutator
// validates before touching the store, marks the session dirty through the
// commit coordinator, and runs under the realm's exclusive lock so
// check-then-insert sequences cannot race.
package directory

import (
	"fmt"
	"sync"

	"github.com/ektropy/realm-authz/internal/graph"
	"github.com/ektropy/realm-authz/internal/models"
	"github.com/ektropy/realm-authz/internal/session"
	"github.com/ektropy/realm-authz/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Directory struct {
	store       *store.EntityStore
	graph       *graph.Graph
	coordinator *session.Coordinator
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func New(entityStore *store.EntityStore, g *graph.Graph, coordinator *session.Coordinator, logger *zap.Logger) *Directory {
	return &Directory{
		store:       entityStore,
		graph:       g,
		coordinator: coordinator,
		logger:      logger,
		locks:       make(map[string]*sync.RWMutex),
	}
}

// realmLock returns the lock guarding one realm's slice of the store.
func (d *Directory) realmLock(realmID string) *sync.RWMutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[realmID]
	if !ok {
		lock = &sync.RWMutex{}
		d.locks[realmID] = lock
	}
	return lock
}

// CreateRealm registers a new realm with a generated immutable id. The name
// must be unique across realms.
func (d *Directory) CreateRealm(s *session.Session, name string) (*models.Realm, error) {
	d.mu.Lock()
	if _, exists := d.store.RealmByName(name); exists {
		d.mu.Unlock()
		return nil, &models.DuplicateError{Resource: "realm", Name: name}
	}

	realm := &models.Realm{
		ID:         uuid.NewString(),
		Name:       name,
		Enabled:    true,
		Attributes: make(map[string]string),
	}
	d.store.PutRealm(realm)
	d.locks[realm.ID] = &sync.RWMutex{}
	d.mu.Unlock()

	if err := d.coordinator.RequestWrite(s, realm.ID); err != nil {
		return nil, err
	}

	d.logger.Info("Realm created",
		zap.String("realm_id", realm.ID),
		zap.String("realm_name", name))
	return realm, nil
}

// GetRealm looks a realm up by id.
func (d *Directory) GetRealm(realmID string) (*models.Realm, error) {
	realm, ok := d.store.GetRealm(realmID)
	if !ok {
		return nil, &models.NotFoundError{Resource: "realm", Ref: realmID}
	}
	return realm, nil
}

// GetRealmByName looks a realm up by name.
func (d *Directory) GetRealmByName(name string) (*models.Realm, error) {
	realm, ok := d.store.RealmByName(name)
	if !ok {
		return nil, &models.NotFoundError{Resource: "realm", Ref: name}
	}
	return realm, nil
}

// CreateUser registers a user in the realm, unique by username.
func (d *Directory) CreateUser(s *session.Session, realmID, username string) (*models.User, error) {
	lock := d.realmLock(realmID)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := d.store.GetRealm(realmID); !ok {
		return nil, &models.NotFoundError{Resource: "realm", Ref: realmID}
	}
	for _, u := range d.store.UsersByRealm(realmID) {
		if u.Username == username {
			return nil, &models.DuplicateError{Resource: "user", Name: username}
		}
	}

	user := &models.User{
		ID:         uuid.NewString(),
		RealmID:    realmID,
		Username:   username,
		Enabled:    true,
		RoleGrants: make(map[string]struct{}),
	}
	d.store.PutUser(user)

	if err := d.coordinator.RequestWrite(s, realmID); err != nil {
		return nil, err
	}
	return user, nil
}

// GrantRole adds a direct role grant to the user.
func (d *Directory) GrantRole(s *session.Session, userID, roleID string) error {
	user, ok := d.store.GetUser(userID)
	if !ok {
		return &models.NotFoundError{Resource: "user", Ref: userID}
	}

	lock := d.realmLock(user.RealmID)
	lock.Lock()
	defer lock.Unlock()

	// re-read under the lock: the user may have been removed while we waited
	if user, ok = d.store.GetUser(userID); !ok {
		return &models.NotFoundError{Resource: "user", Ref: userID}
	}
	if _, ok := d.store.GetRole(roleID); !ok {
		return &models.NotFoundError{Resource: "role", Ref: roleID}
	}
	user.RoleGrants[roleID] = struct{}{}

	return d.coordinator.RequestWrite(s, user.RealmID)
}

// DeleteRoleGrant removes a direct role grant from the user.
func (d *Directory) DeleteRoleGrant(s *session.Session, userID, roleID string) error {
	user, ok := d.store.GetUser(userID)
	if !ok {
		return &models.NotFoundError{Resource: "user", Ref: userID}
	}

	lock := d.realmLock(user.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if user, ok = d.store.GetUser(userID); !ok {
		return &models.NotFoundError{Resource: "user", Ref: userID}
	}
	delete(user.RoleGrants, roleID)
	return d.coordinator.RequestWrite(s, user.RealmID)
}

// RemoveUser deletes a user and its grant set. Returns whether the user was
// present.
func (d *Directory) RemoveUser(s *session.Session, userID string) (bool, error) {
	user, ok := d.store.GetUser(userID)
	if !ok {
		return false, nil
	}

	lock := d.realmLock(user.RealmID)
	lock.Lock()
	defer lock.Unlock()

	removed := d.store.DeleteUser(userID)
	if !removed {
		return false, nil
	}

	if err := d.requestWrite(s, user.RealmID); err != nil {
		return removed, err
	}

	d.logger.Info("User removed",
		zap.String("user_id", userID),
		zap.String("username", user.Username),
		zap.String("realm_id", user.RealmID))
	return removed, nil
}

// SetUserEnabled toggles the user without touching its grants.
func (d *Directory) SetUserEnabled(s *session.Session, userID string, enabled bool) error {
	user, ok := d.store.GetUser(userID)
	if !ok {
		return &models.NotFoundError{Resource: "user", Ref: userID}
	}

	lock := d.realmLock(user.RealmID)
	lock.Lock()
	defer lock.Unlock()

	if user, ok = d.store.GetUser(userID); !ok {
		return &models.NotFoundError{Resource: "user", Ref: userID}
	}
	user.Enabled = enabled
	return d.coordinator.RequestWrite(s, user.RealmID)
}

// ResolveScope answers whether the client may request the role, under the
// realm's read lock.
func (d *Directory) ResolveScope(clientID, roleID string) (bool, error) {
	client, ok := d.store.GetClient(clientID)
	if !ok {
		return false, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	role, ok := d.store.GetRole(roleID)
	if !ok {
		return false, &models.NotFoundError{Resource: "role", Ref: roleID}
	}

	lock := d.realmLock(client.RealmID)
	lock.RLock()
	defer lock.RUnlock()

	if client, ok = d.store.GetClient(clientID); !ok {
		return false, &models.NotFoundError{Resource: "client", Ref: clientID}
	}
	return d.graph.HasScope(client, role), nil
}

// Graph exposes read-only resolution for callers that already hold a
// consistent view (exports, tests).
func (d *Directory) Graph() *graph.Graph {
	return d.graph
}

// Store exposes the raw record store. Mutations must go through directory
// operations.
func (d *Directory) Store() *store.EntityStore {
	return d.store
}

func (d *Directory) requestWrite(s *session.Session, realmID string) error {
	if err := d.coordinator.RequestWrite(s, realmID); err != nil {
		return fmt.Errorf("failed to register write intent: %w", err)
	}
	return nil
}
