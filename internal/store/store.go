// Package store holds the canonical mutable records keyed by id. It enforces
// no cross-entity invariants; uniqueness and cascades belong to the directory
// layer. The maps themselves are guarded by a store-level mutex so sessions
// working in different realms never race on them; the directory's per-realm
// locks serialize check-then-insert sequences within one realm.
package store

import (
	"sync"

	"github.com/ektropy/realm-authz/internal/models"
)

type EntityStore struct {
	mu      sync.RWMutex
	realms  map[string]*models.Realm
	clients map[string]*models.Client
	roles   map[string]*models.Role
	users   map[string]*models.User
}

func New() *EntityStore {
	return &EntityStore{
		realms:  make(map[string]*models.Realm),
		clients: make(map[string]*models.Client),
		roles:   make(map[string]*models.Role),
		users:   make(map[string]*models.User),
	}
}

func (s *EntityStore) GetRealm(id string) (*models.Realm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.realms[id]
	return r, ok
}

func (s *EntityStore) PutRealm(r *models.Realm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realms[r.ID] = r
}

func (s *EntityStore) DeleteRealm(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.realms[id]
	delete(s.realms, id)
	return ok
}

func (s *EntityStore) Realms() []*models.Realm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Realm, 0, len(s.realms))
	for _, r := range s.realms {
		out = append(out, r)
	}
	return out
}

// RealmByName scans for a realm with the given name.
func (s *EntityStore) RealmByName(name string) (*models.Realm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.realms {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

func (s *EntityStore) GetClient(id string) (*models.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *EntityStore) PutClient(c *models.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

func (s *EntityStore) DeleteClient(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[id]
	delete(s.clients, id)
	return ok
}

// ClientsByRealm returns every client registered in the realm.
func (s *EntityStore) ClientsByRealm(realmID string) []*models.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Client
	for _, c := range s.clients {
		if c.RealmID == realmID {
			out = append(out, c)
		}
	}
	return out
}

// ClientByClientID scans the realm for a client with the given public
// clientId.
func (s *EntityStore) ClientByClientID(realmID, clientID string) (*models.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.RealmID == realmID && c.ClientID == clientID {
			return c, true
		}
	}
	return nil, false
}

func (s *EntityStore) GetRole(id string) (*models.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	return r, ok
}

func (s *EntityStore) PutRole(r *models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
}

func (s *EntityStore) DeleteRole(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.roles[id]
	delete(s.roles, id)
	return ok
}

// RealmRoles returns roles owned by the realm itself.
func (s *EntityStore) RealmRoles(realmID string) []*models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Role
	for _, r := range s.roles {
		if r.RealmID == realmID && r.IsRealmRole() {
			out = append(out, r)
		}
	}
	return out
}

// ClientRoles returns roles owned by the given client.
func (s *EntityStore) ClientRoles(clientID string) []*models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Role
	for _, r := range s.roles {
		if r.ClientID == clientID {
			out = append(out, r)
		}
	}
	return out
}

func (s *EntityStore) GetUser(id string) (*models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *EntityStore) PutUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *EntityStore) DeleteUser(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	delete(s.users, id)
	return ok
}

// UsersByRealm returns every user belonging to the realm.
func (s *EntityStore) UsersByRealm(realmID string) []*models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.RealmID == realmID {
			out = append(out, u)
		}
	}
	return out
}
