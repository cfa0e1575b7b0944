package store

import (
	"testing"

	"github.com/ektropy/realm-authz/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEntityStoreRoundTrip(t *testing.T) {
	s := New()

	realm := &models.Realm{ID: "r1", Name: "demo"}
	s.PutRealm(realm)

	got, ok := s.GetRealm("r1")
	assert.True(t, ok)
	assert.Equal(t, realm, got)

	_, ok = s.GetRealm("missing")
	assert.False(t, ok)

	assert.True(t, s.DeleteRealm("r1"))
	assert.False(t, s.DeleteRealm("r1"))
}

func TestRealmByName(t *testing.T) {
	s := New()
	s.PutRealm(&models.Realm{ID: "r1", Name: "demo"})
	s.PutRealm(&models.Realm{ID: "r2", Name: "other"})

	realm, ok := s.RealmByName("other")
	assert.True(t, ok)
	assert.Equal(t, "r2", realm.ID)

	_, ok = s.RealmByName("nope")
	assert.False(t, ok)
}

func TestClientFilters(t *testing.T) {
	s := New()
	s.PutClient(&models.Client{ID: "c1", RealmID: "r1", ClientID: "app1"})
	s.PutClient(&models.Client{ID: "c2", RealmID: "r1", ClientID: "app2"})
	s.PutClient(&models.Client{ID: "c3", RealmID: "r2", ClientID: "app1"})

	assert.Len(t, s.ClientsByRealm("r1"), 2)
	assert.Len(t, s.ClientsByRealm("r2"), 1)
	assert.Empty(t, s.ClientsByRealm("r3"))

	client, ok := s.ClientByClientID("r2", "app1")
	assert.True(t, ok)
	assert.Equal(t, "c3", client.ID)

	_, ok = s.ClientByClientID("r2", "app2")
	assert.False(t, ok)
}

func TestRoleFilters(t *testing.T) {
	s := New()
	s.PutRole(&models.Role{ID: "ro1", RealmID: "r1", Name: "admin"})
	s.PutRole(&models.Role{ID: "ro2", RealmID: "r1", ClientID: "c1", Name: "viewer"})
	s.PutRole(&models.Role{ID: "ro3", RealmID: "r1", ClientID: "c1", Name: "editor"})

	realmRoles := s.RealmRoles("r1")
	assert.Len(t, realmRoles, 1)
	assert.Equal(t, "admin", realmRoles[0].Name)

	assert.Len(t, s.ClientRoles("c1"), 2)
	assert.Empty(t, s.ClientRoles("c2"))
}

func TestUsersByRealm(t *testing.T) {
	s := New()
	s.PutUser(&models.User{ID: "u1", RealmID: "r1", Username: "alice"})
	s.PutUser(&models.User{ID: "u2", RealmID: "r2", Username: "bob"})

	users := s.UsersByRealm("r1")
	assert.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)
}
