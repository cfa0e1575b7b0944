package directory

import (
	"testing"

	"github.com/ektropy/realm-authz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClientUniqueClientID(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)

	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)
	assert.NotEmpty(t, client.ID)
	assert.True(t, client.Enabled)

	_, err = d.CreateClient(s, realm.ID, "app1")
	require.Error(t, err)
	assert.True(t, models.IsDuplicate(err))

	// same clientId in a different realm is fine
	other, err := d.CreateRealm(s, "other")
	require.NoError(t, err)
	_, err = d.CreateClient(s, other.ID, "app1")
	require.NoError(t, err)
}

func TestSetClientIDExcludesSelf(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	app1, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)
	_, err = d.CreateClient(s, realm.ID, "app2")
	require.NoError(t, err)

	// re-setting the current value is not a conflict with itself
	require.NoError(t, d.SetClientID(s, app1.ID, "app1"))
	assert.Equal(t, "app1", app1.ClientID)

	err = d.SetClientID(s, app1.ID, "app2")
	require.Error(t, err)
	assert.True(t, models.IsDuplicate(err))
	assert.Equal(t, "app1", app1.ClientID)

	require.NoError(t, d.SetClientID(s, app1.ID, "renamed"))
	found, err := d.GetClientByClientID(realm.ID, "renamed")
	require.NoError(t, err)
	assert.Equal(t, app1.ID, found.ID)
}

func TestClientSecret(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	require.NoError(t, d.SetClientSecret(s, client.ID, "s3cret"))

	ok, err := d.ValidateClientSecret(client.ID, "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.ValidateClientSecret(client.ID, "wrong")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWebOriginsAndRedirectURIs(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	require.NoError(t, d.AddWebOrigin(s, client.ID, "https://a.example"))
	require.NoError(t, d.AddWebOrigin(s, client.ID, "https://a.example"))
	assert.Equal(t, []string{"https://a.example"}, client.WebOrigins)

	require.NoError(t, d.AddWebOrigin(s, client.ID, "https://b.example"))
	require.NoError(t, d.RemoveWebOrigin(s, client.ID, "https://a.example"))
	assert.Equal(t, []string{"https://b.example"}, client.WebOrigins)

	require.NoError(t, d.SetRedirectURIs(s, client.ID, []string{"https://app/cb", "https://app/cb2"}))
	require.NoError(t, d.RemoveRedirectURI(s, client.ID, "https://app/cb"))
	assert.Equal(t, []string{"https://app/cb2"}, client.RedirectURIs)

	require.NoError(t, d.AddRedirectURI(s, client.ID, "https://app/cb3"))
	assert.Len(t, client.RedirectURIs, 2)
}

func TestProtocolMapperUniquePerProtocolAndName(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	mapper, err := d.AddProtocolMapper(s, client.ID, models.ProtocolMapperRepresentation{
		Protocol:       "openid-connect",
		Name:           "email",
		ProtocolMapper: "oidc-usermodel-property-mapper",
		Config:         map[string]string{"claim.name": "email"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, mapper.ID)

	_, err = d.AddProtocolMapper(s, client.ID, models.ProtocolMapperRepresentation{
		Protocol: "openid-connect",
		Name:     "email",
	})
	require.Error(t, err)
	assert.True(t, models.IsDuplicate(err))

	// same name under another protocol is a different mapper
	_, err = d.AddProtocolMapper(s, client.ID, models.ProtocolMapperRepresentation{
		Protocol: "saml",
		Name:     "email",
	})
	require.NoError(t, err)

	found, err := d.GetProtocolMapperByName(client.ID, "openid-connect", "email")
	require.NoError(t, err)
	assert.Equal(t, mapper.ID, found.ID)

	require.NoError(t, d.RemoveProtocolMapper(s, client.ID, mapper.ID))
	_, err = d.GetProtocolMapperByName(client.ID, "openid-connect", "email")
	assert.True(t, models.IsNotFound(err))
}

func TestScopeMappingsRequireSameRealmRole(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realmA, err := d.CreateRealm(s, "realm-a")
	require.NoError(t, err)
	realmB, err := d.CreateRealm(s, "realm-b")
	require.NoError(t, err)

	client, err := d.CreateClient(s, realmA.ID, "app1")
	require.NoError(t, err)
	foreign, err := d.AddRealmRole(s, realmB.ID, "viewer")
	require.NoError(t, err)

	err = d.AddScopeMapping(s, client.ID, foreign.ID)
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))

	local, err := d.AddRealmRole(s, realmA.ID, "viewer")
	require.NoError(t, err)
	require.NoError(t, d.AddScopeMapping(s, client.ID, local.ID))
	assert.Contains(t, client.ScopeMappings, local.ID)

	require.NoError(t, d.DeleteScopeMapping(s, client.ID, local.ID))
	assert.NotContains(t, client.ScopeMappings, local.ID)
}

func TestAddDefaultRoleCreatesMissingRole(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	require.NoError(t, d.AddDefaultRole(s, client.ID, "uma_protection"))
	role, err := d.GetClientRole(client.ID, "uma_protection")
	require.NoError(t, err)
	assert.Equal(t, client.ID, role.ClientID)
	assert.Equal(t, []string{"uma_protection"}, client.DefaultRoles)

	// repeating neither duplicates the name nor re-creates the role
	require.NoError(t, d.AddDefaultRole(s, client.ID, "uma_protection"))
	assert.Equal(t, []string{"uma_protection"}, client.DefaultRoles)
	assert.Len(t, d.ListClientRoles(client.ID), 1)
}

func TestClientNodes(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	require.NoError(t, d.RegisterNode(s, client.ID, "node-1", 1700000000))
	require.NoError(t, d.RegisterNode(s, client.ID, "node-2", 1700000100))
	assert.Equal(t, 1700000000, client.RegisteredNodes["node-1"])

	require.NoError(t, d.UnregisterNode(s, client.ID, "node-1"))
	assert.NotContains(t, client.RegisteredNodes, "node-1")

	require.NoError(t, d.SetNodeReRegistrationTimeout(s, client.ID, 120))
	assert.Equal(t, 120, client.NodeReRegistrationTimeout)
}

func TestSetClientFlags(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	require.NoError(t, d.SetClientFlags(s, client.ID, models.ClientFlags{
		PublicClient:     true,
		FullScopeAllowed: true,
	}))
	assert.True(t, client.PublicClient)
	assert.True(t, client.FullScopeAllowed)
	assert.False(t, client.BearerOnly)

	require.NoError(t, d.SetClientEnabled(s, client.ID, false))
	assert.False(t, client.Enabled)

	require.NoError(t, d.SetNotBefore(s, client.ID, 42))
	assert.Equal(t, 42, client.NotBefore)
}

func TestRemoveClientCascadesOwnedRoles(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	doomedClient, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)
	survivor, err := d.CreateClient(s, realm.ID, "app2")
	require.NoError(t, err)

	owned, err := d.AddClientRole(s, doomedClient.ID, "admin")
	require.NoError(t, err)
	require.NoError(t, d.AddScopeMapping(s, survivor.ID, owned.ID))

	removed, err := d.RemoveClient(s, doomedClient.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = d.GetClient(doomedClient.ID)
	assert.True(t, models.IsNotFound(err))
	assert.NotContains(t, survivor.ScopeMappings, owned.ID)

	removed, err = d.RemoveClient(s, doomedClient.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestClientAttributes(t *testing.T) {
	d, c := newTestDirectory(t)
	s := c.Begin()

	realm, err := d.CreateRealm(s, "demo")
	require.NoError(t, err)
	client, err := d.CreateClient(s, realm.ID, "app1")
	require.NoError(t, err)

	require.NoError(t, d.SetClientAttribute(s, client.ID, "logo", "https://cdn/logo.png"))
	assert.Equal(t, "https://cdn/logo.png", client.Attributes["logo"])

	require.NoError(t, d.RemoveClientAttribute(s, client.ID, "logo"))
	assert.NotContains(t, client.Attributes, "logo")
}
