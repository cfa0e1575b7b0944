package models

// Realm is the top-level container for clients, roles and users. Its id is
// generated once and never changes.
type Realm struct {
	ID           string
	Name         string
	Enabled      bool
	NotBefore    int
	DefaultRoles []string
	Attributes   map[string]string
}

// Client is a registered application within a realm. The internal ID is the
// store key; ClientID is the mutable, realm-unique public identifier.
type Client struct {
	ID       string
	RealmID  string
	ClientID string
	Secret   string
	Protocol string

	Enabled               bool
	PublicClient          bool
	BearerOnly            bool
	ConsentRequired       bool
	FullScopeAllowed      bool
	FrontchannelLogout    bool
	SurrogateAuthRequired bool
	DirectGrantsOnly      bool

	NotBefore     int
	ManagementURL string
	BaseURL       string

	WebOrigins   []string
	RedirectURIs []string
	Attributes   map[string]string
	DefaultRoles []string

	ProtocolMappers []*ProtocolMapper

	// ScopeMappings holds ids of roles this client may request, keyed for
	// O(1) add/delete.
	ScopeMappings map[string]struct{}

	RegisteredNodes           map[string]int
	NodeReRegistrationTimeout int
}

// ClientFlags bundles the protocol flags replaced together by
// Directory.SetClientFlags.
type ClientFlags struct {
	PublicClient          bool
	BearerOnly            bool
	ConsentRequired       bool
	FullScopeAllowed      bool
	FrontchannelLogout    bool
	SurrogateAuthRequired bool
	DirectGrantsOnly      bool
}

// HasScopeMapping reports whether roleID is a direct scope mapping.
func (c *Client) HasScopeMapping(roleID string) bool {
	_, ok := c.ScopeMappings[roleID]
	return ok
}

// Role is a named grant owned by either a realm or a client. ClientID is
// empty for realm roles; the discriminator replaces the downcasts the origin
// system used to tell the two apart.
type Role struct {
	ID                 string
	RealmID            string
	ClientID           string
	Name               string
	Description        string
	ScopeParamRequired bool

	// Composites holds ids of roles this role transitively grants.
	Composites map[string]struct{}
}

// IsRealmRole reports whether the role is owned by the realm itself.
func (r *Role) IsRealmRole() bool {
	return r.ClientID == ""
}

// IsComposite reports whether the role grants any other roles.
func (r *Role) IsComposite() bool {
	return len(r.Composites) > 0
}

// ProtocolMapper is a per-client mapper, unique per (protocol, name).
type ProtocolMapper struct {
	ID              string
	Protocol        string
	Name            string
	ProtocolMapper  string
	Config          map[string]string
	ConsentRequired bool
	ConsentText     string
}

// User participates in the role graph through its grant set. Everything else
// about users lives outside this model.
type User struct {
	ID         string
	RealmID    string
	Username   string
	Enabled    bool
	Groups     []string
	RoleGrants map[string]struct{}
}

// HasGrant reports whether the user holds a direct grant of roleID.
func (u *User) HasGrant(roleID string) bool {
	_, ok := u.RoleGrants[roleID]
	return ok
}
