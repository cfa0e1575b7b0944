package models

// Wire representations are JSON-compatible with the Keycloak admin API
// shapes; unknown fields are ignored on decode and recognized fields
// round-trip losslessly.

type RoleRepresentation struct {
	ID                 string           `json:"id,omitempty"`
	Name               string           `json:"name" validate:"required,min=1,max=255"`
	Description        string           `json:"description,omitempty" validate:"max=1000"`
	ScopeParamRequired bool             `json:"scopeParamRequired"`
	Composite          bool             `json:"composite,omitempty"`
	Composites         *RoleComposites  `json:"composites,omitempty"`
}

// RoleComposites lists composite members by name: realm roles directly,
// client roles grouped by the owning client's clientId.
type RoleComposites struct {
	Realm  []string            `json:"realm,omitempty"`
	Client map[string][]string `json:"client,omitempty"`
}

type RolesRepresentation struct {
	Realm  []RoleRepresentation            `json:"realm,omitempty" validate:"dive"`
	Client map[string][]RoleRepresentation `json:"client,omitempty" validate:"dive,dive"`
}

// IsEmpty reports whether the representation carries no roles at all.
func (r *RolesRepresentation) IsEmpty() bool {
	if len(r.Realm) > 0 {
		return false
	}
	for _, roles := range r.Client {
		if len(roles) > 0 {
			return false
		}
	}
	return true
}

type ProtocolMapperRepresentation struct {
	ID              string            `json:"id,omitempty"`
	Name            string            `json:"name" validate:"required"`
	Protocol        string            `json:"protocol" validate:"required"`
	ProtocolMapper  string            `json:"protocolMapper,omitempty"`
	Config          map[string]string `json:"config,omitempty"`
	ConsentRequired bool              `json:"consentRequired"`
	ConsentText     string            `json:"consentText,omitempty"`
}

// ScopeMappingsRepresentation groups the roles a client may request by owning
// container: realm roles by name, client roles by the owner's clientId.
type ScopeMappingsRepresentation struct {
	Realm  []string            `json:"realm,omitempty"`
	Client map[string][]string `json:"client,omitempty"`
}

// UserRepresentation carries the user's grant set by role name, grouped the
// same way scope mappings are.
type UserRepresentation struct {
	ID          string              `json:"id,omitempty"`
	Username    string              `json:"username" validate:"required"`
	Enabled     bool                `json:"enabled"`
	RealmRoles  []string            `json:"realmRoles,omitempty"`
	ClientRoles map[string][]string `json:"clientRoles,omitempty"`
}

type ClientRepresentation struct {
	ID                    string                         `json:"id,omitempty"`
	ClientID              string                         `json:"clientId" validate:"required"`
	Secret                string                         `json:"secret,omitempty"`
	Protocol              string                         `json:"protocol,omitempty"`
	Enabled               bool                           `json:"enabled"`
	PublicClient          bool                           `json:"publicClient"`
	BearerOnly            bool                           `json:"bearerOnly"`
	ConsentRequired       bool                           `json:"consentRequired"`
	FullScopeAllowed      bool                           `json:"fullScopeAllowed"`
	FrontchannelLogout    bool                           `json:"frontchannelLogout"`
	SurrogateAuthRequired bool                           `json:"surrogateAuthRequired"`
	DirectGrantsOnly      bool                           `json:"directGrantsOnly"`
	NotBefore             int                            `json:"notBefore"`
	WebOrigins            []string                       `json:"webOrigins,omitempty"`
	RedirectURIs          []string                       `json:"redirectUris,omitempty"`
	Attributes            map[string]string              `json:"attributes,omitempty"`
	DefaultRoles          []string                       `json:"defaultRoles,omitempty"`
	ProtocolMappers       []ProtocolMapperRepresentation `json:"protocolMappers,omitempty"`
	ScopeMappings         *ScopeMappingsRepresentation   `json:"scopeMappings,omitempty"`
	RegisteredNodes       map[string]int                 `json:"registeredNodes,omitempty"`

	NodeReRegistrationTimeout int `json:"nodeReRegistrationTimeout,omitempty"`
}

type RealmRepresentation struct {
	ID           string                 `json:"id,omitempty"`
	Realm        string                 `json:"realm" validate:"required"`
	Enabled      bool                   `json:"enabled"`
	NotBefore    int                    `json:"notBefore"`
	DefaultRoles []string               `json:"defaultRoles,omitempty"`
	Attributes   map[string]string      `json:"attributes,omitempty"`
	Roles        *RolesRepresentation   `json:"roles,omitempty"`
	Clients      []ClientRepresentation `json:"clients,omitempty"`
	Users        []UserRepresentation   `json:"users,omitempty"`
}

// ToRepresentation maps a role entity to its wire form. Composite member
// names are resolved by the export gateway, which has store access.
func (r *Role) ToRepresentation() RoleRepresentation {
	return RoleRepresentation{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		ScopeParamRequired: r.ScopeParamRequired,
		Composite:          r.IsComposite(),
	}
}

func (m *ProtocolMapper) ToRepresentation() ProtocolMapperRepresentation {
	config := make(map[string]string, len(m.Config))
	for k, v := range m.Config {
		config[k] = v
	}
	return ProtocolMapperRepresentation{
		ID:              m.ID,
		Name:            m.Name,
		Protocol:        m.Protocol,
		ProtocolMapper:  m.ProtocolMapper,
		Config:          config,
		ConsentRequired: m.ConsentRequired,
		ConsentText:     m.ConsentText,
	}
}
