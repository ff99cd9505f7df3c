package core

// SenderRole classifies the origin of an inbound message.
type SenderRole int

const (
	RoleUnknown SenderRole = iota
	RoleProxy
	RoleSupervisor
	RoleShell
	RoleLearner
)

func (r SenderRole) String() string {
	switch r {
	case RoleProxy:
		return "proxy"
	case RoleSupervisor:
		return "supervisor"
	case RoleShell:
		return "shell"
	case RoleLearner:
		return "learner"
	default:
		return "unknown"
	}
}

// Identities are the well-known network identities of the peers.
type Identities struct {
	Proxy      string
	Supervisor string
	Shell      string
	Learner    string
}

// Roles maps sender identities to roles. It is resolved once from the
// configured identities; when an identity is configured for more than one
// role the first role in dispatch priority order wins.
type Roles struct {
	ids    Identities
	byName map[string]SenderRole
}

// NewRoles builds the resolver for ids.
func NewRoles(ids Identities) Roles {
	r := Roles{ids: ids, byName: make(map[string]SenderRole, 4)}
	for _, entry := range []struct {
		id   string
		role SenderRole
	}{
		{ids.Proxy, RoleProxy},
		{ids.Supervisor, RoleSupervisor},
		{ids.Shell, RoleShell},
		{ids.Learner, RoleLearner},
	} {
		if entry.id == "" {
			continue
		}
		if _, taken := r.byName[entry.id]; !taken {
			r.byName[entry.id] = entry.role
		}
	}
	return r
}

// Resolve returns the role of from, or RoleUnknown.
func (r Roles) Resolve(from string) SenderRole {
	return r.byName[from]
}

// Identity returns the configured identity for role.
func (r Roles) Identity(role SenderRole) string {
	switch role {
	case RoleProxy:
		return r.ids.Proxy
	case RoleSupervisor:
		return r.ids.Supervisor
	case RoleShell:
		return r.ids.Shell
	case RoleLearner:
		return r.ids.Learner
	default:
		return ""
	}
}
