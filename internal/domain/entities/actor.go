package entities

// ActorRole is the role claimed by an authenticated caller
type ActorRole string

const (
	ActorRoleClient ActorRole = "CLIENT"
	ActorRoleResi   ActorRole = "RESI"
	ActorRoleAdmin  ActorRole = "ADMIN"
)

// IsValid reports whether r is a known role
func (r ActorRole) IsValid() bool {
	switch r {
	case ActorRoleClient, ActorRoleResi, ActorRoleAdmin:
		return true
	}
	return false
}

// Actor is the identity supplied by the auth provider
type Actor struct {
	ID   string
	Role ActorRole
}
