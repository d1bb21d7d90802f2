package enums

import "fmt"

// ActorRole is the role claim carried by an access token.
type ActorRole string

const (
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleEVMStaff   ActorRole = "evm_staff"
	ActorRoleSCStaff    ActorRole = "sc_staff"
	ActorRoleTechnician ActorRole = "technician"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleEVMStaff,
	ActorRoleSCStaff,
	ActorRoleTechnician,
}

// String implements fmt.Stringer.
func (a ActorRole) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorRole.
func (a ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into a ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
