package enums

// Role is the marketplace actor a user acts as.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "administrator"
)

var roles = newSet("role", RoleBuyer, RoleVendor, RoleAgent, RoleAdmin)

func (r Role) IsValid() bool { return roles.has(r) }

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) { return roles.parse(value) }
