package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleService  = "service" // internal event producers
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsService(role string) bool { return role == RoleService }

// Valid reports whether role is one the API recognises.
func Valid(role string) bool {
	switch role {
	case RoleCustomer, RoleAdmin, RoleService:
		return true
	default:
		return false
	}
}
