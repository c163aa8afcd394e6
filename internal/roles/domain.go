package roles

// Role represents a named permission grouping. Grants live in the
// role_permissions index and are attached by the rbac service.
type Role struct {
	ID          uint32
	Name        string
	Description string
}
