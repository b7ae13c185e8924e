package domain

// Role type to distinguish between token holders
type Role string

// Define constants for roles
const (
	RoleCoach Role = "coach"
	RoleAdmin Role = "admin" // Support staff running data-repair tooling
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleCoach || r == RoleAdmin
}
