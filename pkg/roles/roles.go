package roles

import "fmt"

// Role is a user's permission level.
type Role string

const (
	Operator   Role = "operator"
	Supervisor Role = "supervisor"
	Admin      Role = "admin"
)

type HierarchyLevel int

const (
	UnknownLevel    HierarchyLevel = 0
	OperatorLevel   HierarchyLevel = 1
	SupervisorLevel HierarchyLevel = 2
	AdminLevel      HierarchyLevel = 3
)

func NewRole(value string) (Role, error) {
	role := Role(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role: %s", value)
	}
	return role, nil
}

// GetHierarchyLevel returns UnknownLevel for roles outside the hierarchy, so
// they never pass a permission check.
func (r Role) GetHierarchyLevel() HierarchyLevel {
	switch r {
	case Operator:
		return OperatorLevel
	case Supervisor:
		return SupervisorLevel
	case Admin:
		return AdminLevel
	default:
		return UnknownLevel
	}
}

// HasPermission reports whether r is at least requiredRole.
func (r Role) HasPermission(requiredRole Role) bool {
	if !r.IsValid() || !requiredRole.IsValid() {
		return false
	}
	return r.GetHierarchyLevel() >= requiredRole.GetHierarchyLevel()
}

func (r Role) IsValid() bool {
	switch r {
	case Operator, Supervisor, Admin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}
