package auth

// Role constants. Matches the CHECK constraint on users.role.
const (
	RoleSuperAdmin        = "super_admin"
	RoleAdmin             = "admin"
	RoleManager           = "manager"
	RoleComplianceOfficer = "compliance_officer"
	RoleStaff             = "staff"
)

// AllRoles lists every assignable role.
var AllRoles = []string{RoleSuperAdmin, RoleAdmin, RoleManager, RoleComplianceOfficer, RoleStaff}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role carries organization-admin rights.
func IsAdmin(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// CanWriteCompliance reports whether the role may create or modify
// compliance resources (requirements, assessments, action plans, schedules,
// evidence, risks). Staff is read-only.
func CanWriteCompliance(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleComplianceOfficer:
		return true
	}
	return false
}
