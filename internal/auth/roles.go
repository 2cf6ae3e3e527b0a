// Package auth defines the roles and permissions of the outpatient program.
package auth

// Role represents a user role in the system.
type Role string

const (
	RoleAdmin       Role = "admin"       // Full access
	RoleCoordinator Role = "coordinator" // Program coordination, may void consultations
	RoleNurse       Role = "nurse"       // Registers patients, profiles and consultations
	RoleAuditor     Role = "auditor"     // Read-only access plus the audit trail
)

// Permission represents a specific action on a resource.
type Permission string

// Patient permissions
const (
	PermPatientCreate Permission = "patient.create"
	PermPatientRead   Permission = "patient.read"
	PermPatientUpdate Permission = "patient.update"
)

// Profile permissions
const (
	PermProfileWrite Permission = "profile.write"
	PermProfileRead  Permission = "profile.read"
)

// Consultation permissions
const (
	PermConsultationCreate Permission = "consultation.create"
	PermConsultationRead   Permission = "consultation.read"
	PermConsultationVoid   Permission = "consultation.void"
)

// Audit permissions
const (
	PermAuditRead   Permission = "audit.read"
	PermAuditVerify Permission = "audit.verify"
)

// RolePermissions maps roles to their default permissions.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermProfileWrite, PermProfileRead,
		PermConsultationCreate, PermConsultationRead, PermConsultationVoid,
		PermAuditRead, PermAuditVerify,
	},
	RoleCoordinator: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermProfileWrite, PermProfileRead,
		PermConsultationCreate, PermConsultationRead, PermConsultationVoid,
		PermAuditRead,
	},
	RoleNurse: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermProfileWrite, PermProfileRead,
		PermConsultationCreate, PermConsultationRead,
	},
	RoleAuditor: {
		PermPatientRead, PermProfileRead, PermConsultationRead,
		PermAuditRead, PermAuditVerify,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// AnyRoleHasPermission checks the permission against every role name in roles.
// Unknown role names grant nothing.
func AnyRoleHasPermission(roles []string, perm Permission) bool {
	for _, r := range roles {
		if HasPermission(Role(r), perm) {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the user has any of the specified roles.
func HasAnyRole(userRoles []Role, requiredRoles ...Role) bool {
	for _, ur := range userRoles {
		for _, rr := range requiredRoles {
			if ur == rr {
				return true
			}
		}
	}
	return false
}
