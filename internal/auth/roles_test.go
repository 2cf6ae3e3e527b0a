package auth

import "testing"

func TestRolePermissions(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleNurse, PermConsultationCreate, true},
		{RoleNurse, PermConsultationVoid, false},
		{RoleCoordinator, PermConsultationVoid, true},
		{RoleAuditor, PermAuditVerify, true},
		{RoleAuditor, PermPatientCreate, false},
		{RoleAdmin, PermAuditVerify, true},
		{Role("unknown"), PermPatientRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAnyRoleHasPermission(t *testing.T) {
	if !AnyRoleHasPermission([]string{"viewer", "nurse"}, PermPatientCreate) {
		t.Error("Expected nurse role to grant patient.create")
	}
	if AnyRoleHasPermission(nil, PermPatientRead) {
		t.Error("Expected no roles to grant nothing")
	}
}

func TestHasAnyRole(t *testing.T) {
	if !HasAnyRole([]Role{RoleNurse}, RoleAdmin, RoleNurse) {
		t.Error("Expected nurse to match")
	}
	if HasAnyRole([]Role{RoleAuditor}, RoleAdmin) {
		t.Error("Expected auditor not to match admin")
	}
}
