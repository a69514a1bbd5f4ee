package capability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/clinicvault/internal/cverr"
)

func TestDefaultPolicyGrants(t *testing.T) {
	d := DefaultPolicy()

	tests := []struct {
		role      Role
		operation string
		want      bool
	}{
		{RoleDoctor, OpAddDiagnosis, true},
		{RoleDoctor, OpListDiagnosesForClinicians, true},
		{RoleDoctor, OpRunFullBackup, false},
		{RoleNurse, OpAddAppointment, true},
		{RoleNurse, OpCancelAppointment, true},
		{RoleNurse, OpAddDiagnosis, false},
		{RolePatient, OpListOwnDiagnoses, true},
		{RolePatient, OpListDiagnosesForClinicians, false},
		{RolePatient, OpCancelAppointment, false},
		{RoleAdmin, OpRotateFieldKey, true},
		{RoleAdmin, OpAddDiagnosis, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.IsPermitted(tt.role, tt.operation),
			"%s / %s", tt.role, tt.operation)
	}
}

func TestDefaultDeny(t *testing.T) {
	d := DefaultPolicy()

	// Unknown operations and unknown roles are both denied outright.
	assert.False(t, d.IsPermitted(RoleDoctor, "DropTable"))
	assert.False(t, d.IsPermitted(Role("owner"), OpAddAppointment))
	assert.False(t, New().IsPermitted(RoleDoctor, OpAddAppointment))
}

func TestResolveRole(t *testing.T) {
	d := DefaultPolicy()
	require.NoError(t, d.RegisterPrincipal("D1001", RoleDoctor))

	role, err := d.ResolveRole("D1001")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, role)

	_, err = d.ResolveRole("ghost")
	assert.ErrorIs(t, err, cverr.ErrUnknownPrincipal)
}

func TestRegisterPrincipalUnknownRole(t *testing.T) {
	d := DefaultPolicy()
	err := d.RegisterPrincipal("X1", Role("janitor"))
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	policy := `
roles:
  doctor:
    - AddDiagnosis
    - ListDiagnosesForClinicians
  patient:
    - ListOwnDiagnoses
principals:
  D1001: doctor
  P3001: patient
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	d, err := LoadPolicy(path)
	require.NoError(t, err)

	role, err := d.ResolveRole("D1001")
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, role)

	assert.True(t, d.IsPermitted(RoleDoctor, OpAddDiagnosis))
	// The loaded mapping replaces the defaults entirely.
	assert.False(t, d.IsPermitted(RoleDoctor, OpAddAppointment))
	assert.False(t, d.IsPermitted(RoleNurse, OpAddAppointment))
}

func TestLoadPolicyBadPrincipal(t *testing.T) {
	policy := `
roles:
  doctor: [AddDiagnosis]
principals:
  X9: surgeon
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
