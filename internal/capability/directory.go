package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hengadev/clinicvault/internal/cverr"
)

// Role is a named trust class. Every principal carries exactly one.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RoleNurse   Role = "nurse"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Gateway operation names. Roles are granted operations, never storage:
// no capability exists that reaches a table directly.
const (
	OpAddStaff                   = "AddStaff"
	OpAddPatient                 = "AddPatient"
	OpAddAppointment             = "AddAppointment"
	OpCancelAppointment          = "CancelAppointment"
	OpAddDiagnosis               = "AddDiagnosis"
	OpListDiagnosesForClinicians = "ListDiagnosesForClinicians"
	OpListOwnDiagnoses           = "ListOwnDiagnoses"
	OpRunFullBackup              = "RunFullBackup"
	OpRotateFieldKey             = "RotateFieldKey"
)

// Directory maps principals to roles and roles to their permitted
// operations. It is the single decision point for "may this caller do X";
// anything not explicitly granted is denied.
type Directory struct {
	grants     map[Role]map[string]struct{}
	principals map[string]Role
}

// New returns an empty directory: no roles, no grants, everything denied.
func New() *Directory {
	return &Directory{
		grants:     make(map[Role]map[string]struct{}),
		principals: make(map[string]Role),
	}
}

// DefaultPolicy returns the deployment's standard role grants.
func DefaultPolicy() *Directory {
	d := New()
	d.Grant(RoleDoctor, OpAddAppointment, OpCancelAppointment, OpAddDiagnosis, OpListDiagnosesForClinicians)
	d.Grant(RoleNurse, OpAddAppointment, OpCancelAppointment, OpListDiagnosesForClinicians)
	d.Grant(RolePatient, OpListOwnDiagnoses)
	d.Grant(RoleAdmin, OpAddStaff, OpAddPatient, OpRunFullBackup, OpRotateFieldKey)
	return d
}

// Grant adds operations to a role's permitted set.
func (d *Directory) Grant(role Role, operations ...string) {
	set, ok := d.grants[role]
	if !ok {
		set = make(map[string]struct{})
		d.grants[role] = set
	}
	for _, op := range operations {
		set[op] = struct{}{}
	}
}

// RegisterPrincipal binds a principal ID to a role. The role must already
// carry grants; binding to an unknown role is a provisioning error.
func (d *Directory) RegisterPrincipal(principalID string, role Role) error {
	if _, ok := d.grants[role]; !ok {
		return fmt.Errorf("cannot register principal '%s': role '%s' has no grants", principalID, role)
	}
	d.principals[principalID] = role
	return nil
}

// ResolveRole returns the role bound to a principal.
func (d *Directory) ResolveRole(principalID string) (Role, error) {
	role, ok := d.principals[principalID]
	if !ok {
		return "", cverr.NewUnknownPrincipalError(principalID)
	}
	return role, nil
}

// IsPermitted reports whether a role may invoke the named operation.
// Default-deny: unknown roles and unlisted operations are both rejected.
func (d *Directory) IsPermitted(role Role, operation string) bool {
	set, ok := d.grants[role]
	if !ok {
		return false
	}
	_, ok = set[operation]
	return ok
}

// policyFile is the on-disk policy layout.
type policyFile struct {
	Roles      map[string][]string `yaml:"roles"`
	Principals map[string]string   `yaml:"principals"`
}

// LoadPolicy reads a role/principal policy from a YAML file. The loaded
// mapping fully replaces the defaults; a policy change is a structural
// change and is audited by the caller applying it.
func LoadPolicy(path string) (*Directory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	d := New()
	for role, ops := range pf.Roles {
		d.Grant(Role(role), ops...)
	}
	for id, role := range pf.Principals {
		if err := d.RegisterPrincipal(id, Role(role)); err != nil {
			return nil, err
		}
	}
	return d, nil
}
