package clinicvault

import (
	"time"

	"github.com/hengadev/clinicvault/internal/capability"
)

// Role is a named trust class; every principal carries exactly one.
type Role = capability.Role

const (
	RoleDoctor  = capability.RoleDoctor
	RoleNurse   = capability.RoleNurse
	RolePatient = capability.RolePatient
	RoleAdmin   = capability.RoleAdmin
)

// Appointment is the caller-visible view of an appointment entity. The
// diagnosis itself is never part of this view; it is only reachable through
// the diagnosis read operations, which decrypt inside a key session.
type Appointment struct {
	ID           string
	PatientID    string
	DoctorID     string
	ScheduledAt  time.Time
	HasDiagnosis bool
	CreatedAt    time.Time
}

// DiagnosisRecord is one decrypted diagnosis row returned by the read
// operations. Diagnosis holds plaintext that exists only for the duration of
// the call; it is never persisted in this form.
type DiagnosisRecord struct {
	AppointmentID string
	PatientID     string
	DoctorID      string
	ScheduledAt   time.Time
	Diagnosis     string
}
