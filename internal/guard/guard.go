// Package guard enforces entity-level mutation invariants at write time,
// independent of role permissions: an operation a role is perfectly entitled
// to invoke can still be blocked here.
package guard

import (
	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/store"
)

// CheckDeletable reports whether an appointment may be deleted. Deletion is
// blocked whenever the protected diagnosis field is non-empty, regardless of
// who asks: clinically significant content is never discarded.
func CheckDeletable(appt *store.AppointmentRow) bool {
	return appt.DiagnosisCipher == ""
}

// ApproveDelete returns a security violation error when the appointment
// carries a diagnosis, nil otherwise.
func ApproveDelete(appt *store.AppointmentRow) error {
	if !CheckDeletable(appt) {
		return cverr.NewSecurityViolationError(
			"appointment '" + appt.ID + "' carries a recorded diagnosis and cannot be deleted")
	}
	return nil
}
