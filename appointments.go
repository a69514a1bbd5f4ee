package clinicvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hengadev/clinicvault/internal/capability"
	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/guard"
	"github.com/hengadev/clinicvault/internal/store"
)

// AddAppointment creates an appointment for an existing patient with an
// existing doctor and opens the entity's first version, stamped with the
// acting principal and time.
func (g *Gateway) AddAppointment(ctx context.Context, principal, patientID, doctorID string, when time.Time) (*Appointment, error) {
	if _, err := g.authorize(principal, capability.OpAddAppointment); err != nil {
		return nil, err
	}

	now := g.now()
	appt := &Appointment{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: when.UTC(),
		CreatedAt:   now.UTC(),
	}

	err := g.store.WithTx(ctx, func(tx *sql.Tx) error {
		exists, err := store.PatientExists(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if !exists {
			return cverr.NewValidationError(fmt.Sprintf("patient '%s' does not exist", patientID))
		}
		exists, err = store.StaffExists(ctx, tx, doctorID)
		if err != nil {
			return err
		}
		if !exists {
			return cverr.NewValidationError(fmt.Sprintf("doctor '%s' does not exist", doctorID))
		}

		row := store.AppointmentRow{
			ID:          appt.ID,
			PatientID:   patientID,
			DoctorID:    doctorID,
			ScheduledAt: appt.ScheduledAt,
			CreatedAt:   now,
		}
		if err := store.InsertAppointment(ctx, tx, row); err != nil {
			return err
		}
		return store.OpenVersion(ctx, tx, store.EntityAppointment, appt.ID, appointmentAttrs(&row), principal, now)
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// CancelAppointment deletes an appointment, provided the mutation guard
// approves: an appointment carrying a recorded diagnosis is retained and the
// call fails with a security violation, whatever the caller's role. The
// version history keeps the closed intervals either way.
func (g *Gateway) CancelAppointment(ctx context.Context, principal, appointmentID string) error {
	if _, err := g.authorize(principal, capability.OpCancelAppointment); err != nil {
		return err
	}

	now := g.now()
	return g.store.WithTx(ctx, func(tx *sql.Tx) error {
		appt, err := store.GetAppointment(ctx, tx, appointmentID)
		if errors.Is(err, cverr.ErrNotFound) {
			return cverr.NewValidationError(fmt.Sprintf("appointment '%s' does not exist", appointmentID))
		}
		if err != nil {
			return err
		}
		if err := guard.ApproveDelete(appt); err != nil {
			return err
		}
		if err := store.DeleteAppointment(ctx, tx, appointmentID); err != nil {
			return err
		}
		return store.CloseCurrent(ctx, tx, store.EntityAppointment, appointmentID, now)
	})
}

// appointmentAttrs is the version-ledger snapshot of an appointment. The
// diagnosis appears only in its ciphertext form.
func appointmentAttrs(row *store.AppointmentRow) map[string]any {
	return map[string]any{
		"patient_id":       row.PatientID,
		"doctor_id":        row.DoctorID,
		"scheduled_at":     row.ScheduledAt.UTC().Format(time.RFC3339Nano),
		"diagnosis_cipher": row.DiagnosisCipher,
	}
}
