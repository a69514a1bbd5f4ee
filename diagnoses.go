package clinicvault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hengadev/errsx"

	"github.com/hengadev/clinicvault/internal/capability"
	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/store"
)

// AddDiagnosis records a diagnosis on an appointment. The payload is
// encrypted inside a scoped key session before the transaction begins, so a
// failed encryption leaves no trace; the write then updates the protected
// field and supersedes the appointment's open version atomically.
func (g *Gateway) AddDiagnosis(ctx context.Context, principal, appointmentID, doctorID, diagnosisText string) error {
	if _, err := g.authorize(principal, capability.OpAddDiagnosis); err != nil {
		return err
	}
	if diagnosisText == "" {
		return cverr.NewValidationError("diagnosis text must not be empty")
	}

	session, err := g.keys.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer session.Discard()

	diagnosisCipher, err := session.Encrypt(diagnosisText)
	if err != nil {
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
		if appt.DoctorID != doctorID {
			return cverr.NewValidationError(
				fmt.Sprintf("appointment '%s' is not assigned to doctor '%s'", appointmentID, doctorID))
		}

		if err := store.UpdateAppointmentDiagnosis(ctx, tx, appointmentID, diagnosisCipher); err != nil {
			return err
		}
		appt.DiagnosisCipher = diagnosisCipher
		return store.Supersede(ctx, tx, store.EntityAppointment, appointmentID, appointmentAttrs(appt), principal, now)
	})
}

// ListDiagnosesForClinicians returns every recorded diagnosis, decrypted.
// Clinician-wide scope: the whole record set, not filtered per caller.
func (g *Gateway) ListDiagnosesForClinicians(ctx context.Context, principal string) ([]DiagnosisRecord, error) {
	if _, err := g.authorize(principal, capability.OpListDiagnosesForClinicians); err != nil {
		return nil, err
	}

	rows, err := store.ListAppointmentsWithDiagnoses(ctx, g.store.DB())
	if err != nil {
		return nil, err
	}
	return g.decryptRecords(ctx, rows)
}

// ListOwnDiagnoses returns the calling patient's own diagnoses, decrypted.
// The scope filter is applied here from the authenticated principal; the
// caller supplies no identifier and cannot widen the result set.
func (g *Gateway) ListOwnDiagnoses(ctx context.Context, principal string) ([]DiagnosisRecord, error) {
	if _, err := g.authorize(principal, capability.OpListOwnDiagnoses); err != nil {
		return nil, err
	}

	rows, err := store.ListAppointmentsByPatient(ctx, g.store.DB(), principal)
	if err != nil {
		return nil, err
	}
	return g.decryptRecords(ctx, rows)
}

// decryptRecords opens one key session for the whole result scope and
// decrypts each row inside it. Per-row failures are collected; any failure
// fails the read rather than returning a partial, silently truncated set.
func (g *Gateway) decryptRecords(ctx context.Context, rows []store.AppointmentRow) ([]DiagnosisRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	session, err := g.keys.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Discard()

	records := make([]DiagnosisRecord, 0, len(rows))
	errs := make(errsx.Map)
	for _, row := range rows {
		plaintext, err := session.Decrypt(row.DiagnosisCipher)
		if err != nil {
			errs.Set("appointment "+row.ID, err)
			continue
		}
		records = append(records, DiagnosisRecord{
			AppointmentID: row.ID,
			PatientID:     row.PatientID,
			DoctorID:      row.DoctorID,
			ScheduledAt:   row.ScheduledAt,
			Diagnosis:     plaintext,
		})
	}
	if !errs.IsEmpty() {
		return nil, fmt.Errorf("failed to decrypt diagnosis records: %w", errs.AsError())
	}
	return records, nil
}
