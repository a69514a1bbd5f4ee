package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hengadev/clinicvault/internal/cverr"
)

// Entity type tags used in the version ledger.
const (
	EntityStaff       = "staff"
	EntityPatient     = "patient"
	EntityAppointment = "appointment"
)

// StaffRow is a care staff record. Staff carry no protected fields.
type StaffRow struct {
	ID        string
	FullName  string
	JobTitle  string
	CreatedAt time.Time
}

// PatientRow is a patient record; the full name is a protected field and is
// only ever stored as ciphertext.
type PatientRow struct {
	ID             string
	FullNameCipher string
	CreatedAt      time.Time
}

// AppointmentRow is an appointment record; the diagnosis is a protected
// field, empty string when no diagnosis has been recorded.
type AppointmentRow struct {
	ID              string
	PatientID       string
	DoctorID        string
	ScheduledAt     time.Time
	DiagnosisCipher string
	CreatedAt       time.Time
}

func InsertStaff(ctx context.Context, q querier, row StaffRow) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO staff (id, full_name, job_title, created_at) VALUES (?, ?, ?, ?)`,
		row.ID, row.FullName, row.JobTitle, row.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert staff record: %w", err)
	}
	return nil
}

func StaffExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM staff WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up staff record: %w", err)
	}
	return true, nil
}

func InsertPatient(ctx context.Context, q querier, row PatientRow) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO patients (id, full_name_cipher, created_at) VALUES (?, ?, ?)`,
		row.ID, row.FullNameCipher, row.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert patient record: %w", err)
	}
	return nil
}

func PatientExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM patients WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up patient record: %w", err)
	}
	return true, nil
}

// ListPatients returns every patient row, for key rotation re-encryption.
func ListPatients(ctx context.Context, q querier) ([]PatientRow, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, full_name_cipher, created_at FROM patients ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	var patients []PatientRow
	for rows.Next() {
		var p PatientRow
		var created int64
		if err := rows.Scan(&p.ID, &p.FullNameCipher, &created); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		p.CreatedAt = time.Unix(0, created).UTC()
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// UpdatePatientName replaces the protected full name ciphertext.
func UpdatePatientName(ctx context.Context, q querier, id, fullNameCipher string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE patients SET full_name_cipher = ? WHERE id = ?`, fullNameCipher, id)
	if err != nil {
		return fmt.Errorf("failed to update patient name: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update patient name: %w", err)
	}
	if affected == 0 {
		return cverr.NewNotFoundError("patient", id)
	}
	return nil
}

func InsertAppointment(ctx context.Context, q querier, row AppointmentRow) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, diagnosis_cipher, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID, row.PatientID, row.DoctorID, row.ScheduledAt.UTC().UnixNano(),
		row.DiagnosisCipher, row.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert appointment record: %w", err)
	}
	return nil
}

func GetAppointment(ctx context.Context, q querier, id string) (*AppointmentRow, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, patient_id, doctor_id, scheduled_at, diagnosis_cipher, created_at
		 FROM appointments WHERE id = ?`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cverr.NewNotFoundError("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment: %w", err)
	}
	return appt, nil
}

// UpdateAppointmentDiagnosis replaces the protected diagnosis ciphertext.
func UpdateAppointmentDiagnosis(ctx context.Context, q querier, id, diagnosisCipher string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE appointments SET diagnosis_cipher = ? WHERE id = ?`, diagnosisCipher, id)
	if err != nil {
		return fmt.Errorf("failed to update diagnosis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update diagnosis: %w", err)
	}
	if affected == 0 {
		return cverr.NewNotFoundError("appointment", id)
	}
	return nil
}

// DeleteAppointment removes the appointment row. The mutation guard must
// have approved the delete before this is called; version history stays.
func DeleteAppointment(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	if affected == 0 {
		return cverr.NewNotFoundError("appointment", id)
	}
	return nil
}

// ListAppointmentsWithDiagnoses returns every appointment carrying a
// non-empty diagnosis ciphertext, for the clinician-wide read and rotation.
func ListAppointmentsWithDiagnoses(ctx context.Context, q querier) ([]AppointmentRow, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, patient_id, doctor_id, scheduled_at, diagnosis_cipher, created_at
		 FROM appointments WHERE diagnosis_cipher <> '' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// ListAppointmentsByPatient returns the appointments with diagnoses for a
// single patient, for the patient-self read.
func ListAppointmentsByPatient(ctx context.Context, q querier, patientID string) ([]AppointmentRow, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, patient_id, doctor_id, scheduled_at, diagnosis_cipher, created_at
		 FROM appointments WHERE patient_id = ? AND diagnosis_cipher <> '' ORDER BY created_at`,
		patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments for patient: %w", err)
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows *sql.Rows) ([]AppointmentRow, error) {
	var appts []AppointmentRow
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

func scanAppointment(row rowScanner) (*AppointmentRow, error) {
	var appt AppointmentRow
	var scheduled, created int64
	err := row.Scan(&appt.ID, &appt.PatientID, &appt.DoctorID, &scheduled, &appt.DiagnosisCipher, &created)
	if err != nil {
		return nil, err
	}
	appt.ScheduledAt = time.Unix(0, scheduled).UTC()
	appt.CreatedAt = time.Unix(0, created).UTC()
	return &appt, nil
}
