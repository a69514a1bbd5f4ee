package clinicvault

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hengadev/clinicvault/internal/capability"
	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/store"
)

// AddStaff creates a care staff record and opens its first version. Staff
// records carry no protected fields.
func (g *Gateway) AddStaff(ctx context.Context, principal, staffID, fullName, jobTitle string) error {
	if _, err := g.authorize(principal, capability.OpAddStaff); err != nil {
		return err
	}
	if staffID == "" || fullName == "" {
		return cverr.NewValidationError("staff id and full name are required")
	}

	now := g.now()
	return g.store.WithTx(ctx, func(tx *sql.Tx) error {
		exists, err := store.StaffExists(ctx, tx, staffID)
		if err != nil {
			return err
		}
		if exists {
			return cverr.NewValidationError(fmt.Sprintf("staff '%s' already exists", staffID))
		}
		row := store.StaffRow{ID: staffID, FullName: fullName, JobTitle: jobTitle, CreatedAt: now}
		if err := store.InsertStaff(ctx, tx, row); err != nil {
			return err
		}
		return store.OpenVersion(ctx, tx, store.EntityStaff, staffID, map[string]any{
			"full_name": fullName,
			"job_title": jobTitle,
		}, principal, now)
	})
}

// AddPatient creates a patient record. The full name is a protected field:
// it is encrypted inside a scoped key session and only the ciphertext is
// persisted, in the entity row and in its version history alike.
func (g *Gateway) AddPatient(ctx context.Context, principal, patientID, fullName string) error {
	if _, err := g.authorize(principal, capability.OpAddPatient); err != nil {
		return err
	}
	if patientID == "" || fullName == "" {
		return cverr.NewValidationError("patient id and full name are required")
	}

	session, err := g.keys.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer session.Discard()

	nameCipher, err := session.Encrypt(fullName)
	if err != nil {
		return err
	}

	now := g.now()
	return g.store.WithTx(ctx, func(tx *sql.Tx) error {
		exists, err := store.PatientExists(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if exists {
			return cverr.NewValidationError(fmt.Sprintf("patient '%s' already exists", patientID))
		}
		row := store.PatientRow{ID: patientID, FullNameCipher: nameCipher, CreatedAt: now}
		if err := store.InsertPatient(ctx, tx, row); err != nil {
			return err
		}
		return store.OpenVersion(ctx, tx, store.EntityPatient, patientID, map[string]any{
			"full_name_cipher": nameCipher,
		}, principal, now)
	})
}
