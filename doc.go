// Package clinicvault protects sensitive clinical records in a shared store
// accessed by role classes with conflicting trust levels.
//
// No caller ever touches a table: the Gateway is the only operation surface,
// and every operation passes the capability directory before doing anything.
// Protected fields (patient identities, diagnosis content) are stored as
// ciphertext under a four-layer key hierarchy (root passphrase, master
// secret, asymmetric identity, symmetric field key) and are only decrypted
// inside a scoped key session that is closed on every exit path. Schema
// changes and connection events land in an append-only audit ledger that the
// storage layer itself refuses to modify. Every entity mutation closes the
// current version and opens a new interval-tagged one, so any past state is
// reconstructable. Backups bundle a consistency-checked data snapshot with
// the key exports needed to decrypt it, wrapped under their own passphrase.
//
// Typical usage:
//
//	gw, err := clinicvault.New(ctx, cfg, rootPassphrase)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	appt, err := gw.AddAppointment(ctx, "N2001", "P3001", "D1001", when)
//	err = gw.AddDiagnosis(ctx, "D1001", appt.ID, "D1001", "Fracture")
//	records, err := gw.ListDiagnosesForClinicians(ctx, "D1001")
package clinicvault
