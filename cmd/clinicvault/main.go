// Demo wiring for the clinicvault gateway: provisions a doctor, a nurse and
// a patient, records a diagnosis and reads it back in both scopes, then runs
// a full backup. Secrets come from the environment (or a .env file):
// CLINICVAULT_ROOT_PASSPHRASE and CLINICVAULT_BACKUP_PASSPHRASE.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/hengadev/clinicvault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	var cfg clinicvault.Config
	flag.StringVar(&cfg.DBPath, "db-path", "", "database directory (default .clinicvault)")
	flag.StringVar(&cfg.PolicyPath, "policy", "", "YAML capability policy file (default built-in)")
	flag.StringVar(&cfg.BackupDir, "backup-dir", "", "backup artifact directory")
	withBackup := flag.Bool("backup", false, "run a full backup after the demo operations")
	flag.Parse()

	rootPass := os.Getenv("CLINICVAULT_ROOT_PASSPHRASE")
	if rootPass == "" {
		log.Fatal("CLINICVAULT_ROOT_PASSPHRASE is required")
	}

	ctx := context.Background()
	gw, err := clinicvault.New(ctx, cfg, []byte(rootPass))
	if err != nil {
		log.Fatalf("failed to open gateway: %v", err)
	}
	defer gw.Close()

	if err := run(ctx, gw, *withBackup); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
}

func run(ctx context.Context, gw *clinicvault.Gateway, withBackup bool) error {
	principals := map[string]clinicvault.Role{
		"admin": clinicvault.RoleAdmin,
		"D1001": clinicvault.RoleDoctor,
		"N2001": clinicvault.RoleNurse,
		"P3001": clinicvault.RolePatient,
	}
	for id, role := range principals {
		if err := gw.RegisterPrincipal(id, role); err != nil {
			return err
		}
	}

	if err := gw.AddStaff(ctx, "admin", "D1001", "Gregory Pratt", "orthopedics"); err != nil {
		return err
	}
	if err := gw.AddPatient(ctx, "admin", "P3001", "Maria Keller"); err != nil {
		return err
	}

	appt, err := gw.AddAppointment(ctx, "N2001", "P3001", "D1001", time.Now().Add(48*time.Hour))
	if err != nil {
		return err
	}
	fmt.Printf("appointment %s scheduled\n", appt.ID)

	if err := gw.AddDiagnosis(ctx, "D1001", appt.ID, "D1001", "Fracture"); err != nil {
		return err
	}

	records, err := gw.ListDiagnosesForClinicians(ctx, "D1001")
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("clinician view: appointment %s patient %s: %s\n", r.AppointmentID, r.PatientID, r.Diagnosis)
	}

	own, err := gw.ListOwnDiagnoses(ctx, "P3001")
	if err != nil {
		return err
	}
	for _, r := range own {
		fmt.Printf("patient view: appointment %s: %s\n", r.AppointmentID, r.Diagnosis)
	}

	if withBackup {
		backupPass := os.Getenv("CLINICVAULT_BACKUP_PASSPHRASE")
		if backupPass == "" {
			return fmt.Errorf("CLINICVAULT_BACKUP_PASSPHRASE is required for -backup")
		}
		artifact, err := gw.RunFullBackup(ctx, "admin", []byte(backupPass))
		if err != nil {
			return err
		}
		fmt.Printf("backup %s written (%d objects)\n", artifact.ID, len(artifact.Objects))
	}
	return nil
}
