package clinicvault

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the configuration for creating a Gateway.
//
// This struct contains only data, no behavior. Configuration can be loaded
// from any source (environment variables, files, code) and passed explicitly
// to New.
type Config struct {
	// DBPath is the directory where the database is stored.
	// Optional. Default: .clinicvault
	DBPath string `yaml:"db_path"`

	// DBFilename is the database filename.
	// Optional. Default: clinic.db
	DBFilename string `yaml:"db_filename"`

	// PolicyPath points to a YAML role/principal policy file. When empty the
	// built-in default policy is used. Applying a policy is a structural
	// change and is recorded in the audit ledger.
	PolicyPath string `yaml:"policy_path"`

	// BackupDir is where local backup artifacts are written when no other
	// artifact store is configured.
	// Optional. Default: <DBPath>/backups
	BackupDir string `yaml:"backup_dir"`

	// Host and AppName identify this process in connection audit entries.
	// Optional. Defaults: os.Hostname() and "clinicvault".
	Host    string `yaml:"host"`
	AppName string `yaml:"app_name"`
}

// Validate checks the configuration and applies defaults for optional fields.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		c.DBPath = ".clinicvault"
	}
	if c.DBFilename == "" {
		c.DBFilename = "clinic.db"
	}
	if filepath.Base(c.DBFilename) != c.DBFilename {
		return fmt.Errorf("DBFilename must be a bare filename, got %q", c.DBFilename)
	}
	if c.BackupDir == "" {
		c.BackupDir = filepath.Join(c.DBPath, "backups")
	}
	if c.AppName == "" {
		c.AppName = "clinicvault"
	}
	if c.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		c.Host = host
	}
	if c.PolicyPath != "" {
		if _, err := os.Stat(c.PolicyPath); err != nil {
			return fmt.Errorf("policy file %q is not readable: %w", c.PolicyPath, err)
		}
	}
	return nil
}

// databaseFile returns the full path of the database file, creating the
// directory if needed.
func (c *Config) databaseFile() (string, error) {
	if err := os.MkdirAll(c.DBPath, 0o700); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return filepath.Join(c.DBPath, c.DBFilename), nil
}
