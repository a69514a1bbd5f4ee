package clinicvault

import "github.com/hengadev/clinicvault/internal/cverr"

// Error taxonomy. Every failure aborts the enclosing unit of work and rolls
// back fully; no partial writes are observable after any of these.
var (
	// ErrPermissionDenied: the caller's role lacks the capability. No side
	// effects were performed.
	ErrPermissionDenied = cverr.ErrPermissionDenied

	// ErrUnknownPrincipal: the caller is not a provisioned principal.
	ErrUnknownPrincipal = cverr.ErrUnknownPrincipal

	// ErrValidation: a referential precondition was unmet, e.g. an unknown
	// patient referenced by a new appointment.
	ErrValidation = cverr.ErrValidation

	// ErrNotFound: the requested entity or version does not exist.
	ErrNotFound = cverr.ErrNotFound

	// ErrSecurityViolation: an entity-level invariant blocked an otherwise
	// permitted mutation, e.g. deleting an appointment with a diagnosis.
	ErrSecurityViolation = cverr.ErrSecurityViolation

	// ErrKeyState: key session misuse, such as use after close, double close, or
	// decryption of ciphertext this hierarchy never produced.
	ErrKeyState = cverr.ErrKeyState

	// ErrIntegrity: a backup precondition failed before any snapshot was taken.
	ErrIntegrity = cverr.ErrIntegrity
)

// IsAccessError returns true if the error represents an access control rejection.
func IsAccessError(err error) bool { return cverr.IsAccessError(err) }

// IsInvariantError returns true if the error represents a blocked mutation.
func IsInvariantError(err error) bool { return cverr.IsInvariantError(err) }

// IsKeyError returns true if the error represents key session misuse.
func IsKeyError(err error) bool { return cverr.IsKeyError(err) }
