package session

import "errors"

var (
	// ErrPasswordNotFound means no credential exists yet for this install.
	// Recoverable: proceed to fresh PIN setup.
	ErrPasswordNotFound = errors.New("password not found")

	// ErrMigrationNotPossible means the stored credential blob cannot be
	// decoded at all. Fatal to the current identity: the caller must perform
	// a destructive reset before any further auth attempt.
	ErrMigrationNotPossible = errors.New("credential migration not possible")

	// ErrNotMigrated means the blob decoded but carries an outdated or
	// incomplete credential. Recoverable: the session is marked corrupted and
	// the user may proceed in a degraded mode.
	ErrNotMigrated = errors.New("credential not migrated")

	// ErrPinMismatch is a rejected PIN candidate.
	ErrPinMismatch = errors.New("pin mismatch")

	// ErrPinBanned means PIN entry is locked out until the ban window elapses.
	ErrPinBanned = errors.New("pin entry banned")
)
