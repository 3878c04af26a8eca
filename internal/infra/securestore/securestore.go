// Package securestore holds the opaque encrypted credential blob, keyed by a
// stable per-install user identifier. The blob's contents are understood only
// by the session manager; this layer never inspects it.
package securestore

import "errors"

// ErrNotFound is returned when no blob exists for the given user.
var ErrNotFound = errors.New("credential not found")

// Accessibility mirrors the OS keychain accessibility policy a credential is
// written with.
type Accessibility string

const (
	// AccessibleWhenUnlocked restricts reads to an unlocked device.
	AccessibleWhenUnlocked Accessibility = "when-unlocked"
)

// Store is the secure credential store port.
type Store interface {
	// Get returns the blob for the user, or ErrNotFound.
	Get(user string) ([]byte, error)

	// Set writes the blob for the user with the given accessibility policy.
	Set(user string, blob []byte, access Accessibility) error

	// Delete removes the user's blob. Deleting a missing blob is not an error.
	Delete(user string) error
}
