package domain

import "time"

// Session is the process-lifetime authentication state. It is created
// unauthenticated at startup and mutated only by the session manager.
type Session struct {
	Authenticated       bool
	BiometryEnabled     bool
	PinAttempts         int
	PinBannedUntil      time.Time
	LastActivity        time.Time
	CredentialCorrupted bool
}

// Banned reports whether PIN entry is locked out at the given instant.
func (s *Session) Banned(now time.Time) bool {
	return !s.PinBannedUntil.IsZero() && now.Before(s.PinBannedUntil)
}

// CanEnter is the lockout gate for PIN comparison.
func (s *Session) CanEnter(now time.Time) bool {
	return !s.Banned(now)
}
