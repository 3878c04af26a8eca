package domain

import (
	"fmt"
	"strings"
)

// Address is a chain account identifier. Identity is case-insensitive, so the
// canonical form is lower case and conversion happens at construction — two
// casings of the same account can never end up as distinct map keys.
type Address string

// NewAddress canonicalizes a raw address string.
func NewAddress(raw string) Address {
	return Address(strings.ToLower(strings.TrimSpace(raw)))
}

// ParseAddress validates and canonicalizes a raw address string.
func ParseAddress(raw string) (Address, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return "", fmt.Errorf("invalid address %q", raw)
	}
	for _, c := range s[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("invalid address %q", raw)
		}
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}

// Equals compares two raw address strings case-insensitively.
func (a Address) Equals(other string) bool {
	return a == NewAddress(other)
}
