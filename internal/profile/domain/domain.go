// Package domain holds profile directory types shared across the gateway.
package domain

// MediumEmail is the third-party identifier medium used for invite
// notifications.
const MediumEmail = "email"

// ThreePid is an out-of-protocol contact address bound to a Matrix user.
type ThreePid struct {
	Medium  string
	Address string
}

// IsEmail reports whether the identifier is an email address.
func (t ThreePid) IsEmail() bool { return t.Medium == MediumEmail }
