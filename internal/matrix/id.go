package matrix

import (
	"fmt"
	"strings"
)

// UserIDSigil prefixes every Matrix user identifier.
const UserIDSigil = '@'

// UserID is a parsed Matrix user identifier of the form @localpart:domain.
type UserID struct {
	Localpart string
	Domain    string
}

// ParseUserID splits a raw identifier into its localpart and domain.
// IDs have the format SIGIL LOCALPART ":" DOMAIN; the split happens on the
// first ":" because the domain may itself contain ":" (host:port).
func ParseUserID(raw string) (UserID, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != UserIDSigil {
		return UserID{}, fmt.Errorf("invalid user ID %q: missing %q sigil", raw, UserIDSigil)
	}
	parts := strings.SplitN(raw[1:], ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return UserID{}, fmt.Errorf("invalid user ID %q: expected @localpart:domain", raw)
	}
	return UserID{Localpart: parts[0], Domain: parts[1]}, nil
}

// String reassembles the canonical @localpart:domain form.
func (u UserID) String() string {
	return string(UserIDSigil) + u.Localpart + ":" + u.Domain
}
