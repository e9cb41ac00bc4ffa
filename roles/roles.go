// Package roles defines the closed set of roles carried by access
// credentials and checked by the authorization gate.
package roles

import "github.com/rs/zerolog/log"

// Role is a closed enumeration. Membership tests only; no ordering.
type Role string

const (
	Administrator Role = "Administrator"
	User          Role = "User"
	NonPrivileged Role = "NonPrivileged"
)

func (r Role) String() string {
	return string(r)
}

// Parse maps a stored role string to a Role. Unknown values fall back to
// NonPrivileged rather than failing, so rows written by older builds keep
// working; the fallback is logged because it usually means a typo in data.
func Parse(s string) Role {
	switch s {
	case "Administrator":
		return Administrator
	case "User":
		return User
	case "NonPrivileged":
		return NonPrivileged
	default:
		log.Warn().Str("role", s).Msg("unknown role string, falling back to NonPrivileged")
		return NonPrivileged
	}
}
