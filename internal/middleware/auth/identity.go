package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const RolePrefix = "ROLE_"

const identityKey = "auth.identity"

// Identity is the authenticated caller attached by the gate.
type Identity struct {
	Subject string
	Roles   []string
}

func (id Identity) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range id.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

func setIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
}

// NormalizeRoles trims names, adds the ROLE_ prefix where missing and drops
// blanks and duplicates. Order of first appearance is kept.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || r == RolePrefix {
			continue
		}
		if !strings.HasPrefix(r, RolePrefix) {
			r = RolePrefix + r
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
