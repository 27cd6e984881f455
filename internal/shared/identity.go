package shared

import "strings"

// Identity describes the authenticated caller as carried by its bearer token.
// The role claim reflects token-issuance time and is not re-resolved against
// storage on each request.
type Identity struct {
	UserID            string
	Role              string
	CustomPermissions []string
}

// HasRole reports whether the identity carries the given role name.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	return strings.EqualFold(id.Role, role)
}
