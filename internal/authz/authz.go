// Package authz implements role-scoped visibility and ownership rules for
// every resource family. All permission decisions live here; handlers only
// call DeriveFilter, CheckRecord and CheckWrite.
package authz

import "errors"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOperator  Role = "operator"
	RoleClient    Role = "client"
	RoleDriver    Role = "driver"
	RolePassenger Role = "passenger"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleAdmin, RoleOperator, RoleClient, RoleDriver, RolePassenger:
		return true
	}
	return false
}

// CompanyScoped reports whether the role is restricted to a single company's
// records.
func (r Role) CompanyScoped() bool { return r == RoleClient || r == RoleOperator }

// Identity is the authenticated caller. It is resolved fresh on every request
// and never cached across requests.
type Identity struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CompanyID string
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Authentication and authorization failures. The API layer maps the first
// three to 401 and the rest to 403.
var (
	ErrMissingCredential = errors.New("missing or malformed credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnknownPrincipal  = errors.New("unknown principal")
	ErrInsufficientRole  = errors.New("insufficient role")
	ErrUnaffiliated      = errors.New("identity has no company affiliation")
	ErrForbidden         = errors.New("forbidden")
)
