/*
Package access is the access policy gate.

PURPOSE:
  Decides who may call what. A request carries a session token; the token
  resolves to a Principal; each route names the roles it admits.

FLOW:
  login:    Admins.Authenticate -> Tokens.Issue -> cookie "login"
  request:  cookie/bearer -> Tokens.Parse -> Principal -> Authorize(roles)

ERRORS:
  ErrUnauthenticated  no token, bad signature, expired (HTTP 401)
  ErrForbidden        valid principal, role not admitted (HTTP 403)

SEE ALSO:
  - api/middleware.go: authenticate / requireRoles
*/
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/library-engine/library"
)

var (
	// ErrUnauthenticated is returned when no valid credential is presented.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the principal's role is not admitted.
	ErrForbidden = errors.New("you are not authorized to access this resource")
)

// Principal is the authenticated caller.
type Principal struct {
	AdminID string
	Email   string
	Role    library.Role
}

// Role sets used by the router.
var (
	Staff      = []library.Role{library.RoleLibrarian, library.RoleSuperAdmin, library.RoleManager}
	Management = []library.Role{library.RoleSuperAdmin, library.RoleManager}
	Desk       = []library.Role{library.RoleLibrarian, library.RoleSuperAdmin}
	Librarians = []library.Role{library.RoleLibrarian}
	SuperAdmin = []library.Role{library.RoleSuperAdmin}
)

// Authorize admits p if its role is in allowed. An empty set admits any
// authenticated principal.
func Authorize(p Principal, allowed ...library.Role) error {
	if p.AdminID == "" {
		return ErrUnauthenticated
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, role := range allowed {
		if p.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q", ErrForbidden, p.Role)
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
