package simplelisting

import "errors"

// Authorization paths recorded on an allowed Decision.
const (
	AllowedByOwner = "owner"
	AllowedByRole  = "role"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Path    string
}

// Guard decides whether a principal may mutate a document.
type Guard struct {
	roles []string
}

// NewGuard creates a guard that lets holders of roles mutate any document.
func NewGuard(roles ...string) *Guard {
	return &Guard{roles: roles}
}

// Authorize allows the document's owner and any holder of the guard's roles.
// Missing owner or principal ids are integrity failures reported as
// ErrInternal, not ErrForbidden.
func (g *Guard) Authorize(principal *Principal, doc *Document) (Decision, error) {
	if principal == nil {
		return Decision{}, ErrUnauthorized
	}
	if doc == nil || doc.Owner == "" {
		return Decision{}, errors.Join(ErrInternal, errors.New("resource has no owner"))
	}
	if principal.ID == "" {
		return Decision{}, errors.Join(ErrInternal, errors.New("principal has no id"))
	}
	if doc.Owner == principal.ID {
		return Decision{Allowed: true, Path: AllowedByOwner}, nil
	}
	if principal.HasRole(g.roles...) {
		return Decision{Allowed: true, Path: AllowedByRole}, nil
	}
	return Decision{}, ErrForbidden
}
