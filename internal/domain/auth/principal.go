package auth

import (
	"context"
	"slices"
)

// Kind distinguishes customer keys from staff keys.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindAdmin    Kind = "admin"
)

// Permissions granted to admin keys.
const (
	PermOrders    = "orders:manage"
	PermProducts  = "products:manage"
	PermInventory = "inventory:manage"
)

// Principal is the authenticated caller.
type Principal struct {
	// ID is the API key id.
	ID string
	Kind Kind
	// SubjectID is the customer or admin the key belongs to.
	SubjectID   string
	Email       string
	Name        string
	Permissions []string
}

// IsAdmin reports whether the principal is staff.
func (p *Principal) IsAdmin() bool { return p.Kind == KindAdmin }

// Can reports whether an admin principal holds perm. An admin key without
// explicit permissions holds all of them.
func (p *Principal) Can(perm string) bool {
	if !p.IsAdmin() {
		return false
	}
	return len(p.Permissions) == 0 || slices.Contains(p.Permissions, perm)
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached by WithPrincipal.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
