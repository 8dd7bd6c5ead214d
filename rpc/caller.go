package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// ScopeWrite permits ledger mutations.
	ScopeWrite = "lien:write"
	// ScopeAdmin permits configuration updates and test minting.
	ScopeAdmin = "lien:admin"
)

// Principal is the authenticated identity behind a request.
type Principal struct {
	Caller common.Address
	Scopes []string
}

// HasScope reports whether the principal was granted scope.
func (p Principal) HasScope(scope string) bool {
	for _, granted := range p.Scopes {
		if granted == scope {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal attaches the authenticated identity to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the identity attached by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
