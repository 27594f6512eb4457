// ABOUTME: Principal identity model and context propagation for request handling.
// ABOUTME: Provides WithPrincipal/FromContext for audit attribution in handlers.

package auth

import "context"

// Principal is the verified identity of a caller. It is created only after
// successful token verification, lives for the duration of one request, and
// is never persisted.
type Principal struct {
	Subject  string   // non-blank "sub" claim
	Scopes   []string // permission scopes parsed from the "scope" claim
	Issuer   string   // "iss" claim, informational
	Audience string   // the audience this principal was verified against
}

// HasScope reports whether the principal holds the given scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// principalKey is the context key type for the request principal.
type principalKey struct{}

// WithPrincipal returns a new context with the principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from the context, returning nil if
// not present. Consumers use this for audit attribution; absence means the
// request never cleared authentication.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
