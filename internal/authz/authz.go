// Package authz checks that a principal authorized the current call.
//
// Authorization is scoped to one request: the signature middleware verifies
// the request signature and places the signer in the request context, and
// operations then call Require with the principal they expect (payer, oracle,
// admin). Nothing is remembered between requests.
package authz

import (
	"context"
	"errors"
	"strings"
)

// ErrNotAuthorized is returned when the expected principal did not sign the call.
var ErrNotAuthorized = errors.New("authz: not authorized")

// Authorizer verifies that principal authorized the call carried by ctx.
type Authorizer interface {
	Require(ctx context.Context, principal string) error
}

type principalKey struct{}

// WithPrincipal returns a context recording that addr authorized this call.
func WithPrincipal(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, principalKey{}, strings.ToLower(addr))
}

// Principal returns the verified signer of the current call, or "".
func Principal(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

// Require fails with ErrNotAuthorized unless principal signed the current call.
func Require(ctx context.Context, principal string) error {
	signer := Principal(ctx)
	if signer == "" || principal == "" || !strings.EqualFold(signer, principal) {
		return ErrNotAuthorized
	}
	return nil
}

// ContextAuthorizer is the Authorizer backed by the request context.
type ContextAuthorizer struct{}

func (ContextAuthorizer) Require(ctx context.Context, principal string) error {
	return Require(ctx, principal)
}

var _ Authorizer = ContextAuthorizer{}
