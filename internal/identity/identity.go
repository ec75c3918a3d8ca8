// Package identity carries the resolved caller identity through the
// system. Resolution itself (session cookies, credential checks) is
// transport plumbing; the engine and query service only ever see an
// already-resolved Identity and never reach into a session.
package identity

import "errors"

// ErrUnauthenticated is returned when a credential resolves to no caller
// identity. It is never conflated with "not found or not permitted".
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is a resolved caller: who is acting, in what role, and who
// approves for them.
type Identity struct {
	UserID    int64
	Name      string
	Role      string
	ManagerID *int64
}

// Provider resolves an opaque credential to a caller identity
type Provider interface {
	// Resolve returns the identity behind the credential, or
	// ErrUnauthenticated when it resolves to no active user.
	Resolve(credential string) (Identity, error)
}
