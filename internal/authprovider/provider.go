// Package authprovider defines the external session provider contract and
// ships a local implementation for wiring and tests.
package authprovider

import "context"

// Identity carries the fields the provider is authoritative for. The core
// never overrides them with cached values.
type Identity struct {
	SubjectID     string
	Email         string
	EmailVerified bool
}

// Provider is the external authentication collaborator. OnIdentityChange
// delivers nil when the subject signs out.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	OnIdentityChange(fn func(identity *Identity)) (unsubscribe func())
	FreshToken(ctx context.Context, forceRefresh bool) (string, error)
}
