package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown username or a
	// wrong password. The two cases are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnauthorized is returned by Verify for any token that does not
	// identify an existing principal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPrincipalNotFound is returned by Repository lookups.
	ErrPrincipalNotFound = errors.New("admin principal not found")
)

// Principal is an admin user allowed to mutate catalog and order state.
type Principal struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credential is a signed bearer token issued on login.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Repository provides lookup and provisioning of admin principals.
type Repository interface {
	// FindByUsername matches the username exactly (case-sensitive).
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByID(ctx context.Context, id int64) (*Principal, error)
	// Upsert creates the principal or replaces email and password hash of
	// an existing one with the same username.
	Upsert(ctx context.Context, p *Principal) error
}

type principalKey struct{}

// WithPrincipal returns a context carrying the verified principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
