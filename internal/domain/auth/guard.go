package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinSecretLength is the shortest accepted signing secret, in bytes.
	MinSecretLength = 32
	// DefaultTokenTTL is the lifetime of issued credentials.
	DefaultTokenTTL = 24 * time.Hour
)

// GuardConfig configures credential issuing and verification.
type GuardConfig struct {
	// Secret signs and verifies tokens. Rotating it invalidates every
	// outstanding token.
	Secret []byte
	// TokenTTL defaults to DefaultTokenTTL.
	TokenTTL time.Duration
	// AllowNoExpiry accepts tokens without an exp claim as non-expiring.
	AllowNoExpiry bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Guard issues and verifies admin bearer credentials. Verification is
// stateless apart from a single principal lookup.
type Guard struct {
	principals    Repository
	secret        []byte
	ttl           time.Duration
	allowNoExpiry bool
	cost          int
	now           func() time.Time

	// dummyHash is compared against on unknown usernames so that both login
	// failure paths perform one bcrypt comparison.
	dummyHash []byte
}

// NewGuard creates a Guard backed by the given principal repository.
func NewGuard(principals Repository, cfg GuardConfig) (*Guard, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, errors.Errorf("auth secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("gemstore-login-timing"), cfg.BcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "generate dummy hash")
	}

	return &Guard{
		principals:    principals,
		secret:        cfg.Secret,
		ttl:           cfg.TokenTTL,
		allowNoExpiry: cfg.AllowNoExpiry,
		cost:          cfg.BcryptCost,
		now:           time.Now,
		dummyHash:     dummy,
	}, nil
}

// HashPassword returns a salted bcrypt hash of password using the guard's cost.
func (g *Guard) HashPassword(password string) (string, error) {
	return HashPassword(password, g.cost)
}

// HashPassword returns a salted bcrypt hash of password.
func HashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// Login checks username and password and issues a credential valid for the
// configured TTL.
func (g *Guard) Login(ctx context.Context, username, password string) (*Credential, error) {
	p, err := g.principals.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			_ = bcrypt.CompareHashAndPassword(g.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find principal")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return g.issue(p)
}

func (g *Guard) issue(p *Principal) (*Credential, error) {
	now := g.now()
	c := claims{
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}

	return &Credential{Token: token, ExpiresAt: c.ExpiresAt.Time}, nil
}

// Verify returns the principal identified by token. Malformed, tampered,
// expired and orphaned tokens all yield ErrUnauthorized; any other error
// comes from the principal lookup.
func (g *Guard) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(g.now),
	}
	if !g.allowNoExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	var c claims
	if _, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, opts...); err != nil {
		return nil, ErrUnauthorized
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrUnauthorized
	}

	p, err := g.principals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find principal")
	}
	return p, nil
}
