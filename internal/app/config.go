package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/gemstore/internal/domain/auth"
	"github.com/xenking/gemstore/pkg/httpmiddleware"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (GEMSTORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (GEMSTORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig

	// TrustedProxies lists reverse proxies (CIDR or address) whose
	// X-Forwarded-For identifies clients for rate limiting. Empty means the
	// peer address is always the client.
	TrustedProxies []string `usage:"Trusted reverse proxy CIDRs for client IP detection" flag:"trusted-proxies"`
}

// DatabaseConfig tunes the pgx connection pool.
type DatabaseConfig struct {
	MaxConns        int32         `default:"20"  usage:"Maximum pooled connections" flag:"db-max-conns"`
	MaxConnLifetime time.Duration `default:"30m" usage:"Maximum lifetime of a pooled connection" flag:"db-max-conn-lifetime"`
}

// AuthConfig controls admin credentials.
type AuthConfig struct {
	Secret         string        `usage:"HMAC secret for admin tokens, at least 32 bytes (GEMSTORE_AUTH_SECRET)" flag:"auth-secret"`
	TokenTTL       time.Duration `default:"24h" usage:"Lifetime of issued admin tokens" flag:"auth-token-ttl"`
	AllowNoExpiry  bool          `default:"false" usage:"Accept admin tokens without an exp claim" flag:"auth-allow-no-expiry"`
	BcryptCost     int           `default:"10" usage:"bcrypt cost for password hashing" flag:"auth-bcrypt-cost"`
	LoginRateLimit LoginRateLimitConfig
}

// LoginRateLimitConfig throttles admin login attempts per client.
type LoginRateLimitConfig struct {
	Max    int           `default:"10" usage:"Max login attempts per window" flag:"login-rate-limit-max"`
	Window time.Duration `default:"1m" usage:"Login rate limit window" flag:"login-rate-limit-window"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads a local .env file, then configuration from environment
// variables, YAML config files and command-line flags.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GEMSTORE",
		Args:      args,
		Files:     []string{"config.yaml", "/etc/gemstore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set GEMSTORE_DATABASE_URL or DATABASE_URL")
	}
	if len(c.Auth.Secret) < auth.MinSecretLength {
		return errors.Errorf("auth secret must be at least %d bytes: set GEMSTORE_AUTH_SECRET", auth.MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth token TTL must be positive")
	}
	if c.Auth.LoginRateLimit.Max <= 0 || c.Auth.LoginRateLimit.Window <= 0 {
		return errors.New("login rate limit must be positive")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit must be positive")
	}
	if _, err := httpmiddleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return err
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables such as
// DATABASE_URL and PORT onto the GEMSTORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// guardConfig translates the auth section for auth.NewGuard.
func (c *Config) guardConfig() auth.GuardConfig {
	return auth.GuardConfig{
		Secret:        []byte(c.Auth.Secret),
		TokenTTL:      c.Auth.TokenTTL,
		AllowNoExpiry: c.Auth.AllowNoExpiry,
		BcryptCost:    c.Auth.BcryptCost,
	}
}
