// Copyright (c) 2026 Marketschool. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. A local '.env' file is
loaded first (via 'joho/godotenv') when one exists, so developers do not need to
export every variable by hand.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Session) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Configuration Schema

// Config holds all runtime configuration for the Marketschool API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// ForceHTTPS marks the deployment as TLS-terminated. Session cookies are
	// only flagged Secure when this is set or the environment is production.
	ForceHTTPS bool `env:"FORCE_HTTPS" envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Key-Value Cache (Redis), used for login throttling.
	RedisURL string `env:"REDIS_URL,required"`

	// Secrets. SessionSecret keys the digest of stored session ids,
	// CookieSecret signs the session cookie.
	SessionSecret string `env:"SESSION_SECRET,required"`
	CookieSecret  string `env:"COOKIE_SECRET,required"`

	// Cross-Origin Resource Sharing. Only ClientOrigin may send credentialed
	// requests unless CORSAllowAnyOrigin is set (never honoured in production).
	ClientOrigin       string `env:"CLIENT_ORIGIN"`
	CORSAllowAnyOrigin bool   `env:"CORS_ALLOW_ANY_ORIGIN" envDefault:"false"`

	// TrustedProxies lists the CIDR ranges (e.g. "10.0.0.0/8,127.0.0.1/32") whose
	// X-Real-IP and X-Forwarded-For headers are believed. Empty trusts no one.
	TrustedProxies []netip.Prefix `env:"TRUSTED_PROXIES" envSeparator:","`

	// Login throttling per client IP
	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"10"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW"       envDefault:"1m"`

	// SessionSweepInterval controls how often expired session rows are purged.
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"15m"`

	// External identity source. When OIDCIssuerURL is empty, login accepts any
	// well-formed user identifier.
	OIDCIssuerURL string `env:"OIDC_ISSUER_URL"`
	OIDCClientID  string `env:"OIDC_CLIENT_ID"`
}

// # Configuration Loading

// Load reads an optional .env file and parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	return Parse()
}

// Parse maps the current environment into a [Config] without touching .env files.
func Parse() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID == "" {
		return nil, errors.New("config: OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}

	if cfg.CORSAllowAnyOrigin && cfg.IsProduction() {
		return nil, errors.New("config: CORS_ALLOW_ANY_ORIGIN must not be set in production")
	}

	return cfg, nil
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// SecureCookies reports whether session cookies must carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return c.ForceHTTPS || c.IsProduction()
}

// ReflectAnyOrigin reports whether CORS echoes any origin. It is an explicit
// opt-in for local front ends on random ports.
func (c *Config) ReflectAnyOrigin() bool {
	return c.CORSAllowAnyOrigin && !c.IsProduction()
}

// AllowedOrigin returns the single browser origin permitted to send credentialed requests.
func (c *Config) AllowedOrigin() string {
	return c.ClientOrigin
}
