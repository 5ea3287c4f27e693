// Package config defines the gate configuration and its YAML loader.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vyrodovalexey/authgate/internal/observability"
)

// Config is the top-level configuration for the authentication gate service.
type Config struct {
	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configures structured logging.
	Logging observability.LogConfig `yaml:"logging" json:"logging"`

	// Session configures the browser session cookie.
	Session SessionConfig `yaml:"session" json:"session"`

	// Auth configures the authentication gate.
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Login configures the optional OAuth2 login flow.
	Login LoginConfig `yaml:"login,omitempty" json:"login,omitempty"`

	// Tracing configures OpenTelemetry trace export.
	Tracing observability.TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Address is the listen address (host:port).
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// CORS configures cross-origin request headers.
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`
}

// CORSConfig configures CORS response headers.
type CORSConfig struct {
	// AllowOrigins is the list of allowed origins.
	AllowOrigins []string `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`

	// AllowMethods is the list of allowed methods.
	AllowMethods []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`

	// AllowHeaders is the list of allowed request headers.
	AllowHeaders []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
}

// SessionConfig configures the cookie session layer.
type SessionConfig struct {
	// Secret signs the session cookie.
	Secret string `yaml:"secret" json:"-"`

	// CookieName is the session cookie name.
	CookieName string `yaml:"cookieName,omitempty" json:"cookieName,omitempty"`

	// MaxAge is the session cookie lifetime in seconds.
	MaxAge int `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`

	// Secure marks the session cookie as HTTPS-only.
	Secure bool `yaml:"secure,omitempty" json:"secure,omitempty"`
}

// AuthConfig configures the authentication gate.
type AuthConfig struct {
	// Providers is the ordered list of identity providers.
	Providers []ProviderConfig `yaml:"providers" json:"providers"`

	// PublicPaths is the set of request paths exempt from authentication.
	// Matched exactly against the request path, not by prefix.
	PublicPaths []string `yaml:"publicPaths,omitempty" json:"publicPaths,omitempty"`

	// ClockSkew is the allowed clock skew for exp/nbf validation.
	ClockSkew Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`

	// FetchTimeout bounds a single JWKS fetch.
	FetchTimeout Duration `yaml:"fetchTimeout,omitempty" json:"fetchTimeout,omitempty"`

	// Algorithms restricts the accepted signing algorithms.
	Algorithms []string `yaml:"algorithms,omitempty" json:"algorithms,omitempty"`
}

// ProviderConfig describes one identity provider. Immutable after load.
type ProviderConfig struct {
	// Name identifies the provider.
	Name string `yaml:"name" json:"name"`

	// JWKSURL is the URL of the provider's JSON Web Key Set.
	JWKSURL string `yaml:"jwksUrl" json:"jwksUrl"`

	// Issuer is the expected "iss" claim, compared exactly.
	Issuer string `yaml:"issuer" json:"issuer"`

	// Audience is the expected "aud" claim member.
	Audience string `yaml:"audience" json:"audience"`
}

// LoginConfig configures the OAuth2 authorization-code login flow.
type LoginConfig struct {
	// Enabled turns the /login, /auth and /logout routes on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Provider names the provider whose tokens the login flow produces.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// ClientID is the OAuth2 client ID.
	ClientID string `yaml:"clientId,omitempty" json:"clientId,omitempty"`

	// ClientSecret is the OAuth2 client secret.
	ClientSecret string `yaml:"clientSecret,omitempty" json:"-"`

	// AuthorizeURL is the provider's authorization endpoint.
	AuthorizeURL string `yaml:"authorizeUrl,omitempty" json:"authorizeUrl,omitempty"`

	// TokenURL is the provider's token endpoint.
	TokenURL string `yaml:"tokenUrl,omitempty" json:"tokenUrl,omitempty"`

	// RedirectURL is the registered callback URL for this service.
	RedirectURL string `yaml:"redirectUrl,omitempty" json:"redirectUrl,omitempty"`

	// Scopes is the list of OAuth2 scopes to request.
	Scopes []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns the metrics endpoint on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the metrics endpoint path.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// DefaultConfig returns a configuration with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Logging: observability.DefaultLogConfig(),
		Session: SessionConfig{
			CookieName: "authgate_session",
			MaxAge:     86400,
		},
		Auth: AuthConfig{
			ClockSkew:    Duration(30 * time.Second),
			FetchTimeout: Duration(10 * time.Second),
			Algorithms:   []string{"RS256", "ES256"},
		},
		Tracing: observability.DefaultTracingConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Login.Validate(); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if c.Session.Secret == "" && c.Login.Enabled {
		return errors.New("session.secret is required when login is enabled")
	}
	return nil
}

// Validate validates the gate configuration.
func (c *AuthConfig) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true
	}
	if c.ClockSkew < 0 {
		return errors.New("clockSkew must be non-negative")
	}
	if c.FetchTimeout < 0 {
		return errors.New("fetchTimeout must be non-negative")
	}
	return nil
}

// Validate validates a provider configuration.
func (p *ProviderConfig) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.JWKSURL == "" {
		return errors.New("jwksUrl is required")
	}
	if _, err := url.ParseRequestURI(p.JWKSURL); err != nil {
		return fmt.Errorf("jwksUrl is not a valid URL: %w", err)
	}
	if p.Issuer == "" {
		return errors.New("issuer is required")
	}
	if p.Audience == "" {
		return errors.New("audience is required")
	}
	return nil
}

// Validate validates the login configuration.
func (c *LoginConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ClientID == "" {
		return errors.New("clientId is required")
	}
	if c.AuthorizeURL == "" {
		return errors.New("authorizeUrl is required")
	}
	if c.TokenURL == "" {
		return errors.New("tokenUrl is required")
	}
	if c.RedirectURL == "" {
		return errors.New("redirectUrl is required")
	}
	return nil
}

// GetEffectiveClockSkew returns the clock skew, defaulted.
func (c *AuthConfig) GetEffectiveClockSkew() time.Duration {
	if c.ClockSkew > 0 {
		return time.Duration(c.ClockSkew)
	}
	return 30 * time.Second
}

// GetEffectiveFetchTimeout returns the JWKS fetch timeout, defaulted.
func (c *AuthConfig) GetEffectiveFetchTimeout() time.Duration {
	if c.FetchTimeout > 0 {
		return time.Duration(c.FetchTimeout)
	}
	return 10 * time.Second
}
