// ABOUTME: Configuration loading and parsing for the tomepile server
// ABOUTME: Supports YAML files with environment variable expansion and eager validation

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// MinSessionSecretBytes is the minimum length of the session signing secret.
// Shorter secrets are refused at startup rather than silently accepted.
const MinSessionSecretBytes = 32

// DefaultTokenLifetime is used when session.token_lifetime is not set.
const DefaultTokenLifetime = 720 * time.Hour // 30 days

// Config represents the complete tomepile server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	WebAuthn WebAuthnConfig `yaml:"webauthn"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address and CORS configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// BaseURL is the external URL of the server, used when generating
	// invitation and setup links
	BaseURL string `yaml:"base_url"`

	// AllowedOrigins lists origins permitted to make cross-origin requests
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	// Secret signs session tokens. Required, minimum 32 bytes.
	Secret string `yaml:"secret"`

	// TokenLifetime is how long issued tokens stay valid
	TokenLifetime time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenLifetimeRaw string `yaml:"token_lifetime"`
}

// WebAuthnConfig holds relying-party identity configuration.
// These must exactly match the domain the server is reached on;
// there is deliberately no localhost fallback.
type WebAuthnConfig struct {
	RPID          string `yaml:"rp_id"`
	RPOrigin      string `yaml:"rp_origin"`
	RPDisplayName string `yaml:"rp_display_name"`
}

// RedisConfig holds optional Redis challenge cache configuration.
// When Addr is empty the in-memory challenge cache is used.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if len(c.Session.Secret) < MinSessionSecretBytes {
		return fmt.Errorf("session.secret must be at least %d bytes, got %d", MinSessionSecretBytes, len(c.Session.Secret))
	}

	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn.rp_id is required")
	}
	if c.WebAuthn.RPOrigin == "" {
		return fmt.Errorf("webauthn.rp_origin is required")
	}

	origin, err := url.Parse(c.WebAuthn.RPOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("webauthn.rp_origin %q is not a valid origin URL", c.WebAuthn.RPOrigin)
	}
	if origin.Hostname() != c.WebAuthn.RPID {
		return fmt.Errorf("webauthn.rp_origin host %q does not match webauthn.rp_id %q", origin.Hostname(), c.WebAuthn.RPID)
	}

	for _, o := range c.Server.AllowedOrigins {
		parsed, err := url.Parse(o)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("server.allowed_origins entry %q is not a valid origin URL", o)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	cfg.Session.TokenLifetime = DefaultTokenLifetime

	if cfg.Session.TokenLifetimeRaw != "" {
		d, err := time.ParseDuration(cfg.Session.TokenLifetimeRaw)
		if err != nil {
			return fmt.Errorf("parsing token_lifetime %q: %w", cfg.Session.TokenLifetimeRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("token_lifetime must be positive, got %q", cfg.Session.TokenLifetimeRaw)
		}
		cfg.Session.TokenLifetime = d
	}

	return nil
}
