// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-idbridge.
//
// go-idbridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bridge configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	LDAP      LDAPConfig      `yaml:"ldap"`
	Hydra     HydraConfig     `yaml:"hydra"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`
	TOTP      TOTPConfig      `yaml:"totp"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SessionConfig controls session issuance. Secret has no default: a signing
// secret compiled into the binary or checked into config templates defeats
// the token scheme, so the server refuses to start without one.
type SessionConfig struct {
	Secret string   `yaml:"secret"`
	TTL    Duration `yaml:"ttl"`
}

// StorageConfig selects the ephemeral state backend
type StorageConfig struct {
	Backend   string `yaml:"backend"` // memory, redis
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LDAPConfig contains directory connection settings
type LDAPConfig struct {
	URL          string `yaml:"url"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserBaseDN   string `yaml:"user_base_dn"`
	GroupBaseDN  string `yaml:"group_base_dn"`
	AdminGroupDN string `yaml:"admin_group_dn"`
}

// HydraConfig contains authorization server admin API settings
type HydraConfig struct {
	AdminURL    string   `yaml:"admin_url"`
	Timeout     Duration `yaml:"timeout"`
	Remember    bool     `yaml:"remember"`
	RememberFor Duration `yaml:"remember_for"`
}

// WebAuthnConfig contains relying party settings
type WebAuthnConfig struct {
	RPID          string   `yaml:"rp_id"`
	RPDisplayName string   `yaml:"rp_display_name"`
	RPOrigins     []string `yaml:"rp_origins"`
	ChallengeTTL  Duration `yaml:"challenge_ttl"`
}

// TOTPConfig contains TOTP enrollment settings
type TOTPConfig struct {
	Issuer    string `yaml:"issuer"`
	Algorithm string `yaml:"algorithm"` // SHA1, SHA256, SHA512
	Digits    int    `yaml:"digits"`
	Skew      uint   `yaml:"skew"`
}

// RateLimitConfig throttles the credential-bearing endpoints per client IP
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Duration wraps time.Duration so YAML values can use Go duration strings
// like "12h" or "750ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration with default values. The session secret
// and the external endpoints have no defaults and must be provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "",
			Port:         8080,
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			TTL: Duration(12 * time.Hour),
		},
		Storage: StorageConfig{
			Backend:   "memory",
			KeyPrefix: "idbridge:",
		},
		Hydra: HydraConfig{
			Timeout:     Duration(10 * time.Second),
			Remember:    true,
			RememberFor: Duration(time.Hour),
		},
		WebAuthn: WebAuthnConfig{
			ChallengeTTL: Duration(5 * time.Minute),
		},
		TOTP: TOTPConfig{
			Algorithm: "SHA1",
			Digits:    6,
			Skew:      1,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			Burst:             10,
		},
	}
}

// Load reads configuration from a YAML file and applies environment
// variable overrides. An empty path loads defaults plus the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Secrets are the primary use case: they stay out of the
// config file entirely.
func applyEnvOverrides(cfg *Config) {
	if host, ok := os.LookupEnv("IDBRIDGE_HOST"); ok {
		cfg.Server.Host = host
	}
	if port := os.Getenv("IDBRIDGE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p >= 1 && p <= 65535 {
			cfg.Server.Port = p
		}
	}
	if level := os.Getenv("IDBRIDGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("IDBRIDGE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	if secret := os.Getenv("IDBRIDGE_SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}
	if addr := os.Getenv("IDBRIDGE_REDIS_ADDR"); addr != "" {
		cfg.Storage.Backend = "redis"
		cfg.Storage.Addr = addr
	}
	if password := os.Getenv("IDBRIDGE_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Password = password
	}
	if url := os.Getenv("IDBRIDGE_LDAP_URL"); url != "" {
		cfg.LDAP.URL = url
	}
	if password := os.Getenv("IDBRIDGE_LDAP_BIND_PASSWORD"); password != "" {
		cfg.LDAP.BindPassword = password
	}
	if url := os.Getenv("IDBRIDGE_HYDRA_ADMIN_URL"); url != "" {
		cfg.Hydra.AdminURL = url
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required (set session.secret or IDBRIDGE_SESSION_SECRET)")
	}

	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.Addr == "" {
			return fmt.Errorf("storage addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or redis)", c.Storage.Backend)
	}

	if c.LDAP.URL == "" {
		return fmt.Errorf("ldap url is required")
	}
	if c.LDAP.UserBaseDN == "" {
		return fmt.Errorf("ldap user_base_dn is required")
	}

	if c.Hydra.AdminURL == "" {
		return fmt.Errorf("hydra admin_url is required")
	}

	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn rp_id is required")
	}
	if c.WebAuthn.RPDisplayName == "" {
		return fmt.Errorf("webauthn rp_display_name is required")
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		return fmt.Errorf("at least one webauthn rp_origin is required")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("ratelimit requests_per_minute must be positive when enabled")
	}

	return nil
}
