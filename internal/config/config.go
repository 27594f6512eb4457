// ABOUTME: Configuration loading and parsing for the opsgate gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete opsgate configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication and authorization configuration.
// When PublicKeyFile is empty the gateway runs in pass-through mode and
// every caller receives DefaultScopes.
type AuthConfig struct {
	PublicKeyFile  string   `yaml:"public_key_file"`
	PrivateKeyFile string   `yaml:"private_key_file"` // only needed to self-issue tokens
	Audience       string   `yaml:"audience"`
	Issuer         string   `yaml:"issuer"`
	AdminScope     string   `yaml:"admin_scope"`
	DefaultScopes  []string `yaml:"default_scopes"`
}

// SandboxConfig holds the static inputs to the security classifiers.
type SandboxConfig struct {
	Roots           []string `yaml:"roots"`
	AllowedCommands []string `yaml:"allowed_commands"`

	CommandTimeout time.Duration `yaml:"-"`
	MaxReadBytes   int64         `yaml:"max_read_bytes"`

	// Raw string value for YAML unmarshaling
	CommandTimeoutRaw string `yaml:"command_timeout"`
}

// DatabaseConfig holds the database exposed through the query tool.
type DatabaseConfig struct {
	Path          string `yaml:"path"`
	QueryRowLimit int    `yaml:"query_row_limit"`
}

// AuditConfig holds the invocation audit log configuration.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// ToolsConfig holds per-tool authorization overrides. Tools absent from
// Scopes keep their built-in scope requirements.
type ToolsConfig struct {
	Scopes map[string][]string `yaml:"scopes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied after parsing.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultMaxReadBytes   = 1 << 20 // 1MB
	DefaultQueryRowLimit  = 1000
	DefaultAdminScope     = "admin:*"
)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
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

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero values after parsing.
func (c *Config) applyDefaults() {
	if c.Sandbox.CommandTimeout == 0 {
		c.Sandbox.CommandTimeout = DefaultCommandTimeout
	}
	if c.Sandbox.MaxReadBytes == 0 {
		c.Sandbox.MaxReadBytes = DefaultMaxReadBytes
	}
	if c.Database.QueryRowLimit == 0 {
		c.Database.QueryRowLimit = DefaultQueryRowLimit
	}
	if c.Auth.AdminScope == "" {
		c.Auth.AdminScope = DefaultAdminScope
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if len(c.Sandbox.Roots) == 0 {
		return fmt.Errorf("sandbox.roots is required")
	}

	if c.Auth.PublicKeyFile != "" && c.Auth.Audience == "" {
		return fmt.Errorf("auth.audience is required when auth.public_key_file is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Sandbox.CommandTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Sandbox.CommandTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing command_timeout %q: %w", cfg.Sandbox.CommandTimeoutRaw, err)
		}
		cfg.Sandbox.CommandTimeout = d
	}
	return nil
}
