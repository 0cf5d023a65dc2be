// Package config loads and validates the placesync YAML configuration.
//
// Secrets may be supplied through the environment instead of the file:
// PLACESYNC_API_KEY, PLACESYNC_PROJECT_ID and PLACESYNC_CREDENTIALS_FILE
// override the corresponding keys when set.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of the environment overrides.
const EnvPrefix = "placesync"

// Defaults applied by Load.
const (
	DefaultRequestTimeout = 10 * time.Second
	MinRefreshInterval    = 30 * time.Second
	MaxRefreshInterval    = 24 * time.Hour
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// ProjectID is the Google Cloud project hosting the Firestore database.
	ProjectID string `yaml:"project_id"`

	// APIKey is the Web API key used for the Identity Toolkit endpoints.
	APIKey string `yaml:"api_key"`

	// CredentialsFile is an optional service-account JSON file for
	// Firestore. Application default credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// AuthEndpoint overrides the Identity Toolkit base URL, e.g. to point at
	// the Firebase Auth emulator.
	AuthEndpoint string `yaml:"auth_endpoint,omitempty"`

	// RequestTimeout bounds each identity provider request. Defaults to 10s.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// RefreshInterval controls how often `placesync watch` reloads
	// locations and categories. 0 disables refreshing; otherwise 30s..24h.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// LedgerPath is the login ledger database. Defaults to
	// ~/.local/share/placesync/ledger.db.
	LedgerPath string `yaml:"ledger_path,omitempty"`

	// PurgeDependents makes account deletion remove the user's favorites
	// and comments as well.
	PurgeDependents bool `yaml:"purge_dependents,omitempty"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure,omitempty"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "placesync".
	ServiceName string `yaml:"service_name,omitempty"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// envOverrides are read from PLACESYNC_* variables.
type envOverrides struct {
	ProjectID       string `envconfig:"PROJECT_ID"`
	APIKey          string `envconfig:"API_KEY"`
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`
}

// DefaultPath returns the default config file path: ~/.config/placesync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "placesync", "config.yaml"), nil
}

// Load reads the configuration file at path, applies environment overrides,
// and validates the result. A missing file is not an error when the
// environment supplies the required keys.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	case err != nil:
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	default:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true) // reject unknown keys to catch typos early
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		if f == nil {
			return nil, fmt.Errorf("config file %q not found and environment incomplete: %w", path, err)
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}
	if env.ProjectID != "" {
		c.ProjectID = env.ProjectID
	}
	if env.APIKey != "" {
		c.APIKey = env.APIKey
	}
	if env.CredentialsFile != "" {
		c.CredentialsFile = env.CredentialsFile
	}
	return nil
}

// validate checks that all required fields are present and well-formed and
// fills in defaults.
func (c *Config) validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	if c.AuthEndpoint != "" {
		u, err := url.ParseRequestURI(c.AuthEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("auth_endpoint %q must be a valid http or https URL", c.AuthEndpoint)
		}
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout %v must be positive", c.RequestTimeout)
	}

	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh_interval %v must not be negative", c.RefreshInterval)
	}
	if c.RefreshInterval != 0 && c.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("refresh_interval %v is too short (minimum %v)", c.RefreshInterval, MinRefreshInterval)
	}
	if c.RefreshInterval > MaxRefreshInterval {
		return fmt.Errorf("refresh_interval %v is too long (maximum %v)", c.RefreshInterval, MaxRefreshInterval)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

// Save writes cfg to path as YAML, creating parent directories. The file is
// readable by the owner only since it holds the API key.
func Save(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}
