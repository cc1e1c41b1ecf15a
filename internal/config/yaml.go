package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Posture modes for signing-key-dependent gates. In permissive mode a gate
// whose secret is absent fails open (development use); in strict mode an
// unconfigured secret is a startup error. The posture is an explicit,
// auditable configuration choice, never inferred from a request.
const (
	ModeStrict     = "strict"
	ModePermissive = "permissive"
)

// YAMLConfig represents the top-level tixgate configuration file.
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Signing SigningConfig `yaml:"signing"`
	Auth    AuthConfig    `yaml:"auth"`
	Captcha CaptchaConfig `yaml:"captcha"`
	Uploads UploadsConfig `yaml:"uploads"`
	Limits  LimitsConfig  `yaml:"limits"`
	Store   StoreConfig   `yaml:"store"`
	Audit   AuditConfig   `yaml:"audit"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
	RateLimitPerMin int        `yaml:"rate_limit_per_min"` // per-IP, 0 disables
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// SigningConfig holds the process-wide signing secrets. Secrets are loaded
// once at startup and injected into components at construction; nothing
// reads them from ambient global state afterwards.
type SigningConfig struct {
	Mode         string `yaml:"mode"`          // strict | permissive
	UploadSecret string `yaml:"upload_secret"` // signs upload URLs
	StateSecret  string `yaml:"state_secret"`  // signs OAuth state and generic payloads
}

// AuthConfig controls API-key and admin-token authentication.
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	JWTExpiry       string `yaml:"jwt_expiry"`
	APIKeyHeader    string `yaml:"api_key_header"`
	KeyRateLimitMin int    `yaml:"key_rate_limit_per_min"` // per-key-header, 0 disables
}

// CaptchaConfig controls the bot-risk gate.
type CaptchaConfig struct {
	Secret         string  `yaml:"secret"`
	VerifyURL      string  `yaml:"verify_url"`
	MinScore       float64 `yaml:"min_score"`
	ExpectedAction string  `yaml:"expected_action"`
	Timeout        string  `yaml:"timeout"`
}

// UploadsConfig controls protected file serving and signed links.
type UploadsConfig struct {
	Dir               string   `yaml:"dir"`
	ProtectedSegments []string `yaml:"protected_segments"`
	LinkTTL           string   `yaml:"link_ttl"`
}

// LimitsConfig maps route classes to request body ceilings in bytes.
// Uniform limits either starve legitimate uploads or admit oversized abuse
// payloads on lightweight endpoints, so each class gets its own ceiling.
type LimitsConfig struct {
	Standard int64 `yaml:"standard"`
	Auth     int64 `yaml:"auth"`
	Upload   int64 `yaml:"upload"`
	Bulk     int64 `yaml:"bulk"`
	Webhook  int64 `yaml:"webhook"`
}

// StoreConfig selects the persistence backend for keys and audit events.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`    // postgres only; sqlite uses the data dir
}

// AuditConfig controls the optional external security-event sink.
type AuditConfig struct {
	SinkURL string `yaml:"sink_url"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before
// parsing, so secrets can live outside the file itself.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the strict-mode posture: in strict mode every
// signing-key-dependent gate must have its secret configured, and the
// permissive fail-open branches are unreachable.
func (c *YAMLConfig) Validate() error {
	switch c.Signing.Mode {
	case ModeStrict:
		if c.Signing.UploadSecret == "" {
			return fmt.Errorf("strict mode: signing.upload_secret is required")
		}
		if c.Signing.StateSecret == "" {
			return fmt.Errorf("strict mode: signing.state_secret is required")
		}
		if c.Captcha.Secret == "" {
			return fmt.Errorf("strict mode: captcha.secret is required")
		}
	case ModePermissive:
		// Missing secrets are tolerated; dependent gates fail open with a
		// synthetic verdict. Intended for non-production environments only.
	default:
		return fmt.Errorf("signing.mode must be %q or %q, got %q", ModeStrict, ModePermissive, c.Signing.Mode)
	}

	switch c.Store.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.driver postgres requires store.dsn")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	return nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			RateLimitPerMin: 300,
		},
		Signing: SigningConfig{
			Mode: ModePermissive,
		},
		Auth: AuthConfig{
			JWTExpiry:       "1h",
			APIKeyHeader:    "X-API-Key",
			KeyRateLimitMin: 120,
		},
		Captcha: CaptchaConfig{
			VerifyURL: "https://www.google.com/recaptcha/api/siteverify",
			MinScore:  0.5,
			Timeout:   "5s",
		},
		Uploads: UploadsConfig{
			Dir:               "./uploads",
			ProtectedSegments: []string{"payment-proofs"},
			LinkTTL:           "5m",
		},
		Limits: LimitsConfig{
			Standard: 1 << 20,   // 1MB
			Auth:     64 << 10,  // 64KB
			Upload:   25 << 20,  // 25MB
			Bulk:     5 << 20,   // 5MB
			Webhook:  256 << 10, // 256KB
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Audit: AuditConfig{
			Timeout: "3s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
