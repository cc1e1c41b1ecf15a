package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/tixgate/tixgate/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TIXGATE_DATA_DIR env var, or ~/.tixgate as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TIXGATE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.tixgate"
}

// loadConfig reads the YAML config (from --config, ./tixgate.yaml, or
// ~/.tixgate/tixgate.yaml), falling back to defaults when no file exists,
// then layers TIXGATE_* environment overrides on top. Secrets are resolved
// here, once; everything downstream receives them by injection.
func loadConfig() (*config.YAMLConfig, error) {
	var cfg *config.YAMLConfig

	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultYAMLConfig()
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides lets secrets and the posture mode come from the
// environment instead of the file, e.g. TIXGATE_SIGNING_UPLOAD_SECRET.
func applyEnvOverrides(cfg *config.YAMLConfig) {
	if v := viper.GetString("signing.mode"); v != "" {
		cfg.Signing.Mode = v
	}
	if v := viper.GetString("signing.upload_secret"); v != "" {
		cfg.Signing.UploadSecret = v
	}
	if v := viper.GetString("signing.state_secret"); v != "" {
		cfg.Signing.StateSecret = v
	}
	if v := viper.GetString("auth.jwt_secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("captcha.secret"); v != "" {
		cfg.Captcha.Secret = v
	}
}

// openStore opens the persistence backend selected by the config,
// defaulting to SQLite under the resolved data directory.
func openStore(cfg *config.YAMLConfig) (*config.Store, error) {
	store, err := config.Open(cfg.Store, resolveDataDir())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// newLogger builds a slog.Logger from the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
