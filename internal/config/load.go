package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Google: GoogleConfig{
			ServiceAccountFolder: DefaultKeyFolder(),
		},
		Logging: LoggingConfig{
			LogLevel: "info",
		},
	}
}

// Load reads and parses a TOML config file. Unknown keys are fatal:
// silently ignoring a typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience for commands that do not need Google credentials.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off overrides.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists).
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		ClientID:             cfg.Google.ClientID,
		ClientSecret:         cfg.Google.ClientSecret,
		ProjectName:          cfg.Google.ProjectName,
		ServiceAccountFolder: cfg.Google.ServiceAccountFolder,
		TokenPath:            DefaultTokenPath(),
		LedgerPath:           DefaultLedgerPath(),
		LogLevel:             cfg.Logging.LogLevel,
		LogFile:              cfg.Logging.LogFile,
	}

	// 3. Apply env overrides.
	if env.TokenPath != "" {
		resolved.TokenPath = env.TokenPath
	}

	if env.LogFile != "" {
		resolved.LogFile = env.LogFile
	}

	// 4. Apply CLI overrides.
	if cli.TokenPath != "" {
		resolved.TokenPath = cli.TokenPath
	}

	return resolved, nil
}

// ValidateGoogle checks that the fields every Google-facing command needs
// are present. Commands call this after Resolve; path-only commands skip it.
func (r *Resolved) ValidateGoogle() error {
	var missing []string

	if r.ClientID == "" {
		missing = append(missing, "google.client_id")
	}

	if r.ClientSecret == "" {
		missing = append(missing, "google.client_secret")
	}

	if r.ProjectName == "" {
		missing = append(missing, "google.project_name")
	}

	if len(missing) > 0 {
		return fmt.Errorf("config missing required keys: %s", strings.Join(missing, ", "))
	}

	return nil
}
