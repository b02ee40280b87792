// Package config implements TOML configuration loading and platform-specific
// path resolution for samaker. Overrides are layered: defaults -> config
// file -> environment -> CLI flags, so a one-off --token never requires
// editing the config file.
package config

// Config is the top-level structure parsed from a TOML file.
type Config struct {
	Google  GoogleConfig  `toml:"google"`
	Logging LoggingConfig `toml:"logging"`
}

// GoogleConfig holds the OAuth client and project settings. The client
// credentials come from the user's own Google Cloud OAuth client; the tool
// never ships any.
type GoogleConfig struct {
	ClientID             string `toml:"client_id"`
	ClientSecret         string `toml:"client_secret"`
	ProjectName          string `toml:"project_name"`
	ServiceAccountFolder string `toml:"service_account_folder"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	TokenPath  string // --token flag (empty = use default)
}

// Resolved is the effective configuration after the override chain.
// Consumed read-only by the commands.
type Resolved struct {
	ClientID             string
	ClientSecret         string
	ProjectName          string
	ServiceAccountFolder string

	TokenPath  string
	LedgerPath string

	LogLevel string
	LogFile  string
}
