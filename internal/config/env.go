package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "SAMAKER_CONFIG"
	EnvToken  = "SAMAKER_TOKEN"
	EnvLog    = "SAMAKER_LOG"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // SAMAKER_CONFIG: override config file path
	TokenPath  string // SAMAKER_TOKEN: override token store path
	LogFile    string // SAMAKER_LOG: override log file path
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		TokenPath:  os.Getenv(EnvToken),
		LogFile:    os.Getenv(EnvLog),
	}
}
