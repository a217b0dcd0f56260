package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file. A missing file yields defaults
// with paths resolved under the data directory.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".paceline", "paceline.json")
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")

		v.SetEnvPrefix("PACELINE")
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// API key can always come from the environment.
	if cfg.Provider.APIKey == "" {
		switch cfg.Provider.Name {
		case "openai":
			cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".paceline")
	}

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "db", "activities.db")
	}
	if cfg.ContextPath == "" {
		cfg.ContextPath = filepath.Join(cfg.DataDir, "context.md")
	}
	if cfg.ModulesDir == "" {
		cfg.ModulesDir = filepath.Join(cfg.DataDir, "modules")
	}
	if cfg.Strava.TokenPath == "" {
		cfg.Strava.TokenPath = filepath.Join(cfg.DataDir, "strava_tokens.json")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "paceline.log")
	}
	if cfg.Publish.RepoDir == "" {
		cfg.Publish.RepoDir = cfg.DataDir
	}

	return cfg, nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".paceline", "paceline.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
