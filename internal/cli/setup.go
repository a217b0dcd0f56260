package cli

import (
	"github.com/rs/zerolog"

	"github.com/raka/paceline/internal/config"
	"github.com/raka/paceline/internal/logger"
)

// loadConfigAndLogger loads config and builds the process logger, honoring
// the --log-level flag over the configured level.
func loadConfigAndLogger(console bool) (*config.Config, *logger.Logger, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	l, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    console,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	return cfg, l, l.GetZerolog(), nil
}
