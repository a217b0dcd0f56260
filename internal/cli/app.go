package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/raka/paceline/internal/config"
	"github.com/raka/paceline/internal/prompt"
	"github.com/raka/paceline/pkg/agent"
	"github.com/raka/paceline/pkg/modules"
	"github.com/raka/paceline/pkg/sandbox"
	"github.com/raka/paceline/pkg/session"
	"github.com/raka/paceline/pkg/store"
	"github.com/raka/paceline/pkg/tools"
)

// app bundles the wired runtime for the chat and serve commands.
type app struct {
	cfg           *config.Config
	store         *store.Store
	modules       *modules.Manager
	prompt        *prompt.Builder
	promptWatcher *prompt.Watcher
	sessions      *session.Registry
	logger        zerolog.Logger
}

// newApp wires the runtime from config. The dataset must exist; run
// `paceline sync` first on a fresh install.
func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs[0])
	}
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set provider.api_key or the provider's environment variable")
	}

	st, err := store.OpenReadOnly(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset (run `paceline sync` first?): %w", err)
	}

	runner, err := sandbox.NewRunner(sandbox.Config{
		Interpreter: cfg.Sandbox.Interpreter,
		DBPath:      cfg.DBPath,
		Timeout:     time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	var publisher modules.Publisher
	if cfg.Publish.Enabled {
		publisher = modules.NewGitPublisher(cfg.Publish.RepoDir).WithMainBranch(cfg.Publish.MainBranch)
	}

	mgr, err := modules.NewManager(cfg.ModulesDir, publisher)
	if err != nil {
		st.Close()
		return nil, err
	}

	dispatcher, err := tools.NewDispatcher(st, runner, mgr)
	if err != nil {
		st.Close()
		return nil, err
	}

	provider, err := agent.NewProvider(cfg.Provider.Name, cfg.Provider.APIKey)
	if err != nil {
		st.Close()
		return nil, err
	}

	builder := prompt.NewBuilder(cfg.ContextPath, st, mgr, logger)
	watcher, err := prompt.NewWatcher(cfg.ContextPath, builder.Invalidate, logger)
	if err != nil {
		// The watcher is a convenience; a missing context directory should
		// not keep the agent from starting.
		logger.Warn().Err(err).Msg("Context watcher disabled")
		watcher = nil
	}

	factory := func(key string) (*agent.Session, error) {
		return agent.NewSession(agent.SessionConfig{
			Provider:     provider,
			Dispatcher:   dispatcher,
			SystemPrompt: builder.Build,
			Model:        cfg.Agent.Model,
			MaxTokens:    cfg.Agent.MaxTokens,
			MaxTurns:     cfg.Agent.MaxTurns,
			Logger:       logger.With().Str("session_key", key).Logger(),
		})
	}

	sessions, err := session.NewRegistry(factory,
		time.Duration(cfg.Sessions.IdleMinutes)*time.Minute, cfg.Sessions.Max)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:           cfg,
		store:         st,
		modules:       mgr,
		prompt:        builder,
		promptWatcher: watcher,
		sessions:      sessions,
		logger:        logger,
	}, nil
}

func (a *app) Close() {
	if a.promptWatcher != nil {
		if err := a.promptWatcher.Stop(); err != nil {
			a.logger.Debug().Err(err).Msg("Failed to stop context watcher")
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to close dataset")
	}
}
