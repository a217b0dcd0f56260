// Package prompt assembles the system context for model calls: base
// instructions from a markdown file, the current module inventory, and
// dataset status.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/raka/paceline/pkg/modules"
	"github.com/raka/paceline/pkg/store"
)

// Builder renders the system prompt. The base file is cached; the module
// inventory and dataset stats are read fresh on every build so new modules
// and synced activities show up without a restart.
type Builder struct {
	contextPath string
	store       *store.Store
	modules     *modules.Manager
	logger      zerolog.Logger

	mu     sync.Mutex
	cached string
	dirty  bool
}

// NewBuilder creates a builder reading base instructions from contextPath.
func NewBuilder(contextPath string, st *store.Store, mgr *modules.Manager, logger zerolog.Logger) *Builder {
	return &Builder{
		contextPath: contextPath,
		store:       st,
		modules:     mgr,
		logger:      logger,
		dirty:       true,
	}
}

// Invalidate forces the next build to re-read the base file.
func (b *Builder) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = true
}

// Build renders the full system prompt.
func (b *Builder) Build(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(b.baseContext())
	sb.WriteString(b.moduleSection())
	sb.WriteString(b.datasetSection(ctx))
	return sb.String()
}

func (b *Builder) baseContext() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return b.cached
	}

	data, err := os.ReadFile(b.contextPath)
	if err != nil {
		// A missing context file degrades to an empty base rather than
		// blocking the conversation.
		b.logger.Warn().Str("path", b.contextPath).Err(err).Msg("Failed to read context file")
		return b.cached
	}

	b.cached = string(data)
	b.dirty = false
	b.logger.Debug().Str("path", b.contextPath).Int("bytes", len(data)).Msg("Context file loaded")

	return b.cached
}

func (b *Builder) moduleSection() string {
	reg, err := b.modules.List()
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to read module registry")
		return ""
	}

	if len(reg.Modules) == 0 {
		return "\n\n## Available Reusable Modules\n\nNo modules created yet.\n"
	}

	var sb strings.Builder
	sb.WriteString("\n\n## Available Reusable Modules\n\n")
	for _, mod := range reg.Modules {
		sb.WriteString(fmt.Sprintf("### %s\n", mod.Name))
		sb.WriteString(fmt.Sprintf("File: `modules/%s`\n", mod.File))
		sb.WriteString(mod.Description + "\n")
		sb.WriteString(fmt.Sprintf("Functions: %s\n\n", strings.Join(mod.Functions, ", ")))
	}
	return sb.String()
}

func (b *Builder) datasetSection(ctx context.Context) string {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to read dataset stats")
		return ""
	}
	if stats.ActivityCount == 0 {
		return ""
	}

	minDate := stats.FirstDate
	if minDate == "" {
		minDate = "N/A"
	}
	maxDate := stats.LastDate
	if maxDate == "" {
		maxDate = "N/A"
	}

	var sb strings.Builder
	sb.WriteString("\n\n## Database Status\n\n")
	sb.WriteString(fmt.Sprintf("- Total activities: %s\n", humanize.Comma(stats.ActivityCount)))
	sb.WriteString(fmt.Sprintf("- Date range: %s to %s\n", minDate, maxDate))
	return sb.String()
}
