// Package modules maintains the durable catalog of reusable script modules
// and the pipeline that promotes an agent-authored script into one.
package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog/log"
)

// namePattern constrains module names to pattern-safe identifiers.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Record describes one registered module.
type Record struct {
	Name        string   `json:"name"`
	File        string   `json:"file"`
	Description string   `json:"description"`
	Functions   []string `json:"functions"`
}

// Registry is the full ordered collection of module records, persisted as a
// human-diffable JSON document.
type Registry struct {
	Modules []Record `json:"modules"`
}

// Manager owns the module directory and registry file.
type Manager struct {
	dir          string
	registryPath string
	publisher    Publisher
}

// NewManager creates a module manager. The publisher may be nil, in which
// case promotion skips the publish phase.
func NewManager(dir string, publisher Publisher) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("modules directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create modules directory: %w", err)
	}

	return &Manager{
		dir:          dir,
		registryPath: filepath.Join(dir, "registry.json"),
		publisher:    publisher,
	}, nil
}

// RegistryPath returns the location of the registry document.
func (m *Manager) RegistryPath() string {
	return m.registryPath
}

// List reads the registry fresh from disk so edits made outside this process
// are visible. A missing registry file is an empty registry.
func (m *Manager) List() (Registry, error) {
	data, err := os.ReadFile(m.registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{Modules: []Record{}}, nil
		}
		return Registry{}, fmt.Errorf("failed to read registry: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("failed to parse registry: %w", err)
	}
	if reg.Modules == nil {
		reg.Modules = []Record{}
	}
	return reg, nil
}

// save writes the registry back in full. Last writer wins; promotion is rare
// and effectively single-writer.
func (m *Manager) save(reg Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.WriteFile(m.registryPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// CreateResult reports the outcome of a promotion. Local durability (file +
// registry) is guaranteed on success; publish steps are advisory.
type CreateResult struct {
	Success   bool         `json:"success,omitempty"`
	Message   string       `json:"message,omitempty"`
	File      string       `json:"file,omitempty"`
	Functions []string     `json:"functions,omitempty"`
	Publish   []StepStatus `json:"publish,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Create promotes a script into a registered module: validate, materialize
// the file, register, then publish best-effort. A name collision fails before
// any file or registry mutation.
func (m *Manager) Create(ctx context.Context, name, description, code string, functions []string) CreateResult {
	if !namePattern.MatchString(name) {
		return CreateResult{Error: fmt.Sprintf("Invalid module name %q: use snake_case identifiers", name)}
	}

	reg, err := m.List()
	if err != nil {
		return CreateResult{Error: err.Error()}
	}

	filename := name + ".py"
	filePath := filepath.Join(m.dir, filename)

	for _, rec := range reg.Modules {
		if rec.Name == name {
			return CreateResult{Error: fmt.Sprintf("Module %s already exists. Use a different name or update manually.", name)}
		}
	}
	if _, err := os.Stat(filePath); err == nil {
		return CreateResult{Error: fmt.Sprintf("Module %s already exists. Use a different name or update manually.", name)}
	}

	// Materialize: description as a docstring header, then verbatim source.
	content := fmt.Sprintf("\"\"\"\n%s\n\"\"\"\n\n%s", description, code)
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return CreateResult{Error: fmt.Sprintf("Failed to create module: %v", err)}
	}

	reg.Modules = append(reg.Modules, Record{
		Name:        name,
		File:        filename,
		Description: description,
		Functions:   functions,
	})
	if err := m.save(reg); err != nil {
		return CreateResult{Error: fmt.Sprintf("Failed to create module: %v", err)}
	}

	log.Info().Str("module", name).Str("file", filename).Msg("Module registered")

	result := CreateResult{
		Success:   true,
		Message:   fmt.Sprintf("Module '%s' created", name),
		File:      filename,
		Functions: functions,
	}

	if m.publisher != nil {
		steps := m.publisher.Publish(ctx, PublishRequest{
			Name:        name,
			Description: description,
			Functions:   functions,
			Paths:       []string{filePath, m.registryPath},
		})
		result.Publish = steps

		if failed := failedSteps(steps); len(failed) == 0 {
			result.Message = fmt.Sprintf("Module '%s' created and merged via PR", name)
		} else {
			// Publication is advisory: report the module as created and
			// carry the failure reasons instead of rolling back.
			result.Message = fmt.Sprintf("Module '%s' created (publish incomplete: %s)", name, failed)
		}
	}

	return result
}

func failedSteps(steps []StepStatus) string {
	out := ""
	for _, s := range steps {
		if s.OK {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += fmt.Sprintf("%s: %s", s.Step, s.Detail)
	}
	return out
}
