// Package tools maps model-issued tool invocations onto the query executor,
// script sandbox, and module pipeline, and normalizes every outcome to a
// serializable payload.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/raka/paceline/pkg/modules"
	"github.com/raka/paceline/pkg/sandbox"
	"github.com/raka/paceline/pkg/store"
)

// Name identifies one of the four capabilities the model may invoke.
type Name string

const (
	NameExecuteQuery  Name = "execute_query"
	NameExecuteScript Name = "execute_script"
	NameCreateModule  Name = "create_module"
	NameListModules   Name = "list_modules"
)

// Definition is the static schema for one tool, in the shape providers
// forward to the model backend.
type Definition struct {
	Name        Name                   `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Definitions returns the static tool schema exposed to the model.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        NameExecuteQuery,
			Description: "Execute a SQL query against the activities database. Use this for simple queries. Returns results as a list of dictionaries.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The SQL query to execute. Must be a SELECT query.",
					},
				},
				"required": []interface{}{"query"},
			},
		},
		{
			Name:        NameExecuteScript,
			Description: "Execute a Python script for complex analysis. The script has access to sqlite3, json, datetime, and the activities database. Print your results - the output will be captured and returned.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code": map[string]interface{}{
						"type":        "string",
						"description": "Python code to execute. Use print() for output.",
					},
					"explanation": map[string]interface{}{
						"type":        "string",
						"description": "Brief explanation of what this code does.",
					},
				},
				"required": []interface{}{"code", "explanation"},
			},
		},
		{
			Name:        NameCreateModule,
			Description: "Create a reusable Python module for a query pattern worth saving. This will be committed to the repo.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "Module name (snake_case, e.g. 'weekly_mileage')",
					},
					"description": map[string]interface{}{
						"type":        "string",
						"description": "What this module does",
					},
					"code": map[string]interface{}{
						"type":        "string",
						"description": "Python module code with documented functions",
					},
					"functions": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "List of function signatures exposed by this module",
					},
				},
				"required": []interface{}{"name", "description", "code", "functions"},
			},
		},
		{
			Name:        NameListModules,
			Description: "List all available reusable modules and their functions.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// Dispatcher routes tool invocations to their handlers. It always returns a
// value: handler panics and internal errors are converted to structured error
// payloads so the conversation stays coherent.
type Dispatcher struct {
	store   *store.Store
	runner  *sandbox.Runner
	modules *modules.Manager
	schemas map[Name]*gojsonschema.Schema
}

// NewDispatcher wires the dispatcher to its handlers and compiles the
// argument schemas up front.
func NewDispatcher(st *store.Store, runner *sandbox.Runner, mods *modules.Manager) (*Dispatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("sandbox runner is required")
	}
	if mods == nil {
		return nil, fmt.Errorf("module manager is required")
	}

	schemas := make(map[Name]*gojsonschema.Schema)
	for _, def := range Definitions() {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
		}
		schemas[def.Name] = schema
	}

	return &Dispatcher{store: st, runner: runner, modules: mods, schemas: schemas}, nil
}

// Dispatch executes a tool by name and serializes the result. It never
// panics and never returns an error to the loop; every failure mode is a
// structured payload the model can read.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) (payload string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", name).Interface("panic", r).Msg("Tool handler panicked")
			payload = serialize(map[string]interface{}{
				"error": fmt.Sprintf("internal error in tool %s: %v", name, r),
			})
		}
	}()

	if args == nil {
		args = map[string]interface{}{}
	}

	tool := Name(name)
	if schema, ok := d.schemas[tool]; ok {
		if errMsg := validateArgs(schema, args); errMsg != "" {
			return serialize(map[string]interface{}{"error": errMsg})
		}
	}

	log.Debug().Str("tool", name).Msg("Dispatching tool")

	switch tool {
	case NameExecuteQuery:
		query, _ := args["query"].(string)
		return serialize(d.store.Query(ctx, query))

	case NameExecuteScript:
		code, _ := args["code"].(string)
		explanation, _ := args["explanation"].(string)
		return serialize(d.runner.Run(ctx, code, explanation))

	case NameCreateModule:
		name, _ := args["name"].(string)
		description, _ := args["description"].(string)
		code, _ := args["code"].(string)
		return serialize(d.modules.Create(ctx, name, description, code, toStringSlice(args["functions"])))

	case NameListModules:
		reg, err := d.modules.List()
		if err != nil {
			return serialize(map[string]interface{}{"error": err.Error()})
		}
		return serialize(reg)

	default:
		return serialize(map[string]interface{}{
			"error": fmt.Sprintf("Unknown tool: %s", name),
		})
	}
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) string {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Sprintf("failed to validate tool arguments: %v", err)
	}
	if result.Valid() {
		return ""
	}

	msg := "invalid tool arguments:"
	for _, desc := range result.Errors() {
		msg += " " + desc.String() + ";"
	}
	return msg
}

// serialize renders a result to indented JSON. Types round-trip: numbers stay
// numbers and nil values stay null.
func serialize(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to serialize tool result: %v"}`, err)
	}
	return string(data)
}

func toStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
