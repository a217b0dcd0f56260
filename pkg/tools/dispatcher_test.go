package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raka/paceline/pkg/modules"
	"github.com/raka/paceline/pkg/sandbox"
	"github.com/raka/paceline/pkg/store"
)

func setupDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "activities.db")

	rw, err := store.OpenReadWrite(dbPath)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err := rw.DB().Exec("INSERT INTO activities (id, name, type, distance) VALUES (?, ?, 'Run', ?)", i, "Run", float64(i*1000))
		require.NoError(t, err)
	}
	require.NoError(t, rw.Close())

	ro, err := store.OpenReadOnly(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	runner, err := sandbox.NewRunner(sandbox.Config{DBPath: dbPath, WorkDir: dir})
	require.NoError(t, err)

	mods, err := modules.NewManager(filepath.Join(dir, "modules"), nil)
	require.NoError(t, err)

	d, err := NewDispatcher(ro, runner, mods)
	require.NoError(t, err)
	return d
}

func decode(t *testing.T, payload string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &out))
	return out
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	require.Len(t, defs, 4)

	names := map[Name]bool{}
	for _, d := range defs {
		names[d.Name] = true
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.InputSchema["type"])
	}
	assert.True(t, names[NameExecuteQuery])
	assert.True(t, names[NameExecuteScript])
	assert.True(t, names[NameCreateModule])
	assert.True(t, names[NameListModules])
}

func TestDispatchExecuteQuery(t *testing.T) {
	d := setupDispatcher(t)

	payload := d.Dispatch(context.Background(), "execute_query", map[string]interface{}{
		"query": "SELECT COUNT(*) AS n FROM activities",
	})
	result := decode(t, payload)

	require.NotContains(t, result, "error")
	rows := result["results"].([]interface{})
	require.Len(t, rows, 1)

	// Numbers round-trip as numbers, not strings.
	n := rows[0].(map[string]interface{})["n"]
	assert.IsType(t, float64(0), n)
	assert.EqualValues(t, 3, n)
}

func TestDispatchRejectedQuery(t *testing.T) {
	d := setupDispatcher(t)

	payload := d.Dispatch(context.Background(), "execute_query", map[string]interface{}{
		"query": "DELETE FROM activities",
	})
	result := decode(t, payload)
	assert.Equal(t, "Only SELECT queries are allowed", result["error"])
}

func TestDispatchUnknownTool(t *testing.T) {
	d := setupDispatcher(t)

	payload := d.Dispatch(context.Background(), "fly_to_moon", nil)
	result := decode(t, payload)
	assert.Equal(t, "Unknown tool: fly_to_moon", result["error"])
}

func TestDispatchValidatesArguments(t *testing.T) {
	d := setupDispatcher(t)

	t.Run("missing required argument", func(t *testing.T) {
		payload := d.Dispatch(context.Background(), "execute_query", map[string]interface{}{})
		result := decode(t, payload)
		assert.Contains(t, result["error"], "invalid tool arguments")
	})

	t.Run("wrong argument type", func(t *testing.T) {
		payload := d.Dispatch(context.Background(), "execute_query", map[string]interface{}{
			"query": 42,
		})
		result := decode(t, payload)
		assert.Contains(t, result["error"], "invalid tool arguments")
	})
}

func TestDispatchListModules(t *testing.T) {
	d := setupDispatcher(t)

	payload := d.Dispatch(context.Background(), "list_modules", map[string]interface{}{})
	result := decode(t, payload)
	assert.Equal(t, []interface{}{}, result["modules"])

	// Identical payload on a second call with no intervening promotion.
	assert.Equal(t, payload, d.Dispatch(context.Background(), "list_modules", map[string]interface{}{}))
}

func TestDispatchCreateThenListModules(t *testing.T) {
	d := setupDispatcher(t)

	payload := d.Dispatch(context.Background(), "create_module", map[string]interface{}{
		"name":        "weekly_mileage",
		"description": "Weekly mileage rollup",
		"code":        "def weekly(): pass",
		"functions":   []interface{}{"weekly()"},
	})
	created := decode(t, payload)
	assert.Equal(t, true, created["success"])
	assert.Equal(t, "weekly_mileage.py", created["file"])

	listed := decode(t, d.Dispatch(context.Background(), "list_modules", map[string]interface{}{}))
	mods := listed["modules"].([]interface{})
	require.Len(t, mods, 1)
	assert.Equal(t, "weekly_mileage", mods[0].(map[string]interface{})["name"])
}

func TestDispatchNeverPanics(t *testing.T) {
	d := setupDispatcher(t)
	d.store = nil // force a nil-pointer panic inside the handler

	payload := d.Dispatch(context.Background(), "execute_query", map[string]interface{}{
		"query": "SELECT 1",
	})
	result := decode(t, payload)
	assert.Contains(t, result["error"], "internal error")
}
