package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raka/paceline/pkg/agent"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Complete(context.Context, agent.Request) (*agent.Response, error) {
	return &agent.Response{
		StopReason: agent.StopEndTurn,
		Content:    []agent.ContentBlock{{Type: agent.BlockText, Text: "ok"}},
	}, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(context.Context, string, map[string]interface{}) string {
	return "{}"
}

func newTestFactory(t *testing.T) Factory {
	t.Helper()
	return func(key string) (*agent.Session, error) {
		return agent.NewSession(agent.SessionConfig{
			Provider:   stubProvider{},
			Dispatcher: stubDispatcher{},
			Model:      "claude-sonnet-4-20250514",
		})
	}
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 0)
	require.NoError(t, err)

	a, err := r.GetOrCreate("user-1")
	require.NoError(t, err)
	b, err := r.GetOrCreate("user-1")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())
}

func TestGetOrCreateSeparateKeys(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 0)
	require.NoError(t, err)

	a, err := r.GetOrCreate("user-1")
	require.NoError(t, err)
	b, err := r.GetOrCreate("user-2")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, r.Keys())
}

func TestGetOrCreateValidation(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 0)
	require.NoError(t, err)

	for _, key := range []string{"", "a/b", "a\\b", "a\x00b"} {
		_, err := r.GetOrCreate(key)
		assert.Error(t, err, "key %q should be rejected", key)
	}
}

func TestFactoryErrorPropagates(t *testing.T) {
	r, err := NewRegistry(func(string) (*agent.Session, error) {
		return nil, fmt.Errorf("no provider configured")
	}, 0, 0)
	require.NoError(t, err)

	_, err = r.GetOrCreate("user-1")
	assert.ErrorContains(t, err, "no provider configured")
	assert.Equal(t, 0, r.Len())
}

func TestClearEmptiesHistoryKeepsSession(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 0)
	require.NoError(t, err)

	a, err := r.GetOrCreate("user-1")
	require.NoError(t, err)

	_, err = a.Ask(context.Background(), "how far did I ride?", nil)
	require.NoError(t, err)
	require.NotEmpty(t, a.History())

	r.Clear("user-1")
	assert.Equal(t, 1, r.Len())

	// Same session, empty history, last usage record intact.
	b, err := r.GetOrCreate("user-1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Empty(t, b.History())
	assert.NotNil(t, b.LastUsage())

	// Clearing an unknown key is a no-op.
	r.Clear("user-unknown")
}

func TestEvictIdle(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), time.Hour, 0)
	require.NoError(t, err)

	_, err = r.GetOrCreate("stale")
	require.NoError(t, err)
	_, err = r.GetOrCreate("fresh")
	require.NoError(t, err)

	r.mu.Lock()
	r.sessions["stale"].lastUsed = time.Now().Add(-2 * time.Hour)
	r.mu.Unlock()

	evicted := r.EvictIdle()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, []string{"fresh"}, r.Keys())
}

func TestLRUEvictionWhenFull(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 2)
	require.NoError(t, err)

	_, err = r.GetOrCreate("first")
	require.NoError(t, err)
	_, err = r.GetOrCreate("second")
	require.NoError(t, err)

	r.mu.Lock()
	r.sessions["first"].lastUsed = time.Now().Add(-time.Minute)
	r.mu.Unlock()

	_, err = r.GetOrCreate("third")
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{"second", "third"}, r.Keys())
}

func TestLookupRefreshesLastUsed(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), time.Hour, 0)
	require.NoError(t, err)

	_, err = r.GetOrCreate("user-1")
	require.NoError(t, err)

	r.mu.Lock()
	r.sessions["user-1"].lastUsed = time.Now().Add(-2 * time.Hour)
	r.mu.Unlock()

	// A lookup counts as use, so the sweep keeps it.
	_, err = r.GetOrCreate("user-1")
	require.NoError(t, err)

	assert.Equal(t, 0, r.EvictIdle())
}

func TestStartStop(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 0)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
	require.NoError(t, r.Stop())
	assert.Error(t, r.Stop())
}

func TestSweepRestarts(t *testing.T) {
	r, err := NewRegistry(newTestFactory(t), 0, 0)
	require.NoError(t, err)

	require.NoError(t, r.Start())
	require.NoError(t, r.Stop())

	// A second Start gets a fresh stop channel; the new sweep goroutine
	// must not observe the closed one from the previous cycle.
	require.NoError(t, r.Start())
	select {
	case <-r.stopCh:
		t.Fatal("stop channel from a stopped cycle is still in use")
	default:
	}
	require.NoError(t, r.Stop())
}
