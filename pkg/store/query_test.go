package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, activityCount int) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "activities.db")
	rw, err := OpenReadWrite(path)
	require.NoError(t, err)

	for i := 1; i <= activityCount; i++ {
		_, err := rw.DB().Exec(
			"INSERT INTO activities (id, name, type, distance, start_date_local) VALUES (?, ?, ?, ?, ?)",
			i, fmt.Sprintf("Morning Run %d", i), "Run", float64(i)*1000, fmt.Sprintf("2025-01-%02dT08:00:00Z", (i%28)+1),
		)
		require.NoError(t, err)
	}
	require.NoError(t, rw.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	t.Cleanup(func() { ro.Close() })

	return ro
}

func TestQueryRejectsNonSelect(t *testing.T) {
	s := setupTestStore(t, 3)

	cases := []string{
		"DELETE FROM activities",
		"UPDATE activities SET name = 'x'",
		"DROP TABLE activities",
		"INSERT INTO activities (id) VALUES (99)",
		"  drop table activities",
	}

	for _, q := range cases {
		t.Run(q, func(t *testing.T) {
			result := s.Query(context.Background(), q)
			assert.Equal(t, "Only SELECT queries are allowed", result.Error)
			assert.Empty(t, result.Results)
		})
	}

	// The rejection performs no dataset access, so the data is intact.
	check := s.Query(context.Background(), "SELECT COUNT(*) AS n FROM activities")
	require.Empty(t, check.Error)
	assert.EqualValues(t, 3, check.Results[0]["n"])
}

func TestQueryAcceptsSelectCaseInsensitive(t *testing.T) {
	s := setupTestStore(t, 2)

	for _, q := range []string{
		"SELECT id FROM activities",
		"select id from activities",
		"  Select id From activities  ",
	} {
		result := s.Query(context.Background(), q)
		assert.Empty(t, result.Error)
		assert.Equal(t, 2, result.TotalCount)
	}
}

func TestQueryTruncation(t *testing.T) {
	t.Run("over cap returns first 100 with true total", func(t *testing.T) {
		s := setupTestStore(t, 150)

		result := s.Query(context.Background(), "SELECT id FROM activities ORDER BY id")
		require.Empty(t, result.Error)
		assert.Len(t, result.Results, 100)
		assert.Equal(t, 150, result.TotalCount)
		assert.True(t, result.Truncated)
		assert.Equal(t, "Showing first 100 of 150 results", result.Message)
		assert.EqualValues(t, 1, result.Results[0]["id"])
	})

	t.Run("under cap returns everything untruncated", func(t *testing.T) {
		s := setupTestStore(t, 5)

		result := s.Query(context.Background(), "SELECT id FROM activities")
		require.Empty(t, result.Error)
		assert.Len(t, result.Results, 5)
		assert.Equal(t, 5, result.TotalCount)
		assert.False(t, result.Truncated)
		assert.Empty(t, result.Message)
	})

	t.Run("exactly at cap is not truncated", func(t *testing.T) {
		s := setupTestStore(t, 100)

		result := s.Query(context.Background(), "SELECT id FROM activities")
		require.Empty(t, result.Error)
		assert.Len(t, result.Results, 100)
		assert.False(t, result.Truncated)
	})
}

func TestQueryErrorsReturnedInResult(t *testing.T) {
	s := setupTestStore(t, 1)

	t.Run("syntax error", func(t *testing.T) {
		result := s.Query(context.Background(), "SELECT FROM WHERE")
		assert.NotEmpty(t, result.Error)
	})

	t.Run("missing relation", func(t *testing.T) {
		result := s.Query(context.Background(), "SELECT * FROM no_such_table")
		assert.Contains(t, result.Error, "no_such_table")
	})
}

func TestQueryNullAndTextValues(t *testing.T) {
	s := setupTestStore(t, 1)

	result := s.Query(context.Background(),
		"SELECT name, average_heartrate FROM activities WHERE id = 1")
	require.Empty(t, result.Error)
	require.Len(t, result.Results, 1)

	assert.Equal(t, "Morning Run 1", result.Results[0]["name"])
	assert.Nil(t, result.Results[0]["average_heartrate"])
}

func TestReadOnlyEnforced(t *testing.T) {
	s := setupTestStore(t, 1)

	// Even if the prefix check were bypassed, the handle is opened mode=ro.
	_, err := s.db.Exec("DELETE FROM activities")
	assert.Error(t, err)
}

func TestStats(t *testing.T) {
	s := setupTestStore(t, 3)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.ActivityCount)
	assert.Len(t, stats.FirstDate, 10)
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}
