package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxQueryRows caps the rows returned to the model so tool-result payloads
// stay bounded for the context window.
const maxQueryRows = 100

// Row maps column names to scalar values. Absent values stay nil so they
// serialize to JSON null rather than being dropped.
type Row map[string]interface{}

// QueryResult is the bounded tabular result of one read-only query. Exactly
// one of Error or Results is meaningful.
type QueryResult struct {
	Results    []Row  `json:"results"`
	TotalCount int    `json:"total_count"`
	Truncated  bool   `json:"truncated,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Query executes a single SELECT statement against the dataset. Any input
// whose trimmed, case-folded prefix is not SELECT is rejected before touching
// the database. Execution failures are returned inside the result, never as
// an error, so the model can read them and retry.
func (s *Store) Query(ctx context.Context, query string) QueryResult {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return QueryResult{Error: "Only SELECT queries are allowed"}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return QueryResult{Error: err.Error()}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{Error: err.Error()}
	}

	results := []Row{}
	total := 0

	for rows.Next() {
		total++

		// Past the cap we still drain the cursor to learn the true total.
		if total > maxQueryRows {
			continue
		}

		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{Error: err.Error()}
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeScalar(values[i])
		}
		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return QueryResult{Error: err.Error()}
	}

	log.Debug().
		Int("rows", total).
		Dur("duration", time.Since(start)).
		Msg("Query executed")

	result := QueryResult{Results: results, TotalCount: total}
	if total > maxQueryRows {
		result.Truncated = true
		result.Message = fmt.Sprintf("Showing first %d of %d results", maxQueryRows, total)
	}
	return result
}

// normalizeScalar converts driver values to JSON-friendly types: []byte
// becomes string, numbers stay numbers, NULL stays nil.
func normalizeScalar(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
