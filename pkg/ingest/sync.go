package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/raka/paceline/pkg/store"
)

// Result summarizes one sync run.
type Result struct {
	RunID   string
	Added   int
	Updated int
}

// Syncer pulls activity pages into the dataset. Every run is recorded in
// sync_log, including failed ones.
type Syncer struct {
	client *Client
	store  *store.Store
	logger zerolog.Logger

	// pagePause spaces out page fetches; swapped out in tests.
	pagePause func()
}

// NewSyncer creates a syncer writing into st, which must be a read-write
// store.
func NewSyncer(client *Client, st *store.Store, logger zerolog.Logger) (*Syncer, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	return &Syncer{
		client: client,
		store:  st,
		logger: logger,
		pagePause: func() {
			time.Sleep(500 * time.Millisecond)
		},
	}, nil
}

// Sync fetches all activity pages and upserts them. In incremental mode
// activities already present are skipped; force re-fetches and rewrites
// everything.
func (s *Syncer) Sync(ctx context.Context, force bool) (Result, error) {
	db := s.store.DB()

	existing := make(map[int64]bool)
	if !force {
		rows, err := db.QueryContext(ctx, "SELECT id FROM activities")
		if err != nil {
			return Result{}, fmt.Errorf("failed to list existing activities: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return Result{}, fmt.Errorf("failed to scan activity id: %w", err)
			}
			existing[id] = true
		}
		if err := rows.Close(); err != nil {
			return Result{}, fmt.Errorf("failed to read existing activities: %w", err)
		}
		s.logger.Info().Int("existing", len(existing)).Msg("Found existing activities")
	}

	runID, err := gonanoid.New()
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate run id: %w", err)
	}

	syncType := "incremental"
	if force {
		syncType = "full"
	}

	logRes, err := db.ExecContext(ctx,
		"INSERT INTO sync_log (run_id, sync_type, started_at, status) VALUES (?, ?, ?, ?)",
		runID, syncType, time.Now().Format(time.RFC3339), "running")
	if err != nil {
		return Result{}, fmt.Errorf("failed to record sync start: %w", err)
	}
	logID, err := logRes.LastInsertId()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read sync log id: %w", err)
	}

	result := Result{RunID: runID}
	if err := s.run(ctx, existing, force, &result); err != nil {
		if _, logErr := db.ExecContext(ctx,
			"UPDATE sync_log SET completed_at=?, status=?, error=? WHERE id=?",
			time.Now().Format(time.RFC3339), "error", err.Error(), logID); logErr != nil {
			s.logger.Error().Err(logErr).Msg("Failed to record sync error")
		}
		return result, err
	}

	if _, err := db.ExecContext(ctx,
		"UPDATE sync_log SET activities_added=?, activities_updated=?, completed_at=?, status=? WHERE id=?",
		result.Added, result.Updated, time.Now().Format(time.RFC3339), "success", logID); err != nil {
		return result, fmt.Errorf("failed to record sync completion: %w", err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("added", result.Added).
		Int("updated", result.Updated).
		Msg("Sync complete")

	return result, nil
}

func (s *Syncer) run(ctx context.Context, existing map[int64]bool, force bool, result *Result) error {
	for page := 1; ; page++ {
		s.logger.Debug().Int("page", page).Msg("Fetching activity page")

		activities, err := s.client.FetchActivities(ctx, page, 0)
		if err != nil {
			return err
		}
		if len(activities) == 0 {
			return nil
		}

		for _, activity := range activities {
			if existing[activity.ID] && !force {
				continue
			}

			if err := s.upsert(ctx, activity); err != nil {
				return err
			}

			if existing[activity.ID] {
				result.Updated++
			} else {
				result.Added++
				existing[activity.ID] = true
			}
		}

		s.logger.Debug().
			Int("page_size", len(activities)).
			Int("added", result.Added).
			Int("updated", result.Updated).
			Msg("Processed activity page")

		if len(activities) < PageSize {
			return nil
		}

		s.pagePause()
	}
}

func (s *Syncer) upsert(ctx context.Context, a Activity) error {
	startLatLng, err := json.Marshal(a.Field("start_latlng"))
	if err != nil {
		return fmt.Errorf("failed to encode start_latlng: %w", err)
	}
	endLatLng, err := json.Marshal(a.Field("end_latlng"))
	if err != nil {
		return fmt.Errorf("failed to encode end_latlng: %w", err)
	}

	_, err = s.store.DB().ExecContext(ctx, `
INSERT OR REPLACE INTO activities (
	id, name, type, sport_type, start_date, start_date_local, timezone,
	distance, moving_time, elapsed_time, total_elevation_gain,
	elev_high, elev_low, average_speed, max_speed,
	average_heartrate, max_heartrate, average_cadence,
	average_watts, weighted_average_watts, kilojoules,
	suffer_score, calories, achievement_count, kudos_count,
	comment_count, athlete_count, pr_count,
	start_latlng, end_latlng, summary_polyline,
	gear_id, device_name, raw_json, synced_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Field("name"),
		a.Field("type"),
		a.Field("sport_type"),
		a.Field("start_date"),
		a.Field("start_date_local"),
		a.Field("timezone"),
		a.Field("distance"),
		a.Field("moving_time"),
		a.Field("elapsed_time"),
		a.Field("total_elevation_gain"),
		a.Field("elev_high"),
		a.Field("elev_low"),
		a.Field("average_speed"),
		a.Field("max_speed"),
		a.Field("average_heartrate"),
		a.Field("max_heartrate"),
		a.Field("average_cadence"),
		a.Field("average_watts"),
		a.Field("weighted_average_watts"),
		a.Field("kilojoules"),
		a.Field("suffer_score"),
		a.Field("calories"),
		a.Field("achievement_count"),
		a.Field("kudos_count"),
		a.Field("comment_count"),
		a.Field("athlete_count"),
		a.Field("pr_count"),
		string(startLatLng),
		string(endLatLng),
		a.MapField("summary_polyline"),
		a.Field("gear_id"),
		a.Field("device_name"),
		string(a.Raw),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert activity %d: %w", a.ID, err)
	}
	return nil
}

// LastRun returns the most recent sync_log row, or sql.ErrNoRows when no
// sync has run yet.
func (s *Syncer) LastRun(ctx context.Context) (map[string]interface{}, error) {
	row := s.store.DB().QueryRowContext(ctx, `
SELECT run_id, sync_type, COALESCE(activities_added, 0), COALESCE(activities_updated, 0),
       started_at, COALESCE(completed_at, ''), status, COALESCE(error, '')
FROM sync_log ORDER BY id DESC LIMIT 1`)

	var runID, syncType, startedAt, completedAt, status, errMsg string
	var added, updated int
	if err := row.Scan(&runID, &syncType, &added, &updated, &startedAt, &completedAt, &status, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read sync log: %w", err)
	}

	return map[string]interface{}{
		"run_id":             runID,
		"sync_type":          syncType,
		"activities_added":   added,
		"activities_updated": updated,
		"started_at":         startedAt,
		"completed_at":       completedAt,
		"status":             status,
		"error":              errMsg,
	}, nil
}
