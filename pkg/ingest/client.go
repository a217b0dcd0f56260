// Package ingest pulls activities from the Strava-compatible API into the
// local dataset: paginated fetch, OAuth token refresh, and a cron-driven
// sync job.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://www.strava.com/api/v3"

	// PageSize is the per_page value used for activity listing. A short
	// page signals the final one.
	PageSize = 100

	rateLimitWait      = 60 * time.Second
	maxRateLimitWaits  = 5
	activitiesEndpoint = "/athlete/activities"
)

// TokenSource yields a valid access token, refreshing when needed.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource wrapping a fixed token.
type StaticToken string

// AccessToken returns the wrapped token.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	return string(t), nil
}

// Activity is one summary activity. Raw preserves the API payload exactly
// for the raw_json column; decoded fields feed the typed columns.
type Activity struct {
	ID     int64
	Raw    json.RawMessage
	fields map[string]interface{}
}

// Field returns a decoded top-level field, or nil when absent. Absent
// values become NULL columns.
func (a Activity) Field(key string) interface{} {
	return a.fields[key]
}

// MapField returns a field nested under the "map" object, or nil.
func (a Activity) MapField(key string) interface{} {
	m, ok := a.fields["map"].(map[string]interface{})
	if !ok {
		return nil
	}
	return m[key]
}

// Client fetches activities from the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger

	// sleep is swapped out in tests so rate-limit waits don't stall them.
	sleep func(ctx context.Context, d time.Duration) error
}

// sleepCtx waits for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewClient creates an API client.
func NewClient(baseURL string, tokens TokenSource, logger zerolog.Logger) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     logger,
		sleep:      sleepCtx,
	}, nil
}

// FetchActivities fetches one page of activities. A zero after fetches from
// the beginning; otherwise only activities starting after the given epoch
// second are returned. HTTP 429 waits out the rate-limit window and retries.
func (c *Client) FetchActivities(ctx context.Context, page int, after int64) ([]Activity, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(PageSize))
	params.Set("page", strconv.Itoa(page))
	if after > 0 {
		params.Set("after", strconv.FormatInt(after, 10))
	}

	endpoint := c.baseURL + activitiesEndpoint + "?" + params.Encode()

	for attempt := 0; ; attempt++ {
		body, status, err := c.get(ctx, endpoint, token)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			return decodeActivities(body)

		case status == http.StatusTooManyRequests:
			if attempt >= maxRateLimitWaits {
				return nil, fmt.Errorf("rate limited after %d waits", attempt)
			}
			c.logger.Warn().Int("page", page).Msg("Rate limited, waiting before retry")
			if err := c.sleep(ctx, rateLimitWait); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("API error %d: %s", status, string(body))
		}
	}
}

func (c *Client) get(ctx context.Context, endpoint, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func decodeActivities(body []byte) ([]Activity, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode activity page: %w", err)
	}

	activities := make([]Activity, 0, len(raws))
	for _, raw := range raws {
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode activity: %w", err)
		}

		id, ok := fields["id"].(float64)
		if !ok {
			return nil, fmt.Errorf("activity missing numeric id")
		}

		activities = append(activities, Activity{
			ID:     int64(id),
			Raw:    raw,
			fields: fields,
		})
	}

	return activities, nil
}
