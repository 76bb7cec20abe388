package mlb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://statsapi.mlb.com"

	// SportIDMLB is the StatsAPI sport identifier for Major League Baseball
	SportIDMLB = 1
)

// Client handles MLB StatsAPI requests
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// New creates a new StatsAPI client. requestsPerSecond <= 0 disables throttling.
func New(baseURL string, timeout time.Duration, requestsPerSecond float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:   limiter,
		userAgent: "Mozilla/5.0 (compatible; FortunaReplay/1.0)",
	}
}

// LoadTimeline fetches the live feed of a game and converts it into typed plays
func (c *Client) LoadTimeline(ctx context.Context, gameID string) (*models.TimelineData, error) {
	endpoint := fmt.Sprintf("%s/api/v1.1/game/%s/feed/live", c.baseURL, url.PathEscape(gameID))

	feed, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching live feed %s: %w", gameID, err)
	}

	data, err := ParseLiveFeed(gameID, feed)
	if err != nil {
		return nil, fmt.Errorf("parsing live feed %s: %w", gameID, err)
	}

	return data, nil
}

// FetchSchedule returns the MLB games on date that involve teamID (0 = all teams)
func (c *Client) FetchSchedule(ctx context.Context, date time.Time, teamID int) ([]models.ScheduledGame, error) {
	day := date.Format("2006-01-02")

	params := url.Values{}
	params.Set("sportId", fmt.Sprint(SportIDMLB))
	params.Set("startDate", day)
	params.Set("endDate", day)
	endpoint := fmt.Sprintf("%s/api/v1/schedule?%s", c.baseURL, params.Encode())

	schedule, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching schedule %s: %w", day, err)
	}

	return ParseSchedule(schedule, teamID), nil
}

// fetch makes a throttled HTTP GET request and returns parsed JSON.
// Every failure wraps contracts.ErrNotFound or contracts.ErrUpstreamUnavailable.
func (c *Client) fetch(ctx context.Context, endpoint string) (map[string]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", contracts.ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: making request: %v", contracts.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: status=%d", contracts.ErrNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status=%d, body=%s", contracts.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", contracts.ErrUpstreamUnavailable, err)
	}

	return result, nil
}
