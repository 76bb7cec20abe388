package replayhost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/replay"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
)

// Client reads a replay served by another game-replay-service over HTTP.
// Each View call advances the remote cursor by one event.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new replay host client
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// View implements contracts.ViewSource against GET /replay/game/{id}/live
func (c *Client) View(ctx context.Context, gameID string) (*models.RevealedView, error) {
	endpoint := fmt.Sprintf("%s/replay/game/%s/live", c.baseURL, url.PathEscape(gameID))

	var view models.RevealedView
	if err := c.do(ctx, http.MethodGet, endpoint, &view); err != nil {
		return nil, fmt.Errorf("replay view %s: %w", gameID, err)
	}
	return &view, nil
}

// Init starts (or with reset, restarts) a remote replay
func (c *Client) Init(ctx context.Context, gameID string, reset bool) (*models.Timeline, error) {
	endpoint := fmt.Sprintf("%s/replay/game/%s/init?reset=%t", c.baseURL, url.PathEscape(gameID), reset)

	var tl models.Timeline
	if err := c.do(ctx, http.MethodPost, endpoint, &tl); err != nil {
		return nil, fmt.Errorf("replay init %s: %w", gameID, err)
	}
	return &tl, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", contracts.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", contracts.ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", contracts.ErrNotFound, errorMessage(body))
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", replay.ErrStaleSession, errorMessage(body))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d: %s", contracts.ErrUpstreamUnavailable, resp.StatusCode, errorMessage(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", contracts.ErrUpstreamUnavailable, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return string(body)
}
