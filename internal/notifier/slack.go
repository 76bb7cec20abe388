package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/retry"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"golang.org/x/time/rate"
)

// SlackNotifier posts home-run highlights to a Slack webhook
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *retry.RetryPolicy
	logger     *slog.Logger
}

// NewSlackNotifier creates a notifier that sends at most perMinute messages per minute
func NewSlackNotifier(webhookURL string, perMinute int, logger *slog.Logger) *SlackNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if perMinute <= 0 {
		perMinute = 1
	}

	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		retry:   retry.NewRetryPolicy(3, 500*time.Millisecond),
		logger:  logger.With("component", "slack_notifier"),
	}
}

// SendHighlight posts one found event. Not-found results are ignored.
func (s *SlackNotifier) SendHighlight(ctx context.Context, match *models.EventMatch) error {
	if !match.Found {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack rate limit wait: %w", err)
	}

	start := time.Now()
	err := s.retry.Execute(ctx, func(ctx context.Context) error {
		return s.post(ctx, formatMessage(match))
	})
	if err != nil {
		return err
	}

	s.logger.Info("slack highlight sent",
		"game_id", match.GameID,
		"event_id", match.EventID,
		"latency_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]interface{}{"text": text})
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to marshal Slack payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("Slack webhook returned status %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("Slack webhook returned status %d", resp.StatusCode))
	}
}

func formatMessage(match *models.EventMatch) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("⚾ *HOME RUN* | %s\n\n", match.Team))
	if match.Batter != "" {
		sb.WriteString(fmt.Sprintf("*Batter:* %s\n", match.Batter))
	}
	sb.WriteString(fmt.Sprintf("*Inning:* %s %d\n", capitalize(match.Half), match.Inning))
	if match.Description != "" {
		sb.WriteString(fmt.Sprintf("\n> %s\n", match.Description))
	}
	sb.WriteString(fmt.Sprintf("\n_Game %s | at-bat %d | %s_",
		match.GameID, match.AtBatIndex, match.DetectedAt.Format("15:04:05")))

	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
