package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/lib/pq"
)

// Schema creates the highlight log table
const Schema = `
CREATE TABLE IF NOT EXISTS replay_highlights (
	id           BIGSERIAL PRIMARY KEY,
	game_id      TEXT        NOT NULL,
	event_id     TEXT        NOT NULL,
	watch_id     TEXT        NOT NULL,
	at_bat_index INTEGER     NOT NULL,
	inning       INTEGER     NOT NULL,
	half_inning  TEXT        NOT NULL,
	team         TEXT        NOT NULL,
	batter       TEXT        NOT NULL DEFAULT '',
	description  TEXT        NOT NULL DEFAULT '',
	detected_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (game_id, event_id)
)`

// HighlightStore persists found events to Postgres
type HighlightStore struct {
	db *sql.DB
}

// NewHighlightStore creates a new highlight store
func NewHighlightStore(db *sql.DB) *HighlightStore {
	return &HighlightStore{
		db: db,
	}
}

// Migrate creates the table if needed
func (s *HighlightStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create highlights table: %w", err)
	}
	return nil
}

// Record inserts a highlight. It returns false when the event was already archived.
func (s *HighlightStore) Record(ctx context.Context, match *models.EventMatch) (bool, error) {
	query := `
		INSERT INTO replay_highlights (
			game_id, event_id, watch_id, at_bat_index, inning,
			half_inning, team, batter, description, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (game_id, event_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		match.GameID,
		match.EventID,
		match.WatchID,
		match.AtBatIndex,
		match.Inning,
		match.Half,
		match.Team,
		match.Batter,
		match.Description,
		match.DetectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert highlight %s/%s: %w", match.GameID, match.EventID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByGame returns archived highlights for a game in at-bat order
func (s *HighlightStore) ListByGame(ctx context.Context, gameID string) ([]models.EventMatch, error) {
	query := `
		SELECT watch_id, game_id, event_id, at_bat_index, inning,
		       half_inning, team, batter, description, detected_at
		FROM replay_highlights
		WHERE game_id = $1
		ORDER BY at_bat_index ASC
	`

	rows, err := s.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to query highlights: %w", err)
	}
	defer rows.Close()

	highlights := make([]models.EventMatch, 0)
	for rows.Next() {
		var m models.EventMatch
		if err := rows.Scan(
			&m.WatchID, &m.GameID, &m.EventID, &m.AtBatIndex, &m.Inning,
			&m.Half, &m.Team, &m.Batter, &m.Description, &m.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan highlight: %w", err)
		}
		m.Found = true
		highlights = append(highlights, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating highlights: %w", err)
	}
	return highlights, nil
}

// IsConnectionError reports whether err is a Postgres connection-class failure
// (SQLSTATE class 08) that is worth retrying
func IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}
	return errors.Is(err, sql.ErrConnDone)
}
