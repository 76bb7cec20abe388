package models

import "time"

// AtBatDelta is the formatted play-by-play entry for one completed at-bat
type AtBatDelta struct {
	GameID     string      `json:"game_id"`
	AtBatIndex int         `json:"at_bat_index"`
	Game       FormattedAB `json:"game"`
	EmittedAt  time.Time   `json:"emitted_at"`
}

// FormattedAB is the consumer-facing body of an at-bat delta
type FormattedAB struct {
	Inning    InningLabel `json:"inning"`
	Score     Scoreline   `json:"score"`
	GameEvent string      `json:"gameEvent"`
}

// InningLabel identifies the half-inning of an at-bat
type InningLabel struct {
	Half   string `json:"half"`
	Number int    `json:"inning#"`
}

// Scoreline carries the running score after an at-bat
type Scoreline struct {
	Away TeamScore `json:"awayScore"`
	Home TeamScore `json:"homeScore"`
}

// TeamScore pairs a team label with its running score
type TeamScore struct {
	Team  string `json:"team"`
	Score int    `json:"score"`
}

// EventMatch is the result of watching a timeline for a specific event
type EventMatch struct {
	WatchID     string    `json:"watch_id"`
	GameID      string    `json:"game_id"`
	Found       bool      `json:"found"`
	EventID     string    `json:"event_id,omitempty"`
	AtBatIndex  int       `json:"at_bat_index,omitempty"`
	Inning      int       `json:"inning,omitempty"`
	Half        string    `json:"half,omitempty"`
	Team        string    `json:"team,omitempty"`
	Batter      string    `json:"batter,omitempty"`
	Description string    `json:"description,omitempty"`
	Message     string    `json:"message,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}

// HomeRun is one home run found in a revealed view
type HomeRun struct {
	GameID      string `json:"game_id"`
	AtBatIndex  int    `json:"at_bat_index"`
	Inning      int    `json:"inning"`
	Half        string `json:"half"`
	Team        string `json:"team"`
	Batter      string `json:"batter"`
	Description string `json:"description"`
}

// ScheduledGame is one entry of a team's schedule on a date
type ScheduledGame struct {
	GameID    string    `json:"game_id"`
	Status    string    `json:"status"`
	Home      TeamRef   `json:"home"`
	Away      TeamRef   `json:"away"`
	HomeScore int       `json:"home_score"`
	AwayScore int       `json:"away_score"`
	StartTime time.Time `json:"start_time"`
}
