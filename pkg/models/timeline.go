package models

import "time"

// Lifecycle represents the replay state of a timeline
type Lifecycle string

const (
	LifecycleUninitialized Lifecycle = "UNINITIALIZED"
	LifecycleLoading       Lifecycle = "LOADING"
	LifecycleActive        Lifecycle = "ACTIVE"
	LifecycleComplete      Lifecycle = "COMPLETE"
)

// TeamRef identifies one of the two teams in a game
type TeamRef struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
}

// Teams holds the home and away labels of a game
type Teams struct {
	Home TeamRef `json:"home"`
	Away TeamRef `json:"away"`
}

// ForSide returns the team on the given side
func (t Teams) ForSide(side Side) TeamRef {
	if side == SideHome {
		return t.Home
	}
	return t.Away
}

// SideOf returns the side a team ID plays on in this game
func (t Teams) SideOf(teamID int) (Side, bool) {
	switch {
	case teamID != 0 && t.Home.ID == teamID:
		return SideHome, true
	case teamID != 0 && t.Away.ID == teamID:
		return SideAway, true
	default:
		return "", false
	}
}

// TimelineData is what a loader returns for a completed game
type TimelineData struct {
	GameID string `json:"game_id"`
	Plays  []Play `json:"plays"`
	Teams  Teams  `json:"teams"`
}

// Timeline is the summary of one replay session
type Timeline struct {
	GameID      string    `json:"game_id"`
	TotalEvents int       `json:"total_events"`
	TotalPlays  int       `json:"total_plays"`
	Cursor      int       `json:"cursor"`
	Teams       Teams     `json:"teams"`
	Lifecycle   Lifecycle `json:"lifecycle"`
	Generation  int64     `json:"generation"` // bumps on every (re)load
	LoadedAt    time.Time `json:"loaded_at"`
}

// RevealedView is the play list as an observer sees it at a cursor value
type RevealedView struct {
	GameID      string    `json:"game_id"`
	Teams       Teams     `json:"teams"`
	Plays       []Play    `json:"all_plays"`
	Cursor      int       `json:"cursor"`
	TotalEvents int       `json:"total_events"`
	Lifecycle   Lifecycle `json:"status"`
}

// LastPlay returns the most recent revealed play
func (v *RevealedView) LastPlay() (Play, bool) {
	if v == nil || len(v.Plays) == 0 {
		return Play{}, false
	}
	return v.Plays[len(v.Plays)-1], true
}

// Complete reports whether the view reached the end of the timeline
func (v *RevealedView) Complete() bool {
	return v != nil && v.Lifecycle == LifecycleComplete
}
