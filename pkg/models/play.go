package models

// Half-inning labels as reported by the upstream feed
const (
	HalfTop    = "top"
	HalfBottom = "bottom"
)

// Side identifies which team is batting or being watched
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// EventTypeHomeRun is the outcome classification for a home run
const EventTypeHomeRun = "home_run"

// PlayerRef is a lightweight reference to a participant
type PlayerRef struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
}

// About holds the descriptive metadata of a play
type About struct {
	AtBatIndex    int    `json:"at_bat_index"`
	HalfInning    string `json:"half_inning"` // "top" or "bottom"
	Inning        int    `json:"inning"`
	IsComplete    bool   `json:"is_complete"`
	IsScoringPlay bool   `json:"is_scoring_play"`
}

// Matchup holds the participants of a play
type Matchup struct {
	Batter  PlayerRef `json:"batter"`
	Pitcher PlayerRef `json:"pitcher"`
}

// PlayResult is the outcome record of a concluded play
type PlayResult struct {
	Type        string `json:"type"`
	Event       string `json:"event"`      // "Home Run", "Strikeout"
	EventType   string `json:"event_type"` // "home_run", "strikeout"
	Description string `json:"description"`
	RBI         int    `json:"rbi"`
	AwayScore   int    `json:"away_score"`
	HomeScore   int    `json:"home_score"`
	IsOut       bool   `json:"is_out"`
}

// Count is the ball/strike/out count after an event
type Count struct {
	Balls   int `json:"balls"`
	Strikes int `json:"strikes"`
	Outs    int `json:"outs"`
}

// Event is one atomic, uniquely identified unit within a play (usually a pitch)
type Event struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Type        string `json:"type"` // "pitch", "action", "pickoff"
	IsPitch     bool   `json:"is_pitch"`
	Description string `json:"description"`
	Count       Count  `json:"count"`
}

// Play is one at-bat: an ordered group of events plus an optional outcome.
// A play is resolved once Result is set.
type Play struct {
	About   About       `json:"about"`
	Matchup Matchup     `json:"matchup"`
	Result  *PlayResult `json:"result,omitempty"`
	Events  []Event     `json:"events"`
}

// Resolved reports whether the play has concluded
func (p Play) Resolved() bool {
	return p.Result != nil
}

// Clone returns a copy of the play that shares no memory with the original
func (p Play) Clone() Play {
	out := p
	out.Events = make([]Event, len(p.Events))
	copy(out.Events, p.Events)
	if p.Result != nil {
		r := *p.Result
		out.Result = &r
	}
	return out
}

// Truncate returns a copy of the play holding only its first n events.
// A truncated play has not concluded yet, so its outcome is dropped.
func (p Play) Truncate(n int) Play {
	if n < 0 {
		n = 0
	}
	if n > len(p.Events) {
		n = len(p.Events)
	}

	out := p
	out.Events = make([]Event, n)
	copy(out.Events, p.Events[:n])
	out.Result = nil
	out.About.IsComplete = false
	return out
}

// BattingSide returns the side at bat for a half-inning label.
// The away team bats in the top half, the home team in the bottom half.
func BattingSide(halfInning string) (Side, bool) {
	switch halfInning {
	case HalfTop:
		return SideAway, true
	case HalfBottom:
		return SideHome, true
	default:
		return "", false
	}
}

// CountEvents returns the total number of atomic events across plays
func CountEvents(plays []Play) int {
	total := 0
	for _, p := range plays {
		total += len(p.Events)
	}
	return total
}
