package mlb

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
)

// ParseLiveFeed converts a StatsAPI live feed into typed timeline data.
// Missing fields are defaulted here so nothing downstream has to guess.
func ParseLiveFeed(gameID string, feed map[string]interface{}) (*models.TimelineData, error) {
	liveData, ok := feed["liveData"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: feed has no liveData", contracts.ErrNotFound)
	}

	gameData := extractMap(feed, "gameData")
	teams := extractMap(gameData, "teams")

	data := &models.TimelineData{
		GameID: gameID,
		Teams: models.Teams{
			Home: parseTeam(extractMap(teams, "home")),
			Away: parseTeam(extractMap(teams, "away")),
		},
	}

	allPlays := extractArray(extractMap(liveData, "plays"), "allPlays")
	data.Plays = make([]models.Play, 0, len(allPlays))

	for i, raw := range allPlays {
		playMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		data.Plays = append(data.Plays, parsePlay(playMap, i))
	}

	return data, nil
}

// parsePlay converts one allPlays entry
func parsePlay(raw map[string]interface{}, position int) models.Play {
	about := extractMap(raw, "about")
	matchup := extractMap(raw, "matchup")

	play := models.Play{
		About: models.About{
			AtBatIndex:    position,
			HalfInning:    strings.ToLower(extractString(about, "halfInning")),
			Inning:        extractInt(about, "inning"),
			IsComplete:    extractBool(about, "isComplete"),
			IsScoringPlay: extractBool(about, "isScoringPlay"),
		},
		Matchup: models.Matchup{
			Batter:  parsePlayer(extractMap(matchup, "batter")),
			Pitcher: parsePlayer(extractMap(matchup, "pitcher")),
		},
	}

	if _, ok := about["atBatIndex"]; ok {
		play.About.AtBatIndex = extractInt(about, "atBatIndex")
	}
	if play.About.HalfInning == "" {
		if top, ok := about["isTopInning"].(bool); ok {
			play.About.HalfInning = models.HalfBottom
			if top {
				play.About.HalfInning = models.HalfTop
			}
		}
	}

	result := extractMap(raw, "result")
	if play.About.IsComplete || extractString(result, "eventType") != "" {
		play.About.IsComplete = true
		play.Result = &models.PlayResult{
			Type:        extractString(result, "type"),
			Event:       extractString(result, "event"),
			EventType:   extractString(result, "eventType"),
			Description: extractString(result, "description"),
			RBI:         extractInt(result, "rbi"),
			AwayScore:   extractInt(result, "awayScore"),
			HomeScore:   extractInt(result, "homeScore"),
			IsOut:       extractBool(result, "isOut"),
		}
	}

	playEvents := extractArray(raw, "playEvents")
	play.Events = make([]models.Event, 0, len(playEvents))
	for i, evRaw := range playEvents {
		evMap, ok := evRaw.(map[string]interface{})
		if !ok {
			continue
		}
		play.Events = append(play.Events, parseEvent(evMap, play.About.AtBatIndex, i))
	}

	return play
}

// parseEvent converts one playEvents entry. Events without a playId
// (mound visits, substitutions) get "<atBatIndex>-<index>".
func parseEvent(raw map[string]interface{}, atBatIndex, position int) models.Event {
	details := extractMap(raw, "details")
	count := extractMap(raw, "count")

	ev := models.Event{
		ID:          extractString(raw, "playId"),
		Index:       position,
		Type:        extractString(raw, "type"),
		IsPitch:     extractBool(raw, "isPitch"),
		Description: extractString(details, "description"),
		Count: models.Count{
			Balls:   extractInt(count, "balls"),
			Strikes: extractInt(count, "strikes"),
			Outs:    extractInt(count, "outs"),
		},
	}

	if _, ok := raw["index"]; ok {
		ev.Index = extractInt(raw, "index")
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%d-%d", atBatIndex, ev.Index)
	}

	return ev
}

func parseTeam(raw map[string]interface{}) models.TeamRef {
	return models.TeamRef{
		ID:           extractInt(raw, "id"),
		Name:         extractString(raw, "name"),
		Abbreviation: extractString(raw, "abbreviation"),
	}
}

func parsePlayer(raw map[string]interface{}) models.PlayerRef {
	return models.PlayerRef{
		ID:       extractInt(raw, "id"),
		FullName: extractString(raw, "fullName"),
	}
}

// ParseSchedule extracts the games of the first schedule date that involve teamID.
// teamID 0 keeps every game.
func ParseSchedule(raw map[string]interface{}, teamID int) []models.ScheduledGame {
	dates := extractArray(raw, "dates")
	if len(dates) == 0 {
		return []models.ScheduledGame{}
	}

	first, ok := dates[0].(map[string]interface{})
	if !ok {
		return []models.ScheduledGame{}
	}

	games := []models.ScheduledGame{}
	for _, gRaw := range extractArray(first, "games") {
		g, ok := gRaw.(map[string]interface{})
		if !ok {
			continue
		}

		teams := extractMap(g, "teams")
		home := extractMap(teams, "home")
		away := extractMap(teams, "away")

		game := models.ScheduledGame{
			GameID:    strconv.Itoa(extractInt(g, "gamePk")),
			Status:    extractString(extractMap(g, "status"), "detailedState"),
			Home:      parseTeam(extractMap(home, "team")),
			Away:      parseTeam(extractMap(away, "team")),
			HomeScore: extractInt(home, "score"),
			AwayScore: extractInt(away, "score"),
			StartTime: parseGameDate(extractString(g, "gameDate")),
		}

		if teamID != 0 && game.Home.ID != teamID && game.Away.ID != teamID {
			continue
		}
		games = append(games, game)
	}

	return games
}

// parseGameDate parses StatsAPI timestamps ("2025-09-19T23:10:00Z")
func parseGameDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseInt parses an int from interface{}
func parseInt(v interface{}) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		i, _ := strconv.Atoi(val)
		return i
	case int:
		return val
	default:
		return 0
	}
}

// extractString safely extracts a string from a map
func extractString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// extractInt safely extracts an int from a map
func extractInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		return parseInt(v)
	}
	return 0
}

// extractBool safely extracts a bool from a map
func extractBool(m map[string]interface{}, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// extractMap safely extracts a map from a map
func extractMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key]; ok {
		if mapVal, ok := v.(map[string]interface{}); ok {
			return mapVal
		}
	}
	return map[string]interface{}{}
}

// extractArray safely extracts an array from a map
func extractArray(m map[string]interface{}, key string) []interface{} {
	if v, ok := m[key]; ok {
		if arrVal, ok := v.([]interface{}); ok {
			return arrVal
		}
	}
	return []interface{}{}
}
