package detector

import "github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"

// Predicate decides whether a newly seen event is the one being watched for.
// Predicates must treat missing fields as "no match" rather than failing.
type Predicate func(play models.Play, event models.Event, teams models.Teams) bool

// EventTypeBy matches a resolved play of eventType batted by teamID.
// The batting side comes from the half-inning alone: away in the top half,
// home in the bottom half. teamID 0 matches either side.
func EventTypeBy(eventType string, teamID int) Predicate {
	return func(play models.Play, event models.Event, teams models.Teams) bool {
		if play.Result == nil || play.Result.EventType != eventType {
			return false
		}
		if teamID == 0 {
			return true
		}

		side, ok := models.BattingSide(play.About.HalfInning)
		if !ok {
			return false
		}
		return teams.ForSide(side).ID == teamID
	}
}

// HomeRunBy matches a home run hit by teamID
func HomeRunBy(teamID int) Predicate {
	return EventTypeBy(models.EventTypeHomeRun, teamID)
}

// battingTeam returns the label of the team at bat in play
func battingTeam(play models.Play, teams models.Teams) string {
	side, ok := models.BattingSide(play.About.HalfInning)
	if !ok {
		return ""
	}
	return teams.ForSide(side).Name
}

// ScanHomeRuns lists every home run by teamID in the revealed view (0 = both teams)
func ScanHomeRuns(view *models.RevealedView, teamID int) []models.HomeRun {
	out := []models.HomeRun{}
	if view == nil {
		return out
	}

	match := HomeRunBy(teamID)
	for _, play := range view.Plays {
		if !match(play, models.Event{}, view.Teams) {
			continue
		}
		out = append(out, models.HomeRun{
			GameID:      view.GameID,
			AtBatIndex:  play.About.AtBatIndex,
			Inning:      play.About.Inning,
			Half:        play.About.HalfInning,
			Team:        battingTeam(play, view.Teams),
			Batter:      play.Matchup.Batter.FullName,
			Description: play.Result.Description,
		})
	}
	return out
}
