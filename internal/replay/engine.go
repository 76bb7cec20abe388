package replay

import "github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"

// Reveal reconstructs the play list as it appears after cursor events.
//
// Plays are walked in order. A play whose events all fall at or before the
// cursor is copied whole; a play the cursor lands strictly inside is copied
// with only its first (cursor - eventsBefore) events and ends the walk; a
// cursor sitting exactly on a play boundary reveals that play in full and
// nothing of the next one. The returned plays never alias the input.
func Reveal(plays []models.Play, cursor int) []models.Play {
	out := make([]models.Play, 0, len(plays))
	processed := 0

	for i := range plays {
		n := len(plays[i].Events)

		if processed+n <= cursor {
			out = append(out, plays[i].Clone())
			processed += n
			continue
		}

		if processed < cursor {
			out = append(out, plays[i].Truncate(cursor-processed))
		}
		break
	}

	return out
}
