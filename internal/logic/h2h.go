package logic

import "github.com/matchcast/predictor/internal/models"

// AggregateH2H reduces past meetings into a summary seen from the current
// fixture's home team. Meetings played with the sides swapped are re-oriented.
// A meeting is skipped, not counted as zero, when a team id or a score is missing
// or when its pairing is not the current one.
func AggregateH2H(fixtureID int64, history []models.H2HMeeting, homeTeamID, awayTeamID int64, window int) models.H2HSummary {
	summary := models.H2HSummary{
		FixtureID: fixtureID,
		Last:      window,
	}

	var goalsFor, goalsAgainst int
	for _, m := range history {
		if m.HomeTeamID == nil || m.AwayTeamID == nil || m.HomeGoals == nil || m.AwayGoals == nil {
			continue
		}

		var gf, ga int
		switch {
		case *m.HomeTeamID == homeTeamID && *m.AwayTeamID == awayTeamID:
			gf, ga = *m.HomeGoals, *m.AwayGoals
		case *m.HomeTeamID == awayTeamID && *m.AwayTeamID == homeTeamID:
			gf, ga = *m.AwayGoals, *m.HomeGoals
		default:
			continue
		}

		summary.Matches++
		goalsFor += gf
		goalsAgainst += ga

		switch {
		case gf > ga:
			summary.HomeWins++
		case gf < ga:
			summary.AwayWins++
		default:
			summary.Draws++
		}
	}

	if summary.Matches > 0 {
		n := float64(summary.Matches)
		summary.HomeGoalsFor = float64(goalsFor) / n
		summary.HomeGoalsAgainst = float64(goalsAgainst) / n
		summary.HomeGoalDiff = float64(goalsFor-goalsAgainst) / n
	}

	return summary
}
