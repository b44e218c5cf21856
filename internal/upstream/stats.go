package upstream

import (
	"strconv"
	"strings"

	"github.com/matchcast/predictor/internal/models"
)

// Statistic type names as reported by the provider.
const (
	statShotsTotal   = "Total Shots"
	statShotsInbox   = "Shots insidebox"
	statPossession   = "Ball Possession"
	statPassAccuracy = "Passes %"
	statCorners      = "Corner Kicks"
	statFouls        = "Fouls"
)

// ParseMatchStats picks the six tracked statistics for each side.
func ParseMatchStats(items []StatisticsItem, homeTeam, awayTeam string) models.MatchStats {
	var s models.MatchStats
	for _, it := range items {
		switch it.Team.Name {
		case homeTeam:
			s.HomeShotsTotal = StatValue(it.Statistics, statShotsTotal)
			s.HomeShotsInbox = StatValue(it.Statistics, statShotsInbox)
			s.HomePossession = StatValue(it.Statistics, statPossession)
			s.HomePassAccuracy = StatValue(it.Statistics, statPassAccuracy)
			s.HomeCorners = StatValue(it.Statistics, statCorners)
			s.HomeFouls = StatValue(it.Statistics, statFouls)
		case awayTeam:
			s.AwayShotsTotal = StatValue(it.Statistics, statShotsTotal)
			s.AwayShotsInbox = StatValue(it.Statistics, statShotsInbox)
			s.AwayPossession = StatValue(it.Statistics, statPossession)
			s.AwayPassAccuracy = StatValue(it.Statistics, statPassAccuracy)
			s.AwayCorners = StatValue(it.Statistics, statCorners)
			s.AwayFouls = StatValue(it.Statistics, statFouls)
		}
	}
	return s
}

// StatValue returns the numeric value of the named statistic, stripping a trailing
// percent sign. Missing, null or unparseable values yield nil.
func StatValue(stats []Statistic, name string) *float64 {
	for _, st := range stats {
		if st.Type != name {
			continue
		}
		switch v := st.Value.(type) {
		case float64:
			return &v
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%")), 64)
			if err != nil {
				return nil
			}
			return &f
		default:
			return nil
		}
	}
	return nil
}
