package models

import "time"

// Fixture is a single scheduled or completed match, keyed by the upstream id.
type Fixture struct {
	FixtureID  int64      `json:"fixture_id"`
	League     string     `json:"league"`
	Season     *int       `json:"season"`
	Date       *time.Time `json:"date"`
	HomeTeam   string     `json:"home_team"`
	AwayTeam   string     `json:"away_team"`
	HomeTeamID *int64     `json:"home_team_id"`
	AwayTeamID *int64     `json:"away_team_id"`
	HomeGoals  *int       `json:"home_goals"`
	AwayGoals  *int       `json:"away_goals"`
	Status     string     `json:"status"`
}

// MatchStats is the current in-match statistics snapshot of a fixture.
// Possession and pass accuracy are percentages; the rest are raw counts.
type MatchStats struct {
	HomeShotsTotal   *float64 `json:"home_shots_total"`
	HomeShotsInbox   *float64 `json:"home_shots_inbox"`
	HomePossession   *float64 `json:"home_possession"`
	HomePassAccuracy *float64 `json:"home_pass_accuracy"`
	HomeCorners      *float64 `json:"home_corners"`
	HomeFouls        *float64 `json:"home_fouls"`
	AwayShotsTotal   *float64 `json:"away_shots_total"`
	AwayShotsInbox   *float64 `json:"away_shots_inbox"`
	AwayPossession   *float64 `json:"away_possession"`
	AwayPassAccuracy *float64 `json:"away_pass_accuracy"`
	AwayCorners      *float64 `json:"away_corners"`
	AwayFouls        *float64 `json:"away_fouls"`
}

// Ordered returns the statistics in column order (home block, then away block).
func (s MatchStats) Ordered() []*float64 {
	return []*float64{
		s.HomeShotsTotal, s.HomeShotsInbox, s.HomePossession, s.HomePassAccuracy, s.HomeCorners, s.HomeFouls,
		s.AwayShotsTotal, s.AwayShotsInbox, s.AwayPossession, s.AwayPassAccuracy, s.AwayCorners, s.AwayFouls,
	}
}

// Empty reports whether no statistic was observed at all.
func (s MatchStats) Empty() bool {
	for _, v := range s.Ordered() {
		if v != nil {
			return false
		}
	}
	return true
}

// Status short codes reported by the upstream provider.
const (
	StatusNotStarted   = "NS"
	StatusToBeDecided  = "TBD"
	StatusFirstHalf    = "1H"
	StatusHalfTime     = "HT"
	StatusSecondHalf   = "2H"
	StatusExtraTime    = "ET"
	StatusBreakTime    = "BT"
	StatusPenalties    = "P"
	StatusSuspended    = "SUSP"
	StatusInterrupted  = "INT"
	StatusLive         = "LIVE"
	StatusFullTime     = "FT"
	StatusAfterExtra   = "AET"
	StatusAfterPenalty = "PEN"
	StatusPostponed    = "PST"
	StatusCancelled    = "CANC"
	StatusAbandoned    = "ABD"
	StatusAwarded      = "AWD"
	StatusWalkover     = "WO"
)

var inPlayStatuses = map[string]bool{
	StatusFirstHalf:   true,
	StatusHalfTime:    true,
	StatusSecondHalf:  true,
	StatusExtraTime:   true,
	StatusBreakTime:   true,
	StatusPenalties:   true,
	StatusSuspended:   true,
	StatusInterrupted: true,
	StatusLive:        true,
}

var terminalStatuses = map[string]bool{
	StatusFullTime:     true,
	StatusAfterExtra:   true,
	StatusAfterPenalty: true,
	StatusPostponed:    true,
	StatusCancelled:    true,
	StatusAbandoned:    true,
	StatusAwarded:      true,
	StatusWalkover:     true,
}

// IsInPlay reports whether a status means the match is currently being played.
func IsInPlay(status string) bool { return inPlayStatuses[status] }

// IsTerminal reports whether no further live updates are expected for a status.
func IsTerminal(status string) bool { return terminalStatuses[status] }
