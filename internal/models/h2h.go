package models

import "time"

// H2HMeeting is one past encounter between the two teams, oriented as it was
// played (its own home and away sides).
type H2HMeeting struct {
	FixtureID  int64      `json:"fixture_id"`
	Date       *time.Time `json:"date,omitempty"`
	HomeTeamID *int64     `json:"home_team_id"`
	AwayTeamID *int64     `json:"away_team_id"`
	HomeGoals  *int       `json:"home_goals"`
	AwayGoals  *int       `json:"away_goals"`
}

// H2HSummary aggregates past meetings from the current fixture's home side.
type H2HSummary struct {
	FixtureID        int64   `json:"fixture_id"`
	Last             int     `json:"h2h_last"`
	Matches          int     `json:"h2h_matches"`
	HomeWins         int     `json:"h2h_home_wins"`
	Draws            int     `json:"h2h_draws"`
	AwayWins         int     `json:"h2h_away_wins"`
	HomeGoalsFor     float64 `json:"h2h_home_goals_for"`
	HomeGoalsAgainst float64 `json:"h2h_home_goals_against"`
	HomeGoalDiff     float64 `json:"h2h_home_goal_diff"`
}

// FixtureRef is the minimal fixture projection the h2h staleness poller and the
// prematch backfill work from.
type FixtureRef struct {
	FixtureID  int64      `json:"fixture_id"`
	League     string     `json:"league"`
	Season     *int       `json:"season"`
	Date       *time.Time `json:"date"`
	HomeTeam   string     `json:"home_team"`
	AwayTeam   string     `json:"away_team"`
	HomeTeamID *int64     `json:"home_team_id"`
	AwayTeamID *int64     `json:"away_team_id"`
}

// UpcomingH2H joins a not-started fixture with its stored summary.
type UpcomingH2H struct {
	FixtureRef
	Summary H2HSummary `json:"summary"`
}
