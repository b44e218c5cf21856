package models

import (
	"errors"
	"strings"
	"time"
)

// Mode is the dispatch classification of an inbound event.
type Mode string

const (
	ModeRefresh  Mode = "refresh"
	ModeLive     Mode = "live"
	ModePrematch Mode = "prematch"
)

var (
	ErrMissingFixtureID = errors.New("event has no fixture_id")
	ErrMissingTeamIDs   = errors.New("event has no home_team_id/away_team_id")
)

// InboundEvent is the message carried on the fixture streams. Refresh, live and
// prematch producers fill different subsets of it; numeric fields are pointers so an
// absent value stays distinguishable from zero.
type InboundEvent struct {
	PredictMode string `json:"predict_mode,omitempty"`
	Mode        string `json:"mode,omitempty"`

	FixtureID *int64 `json:"fixture_id" validate:"required"`

	// Fixture metadata (refresh, live, prematch)
	League      string `json:"league,omitempty"`
	Season      *int   `json:"season,omitempty"`
	Date        string `json:"date,omitempty"`
	HomeTeam    string `json:"home_team,omitempty"`
	AwayTeam    string `json:"away_team,omitempty"`
	HomeTeamID  *int64 `json:"home_team_id,omitempty"`
	AwayTeamID  *int64 `json:"away_team_id,omitempty"`
	HomeGoals   *int   `json:"home_goals,omitempty"`
	AwayGoals   *int   `json:"away_goals,omitempty"`
	StatusShort string `json:"status_short,omitempty"`
	Elapsed     *int   `json:"elapsed,omitempty"`

	// Live statistics
	HomeShotsTotal   *float64 `json:"home_shots_total,omitempty"`
	HomeShotsInbox   *float64 `json:"home_shots_inbox,omitempty"`
	HomePossession   *float64 `json:"home_possession,omitempty"`
	HomePassAccuracy *float64 `json:"home_pass_accuracy,omitempty"`
	HomeCorners      *float64 `json:"home_corners,omitempty"`
	HomeFouls        *float64 `json:"home_fouls,omitempty"`
	AwayShotsTotal   *float64 `json:"away_shots_total,omitempty"`
	AwayShotsInbox   *float64 `json:"away_shots_inbox,omitempty"`
	AwayPossession   *float64 `json:"away_possession,omitempty"`
	AwayPassAccuracy *float64 `json:"away_pass_accuracy,omitempty"`
	AwayCorners      *float64 `json:"away_corners,omitempty"`
	AwayFouls        *float64 `json:"away_fouls,omitempty"`
}

// ResolveMode returns predict_mode, then mode, then live for older producers
// that do not declare one.
func (e *InboundEvent) ResolveMode() Mode {
	if m := strings.TrimSpace(e.PredictMode); m != "" {
		return Mode(strings.ToLower(m))
	}
	if m := strings.TrimSpace(e.Mode); m != "" {
		return Mode(strings.ToLower(m))
	}
	return ModeLive
}

// Fixture maps the event's metadata onto a fixture row.
func (e *InboundEvent) Fixture() Fixture {
	f := Fixture{
		League:     e.League,
		Season:     e.Season,
		Date:       ParseKickoff(e.Date),
		HomeTeam:   e.HomeTeam,
		AwayTeam:   e.AwayTeam,
		HomeTeamID: e.HomeTeamID,
		AwayTeamID: e.AwayTeamID,
		HomeGoals:  e.HomeGoals,
		AwayGoals:  e.AwayGoals,
		Status:     e.StatusShort,
	}
	if e.FixtureID != nil {
		f.FixtureID = *e.FixtureID
	}
	return f
}

// Stats extracts the twelve live statistics.
func (e *InboundEvent) Stats() MatchStats {
	return MatchStats{
		HomeShotsTotal:   e.HomeShotsTotal,
		HomeShotsInbox:   e.HomeShotsInbox,
		HomePossession:   e.HomePossession,
		HomePassAccuracy: e.HomePassAccuracy,
		HomeCorners:      e.HomeCorners,
		HomeFouls:        e.HomeFouls,
		AwayShotsTotal:   e.AwayShotsTotal,
		AwayShotsInbox:   e.AwayShotsInbox,
		AwayPossession:   e.AwayPossession,
		AwayPassAccuracy: e.AwayPassAccuracy,
		AwayCorners:      e.AwayCorners,
		AwayFouls:        e.AwayFouls,
	}
}

// SetStats copies a statistics snapshot onto the event.
func (e *InboundEvent) SetStats(s MatchStats) {
	e.HomeShotsTotal = s.HomeShotsTotal
	e.HomeShotsInbox = s.HomeShotsInbox
	e.HomePossession = s.HomePossession
	e.HomePassAccuracy = s.HomePassAccuracy
	e.HomeCorners = s.HomeCorners
	e.HomeFouls = s.HomeFouls
	e.AwayShotsTotal = s.AwayShotsTotal
	e.AwayShotsInbox = s.AwayShotsInbox
	e.AwayPossession = s.AwayPossession
	e.AwayPassAccuracy = s.AwayPassAccuracy
	e.AwayCorners = s.AwayCorners
	e.AwayFouls = s.AwayFouls
}

// Meta returns the denormalized fields stored next to a prediction.
func (e *InboundEvent) Meta() PredictionMeta {
	return PredictionMeta{
		League:   e.League,
		Season:   e.Season,
		HomeTeam: e.HomeTeam,
		AwayTeam: e.AwayTeam,
	}
}

// ParseKickoff accepts the upstream ISO-8601 kickoff formats. Unparseable or empty
// values map to nil so the column is stored as NULL.
func ParseKickoff(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
