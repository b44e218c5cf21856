package upstream

import (
	"fmt"

	"github.com/matchcast/predictor/internal/models"
)

type envelope[T any] struct {
	Response []T           `json:"response"`
	Errors   any           `json:"errors"`
	Results  int           `json:"results"`
	Paging   *envelopePage `json:"paging,omitempty"`
}

// apiError reports provider errors delivered with a 200 status, such as quota or
// token problems. The field is an empty list when there are none.
func (e envelope[T]) apiError() error {
	switch v := e.Errors.(type) {
	case map[string]any:
		if len(v) > 0 {
			return fmt.Errorf("api errors: %v", v)
		}
	case []any:
		if len(v) > 0 {
			return fmt.Errorf("api errors: %v", v)
		}
	}
	return nil
}

type envelopePage struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// FixtureItem is one entry of a /fixtures or /fixtures/headtohead response.
type FixtureItem struct {
	Fixture struct {
		ID     int64  `json:"id"`
		Date   string `json:"date"`
		Status struct {
			Short   string `json:"short"`
			Elapsed *int   `json:"elapsed"`
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Season *int   `json:"season"`
	} `json:"league"`
	Teams struct {
		Home Team `json:"home"`
		Away Team `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

// Team identifies one side of a fixture.
type Team struct {
	ID   *int64 `json:"id"`
	Name string `json:"name"`
}

// StatisticsItem is one team's block of a /fixtures/statistics response.
type StatisticsItem struct {
	Team       Team        `json:"team"`
	Statistics []Statistic `json:"statistics"`
}

// Statistic is a typed value; Value may be a number, a "NN%" string or null.
type Statistic struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// ToFixture converts the item into a fixture row.
func (it FixtureItem) ToFixture() models.Fixture {
	return models.Fixture{
		FixtureID:  it.Fixture.ID,
		League:     it.League.Name,
		Season:     it.League.Season,
		Date:       models.ParseKickoff(it.Fixture.Date),
		HomeTeam:   it.Teams.Home.Name,
		AwayTeam:   it.Teams.Away.Name,
		HomeTeamID: it.Teams.Home.ID,
		AwayTeamID: it.Teams.Away.ID,
		HomeGoals:  it.Goals.Home,
		AwayGoals:  it.Goals.Away,
		Status:     it.Fixture.Status.Short,
	}
}

// Meeting converts a head-to-head item into a past meeting.
func (it FixtureItem) Meeting() models.H2HMeeting {
	return models.H2HMeeting{
		FixtureID:  it.Fixture.ID,
		Date:       models.ParseKickoff(it.Fixture.Date),
		HomeTeamID: it.Teams.Home.ID,
		AwayTeamID: it.Teams.Away.ID,
		HomeGoals:  it.Goals.Home,
		AwayGoals:  it.Goals.Away,
	}
}

// RefreshEvent builds the fixtures_refresh message for the item.
func (it FixtureItem) RefreshEvent() models.InboundEvent {
	id := it.Fixture.ID
	return models.InboundEvent{
		PredictMode: string(models.ModeRefresh),
		FixtureID:   &id,
		League:      it.League.Name,
		Season:      it.League.Season,
		Date:        it.Fixture.Date,
		HomeTeam:    it.Teams.Home.Name,
		AwayTeam:    it.Teams.Away.Name,
		HomeTeamID:  it.Teams.Home.ID,
		AwayTeamID:  it.Teams.Away.ID,
		HomeGoals:   it.Goals.Home,
		AwayGoals:   it.Goals.Away,
		StatusShort: it.Fixture.Status.Short,
	}
}

// LiveEvent builds the live snapshot message for the item, without statistics.
// Team ids are omitted; the live fixture write leaves them untouched.
func (it FixtureItem) LiveEvent() models.InboundEvent {
	id := it.Fixture.ID
	elapsed := 0
	if it.Fixture.Status.Elapsed != nil {
		elapsed = *it.Fixture.Status.Elapsed
	}
	return models.InboundEvent{
		Mode:        string(models.ModeLive),
		FixtureID:   &id,
		League:      it.League.Name,
		Season:      it.League.Season,
		Date:        it.Fixture.Date,
		HomeTeam:    it.Teams.Home.Name,
		AwayTeam:    it.Teams.Away.Name,
		HomeGoals:   it.Goals.Home,
		AwayGoals:   it.Goals.Away,
		StatusShort: it.Fixture.Status.Short,
		Elapsed:     &elapsed,
	}
}
