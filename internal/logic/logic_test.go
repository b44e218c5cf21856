package logic

import (
	"math"
	"testing"

	"github.com/matchcast/predictor/internal/models"
)

const eps = 1e-9

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }
func id(v int64) *int64    { return &v }

func TestScaleFactor(t *testing.T) {
	tests := []struct {
		elapsed int
		want    float64
	}{
		{0, 6.0},
		{5, 6.0},
		{15, 6.0},
		{45, 2.0},
		{90, 1.0},
		{120, 0.75},
		{200, 0.75},
	}

	for _, tt := range tests {
		if got := ScaleFactor(tt.elapsed); math.Abs(got-tt.want) > eps {
			t.Errorf("ScaleFactor(%d) = %v, want %v", tt.elapsed, got, tt.want)
		}
	}
}

func TestBuildFeatures_Per90(t *testing.T) {
	stats := models.MatchStats{
		HomeShotsTotal: f(10), AwayShotsTotal: f(6),
		HomeCorners: f(4), AwayCorners: f(2),
		HomePossession: f(55), AwayPossession: f(45),
		HomePassAccuracy: f(88), AwayPassAccuracy: f(80),
	}

	v := BuildFeatures(stats, i(2), i(1), i(45))

	checks := map[int]float64{
		models.FeatDiffGoals:        1,
		models.FeatDiffShots:        8,
		models.FeatDiffCorners:      4,
		models.FeatDiffPossession:   10,
		models.FeatDiffPassAccuracy: 8,
		models.FeatDiffShotsInbox:   0,
		models.FeatDiffFouls:        0,
	}
	for idx, want := range checks {
		if math.Abs(v[idx]-want) > eps {
			t.Errorf("%s = %v, want %v", models.FeatureNames[idx], v[idx], want)
		}
	}
}

func TestBuildFeatures_NullsAreZero(t *testing.T) {
	stats := models.MatchStats{AwayShotsTotal: f(5), HomeFouls: f(math.NaN())}

	v := BuildFeatures(stats, nil, nil, i(90))

	if math.Abs(v[models.FeatDiffShots]-(-5)) > eps {
		t.Errorf("diff_shots = %v, want -5", v[models.FeatDiffShots])
	}
	for idx, x := range v {
		if math.IsNaN(x) {
			t.Errorf("%s is NaN", models.FeatureNames[idx])
		}
	}
}

func TestBuildFeatures_MissingElapsedUsesFloor(t *testing.T) {
	v := BuildFeatures(models.MatchStats{HomeCorners: f(1)}, nil, nil, nil)
	if math.Abs(v[models.FeatDiffCorners]-6) > eps {
		t.Errorf("diff_corners = %v, want 6", v[models.FeatDiffCorners])
	}
}

func liveEvent() *models.InboundEvent {
	e := &models.InboundEvent{
		FixtureID:   id(100),
		StatusShort: "1H",
		Elapsed:     i(30),
		HomeGoals:   i(0),
		AwayGoals:   i(0),
	}
	e.SetStats(models.MatchStats{
		HomeShotsTotal: f(3), AwayShotsTotal: f(2),
		HomeShotsInbox: f(1), AwayShotsInbox: f(1),
		HomePossession: f(51), AwayPossession: f(49),
		HomePassAccuracy: f(84), AwayPassAccuracy: f(80),
		HomeCorners: f(1), AwayCorners: f(0),
		HomeFouls: f(4), AwayFouls: f(6),
	})
	return e
}

func TestSignatureCache_SuppressesDuplicates(t *testing.T) {
	c := NewSignatureCache()
	e := liveEvent()

	if !c.ShouldPublish(100, e) {
		t.Fatal("first snapshot should publish")
	}
	if c.ShouldPublish(100, liveEvent()) {
		t.Error("identical snapshot should be suppressed")
	}
}

func TestSignatureCache_AnyTrackedFieldChangeAccepts(t *testing.T) {
	mutations := map[string]func(e *models.InboundEvent){
		"elapsed":       func(e *models.InboundEvent) { e.Elapsed = i(31) },
		"status":        func(e *models.InboundEvent) { e.StatusShort = "HT" },
		"home goals":    func(e *models.InboundEvent) { e.HomeGoals = i(1) },
		"away goals":    func(e *models.InboundEvent) { e.AwayGoals = nil },
		"shots":         func(e *models.InboundEvent) { e.HomeShotsTotal = f(4) },
		"shots inbox":   func(e *models.InboundEvent) { e.AwayShotsInbox = f(2) },
		"possession":    func(e *models.InboundEvent) { e.HomePossession = f(52) },
		"pass accuracy": func(e *models.InboundEvent) { e.AwayPassAccuracy = f(81) },
		"corners":       func(e *models.InboundEvent) { e.AwayCorners = f(1) },
		"fouls":         func(e *models.InboundEvent) { e.HomeFouls = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := NewSignatureCache()
			c.ShouldPublish(100, liveEvent())

			changed := liveEvent()
			mutate(changed)
			if !c.ShouldPublish(100, changed) {
				t.Errorf("change in %s should publish", name)
			}
			if c.ShouldPublish(100, changed) {
				t.Errorf("repeat after %s change should be suppressed", name)
			}
		})
	}
}

func TestSignatureCache_PerFixture(t *testing.T) {
	c := NewSignatureCache()
	if !c.ShouldPublish(1, liveEvent()) || !c.ShouldPublish(2, liveEvent()) {
		t.Error("same snapshot for different fixtures should both publish")
	}
}

func TestSignatureCache_Eviction(t *testing.T) {
	c := NewSignatureCache()
	c.ShouldPublish(1, liveEvent())
	c.ShouldPublish(2, liveEvent())
	c.ShouldPublish(3, liveEvent())

	c.Forget(1)
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if !c.ShouldPublish(1, liveEvent()) {
		t.Error("forgotten fixture should publish again")
	}

	evicted := c.Retain(map[int64]struct{}{2: {}})
	if evicted != 2 {
		t.Errorf("Retain evicted %d, want 2", evicted)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestSignature_NullRendering(t *testing.T) {
	e := &models.InboundEvent{StatusShort: "1H"}
	want := "None|1H|None|None|None|None|None|None|None|None|None|None|None|None|None|None"
	if got := Signature(e); got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}
}

func TestAggregateH2H_ZeroUsable(t *testing.T) {
	history := []models.H2HMeeting{
		// no score
		{HomeTeamID: id(1), AwayTeamID: id(2)},
		// other pairing
		{HomeTeamID: id(1), AwayTeamID: id(3), HomeGoals: i(1), AwayGoals: i(0)},
		// missing home id
		{AwayTeamID: id(2), HomeGoals: i(2), AwayGoals: i(2)},
	}

	s := AggregateH2H(9, history, 1, 2, 10)

	if s.Matches != 0 || s.HomeWins != 0 || s.Draws != 0 || s.AwayWins != 0 {
		t.Errorf("counts = %+v, want all zero", s)
	}
	if s.HomeGoalsFor != 0 || s.HomeGoalsAgainst != 0 || s.HomeGoalDiff != 0 {
		t.Errorf("averages = %v/%v/%v, want 0", s.HomeGoalsFor, s.HomeGoalsAgainst, s.HomeGoalDiff)
	}
	if s.Last != 10 || s.FixtureID != 9 {
		t.Errorf("Last/FixtureID = %d/%d, want 10/9", s.Last, s.FixtureID)
	}
}

func TestAggregateH2H_SwappedOrientation(t *testing.T) {
	const a, b = 1, 2
	history := []models.H2HMeeting{
		{HomeTeamID: id(a), AwayTeamID: id(b), HomeGoals: i(2), AwayGoals: i(1)},
		{HomeTeamID: id(b), AwayTeamID: id(a), HomeGoals: i(0), AwayGoals: i(3)},
	}

	s := AggregateH2H(5, history, a, b, 10)

	if s.Matches != 2 || s.HomeWins != 2 || s.Draws != 0 || s.AwayWins != 0 {
		t.Errorf("counts = %+v", s)
	}
	if math.Abs(s.HomeGoalsFor-2.5) > eps {
		t.Errorf("goals for avg = %v, want 2.5", s.HomeGoalsFor)
	}
	if math.Abs(s.HomeGoalsAgainst-0.5) > eps {
		t.Errorf("goals against avg = %v, want 0.5", s.HomeGoalsAgainst)
	}
	if math.Abs(s.HomeGoalDiff-2.0) > eps {
		t.Errorf("goal diff avg = %v, want 2.0", s.HomeGoalDiff)
	}
}

func TestAggregateH2H_PerspectiveOfCurrentHome(t *testing.T) {
	// Current fixture has B at home; the same two meetings now read as losses.
	history := []models.H2HMeeting{
		{HomeTeamID: id(1), AwayTeamID: id(2), HomeGoals: i(2), AwayGoals: i(1)},
		{HomeTeamID: id(2), AwayTeamID: id(1), HomeGoals: i(1), AwayGoals: i(1)},
	}

	s := AggregateH2H(5, history, 2, 1, 10)

	if s.HomeWins != 0 || s.Draws != 1 || s.AwayWins != 1 {
		t.Errorf("W/D/L = %d/%d/%d, want 0/1/1", s.HomeWins, s.Draws, s.AwayWins)
	}
	if math.Abs(s.HomeGoalDiff-(-0.5)) > eps {
		t.Errorf("goal diff avg = %v, want -0.5", s.HomeGoalDiff)
	}
}

func TestEstimatePrematch(t *testing.T) {
	p := EstimatePrematch(&models.H2HSummary{Matches: 7, HomeWins: 4, Draws: 2, AwayWins: 1})

	if math.Abs(p.HomeWin-0.5) > eps || math.Abs(p.Draw-0.3) > eps || math.Abs(p.AwayWin-0.2) > eps {
		t.Errorf("got %+v, want 0.5/0.3/0.2", p)
	}
	if !p.Valid(1e-9) {
		t.Errorf("distribution should sum to 1: %v", p.Sum())
	}
}

func TestEstimatePrematch_Fallbacks(t *testing.T) {
	for name, s := range map[string]*models.H2HSummary{
		"nil summary":  nil,
		"zero matches": {Matches: 0, HomeWins: 3},
	} {
		t.Run(name, func(t *testing.T) {
			if got := EstimatePrematch(s); got != models.Uniform {
				t.Errorf("got %+v, want uniform", got)
			}
		})
	}
}
