package models

import (
	"fmt"
	"math"
	"time"
)

// FeatureNames is the fixed order of the differential feature vector. It matches
// the column order the classifier was fitted on.
var FeatureNames = [7]string{
	"diff_goals",
	"diff_shots",
	"diff_shots_inbox",
	"diff_possession",
	"diff_pass_accuracy",
	"diff_corners",
	"diff_fouls",
}

// FeatureVector is the home-minus-away comparison fed to the classifier.
type FeatureVector [7]float64

const (
	FeatDiffGoals = iota
	FeatDiffShots
	FeatDiffShotsInbox
	FeatDiffPossession
	FeatDiffPassAccuracy
	FeatDiffCorners
	FeatDiffFouls
)

// Map returns the vector keyed by feature name.
func (v FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(v))
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}

// PredictionKind identifies which pipeline stage produced a prediction.
type PredictionKind string

const (
	PredictionLive     PredictionKind = "live"
	PredictionPrematch PredictionKind = "prematch"
)

// Probabilities is a 3-way outcome distribution. Its JSON form uses the persisted
// key names; ModelKeys gives the classifier's raw naming.
type Probabilities struct {
	HomeWin float64 `json:"prob_home_win"`
	Draw    float64 `json:"prob_draw"`
	AwayWin float64 `json:"prob_away_win"`
}

// Raw key names produced by the classifier wrapper.
const (
	KeyHomeWin = "home_win"
	KeyDraw    = "draw"
	KeyAwayWin = "away_win"

	KeyProbHomeWin = "prob_home_win"
	KeyProbDraw    = "prob_draw"
	KeyProbAwayWin = "prob_away_win"
)

// Uniform is the distribution used when no evidence is available.
var Uniform = Probabilities{HomeWin: 1.0 / 3, Draw: 1.0 / 3, AwayWin: 1.0 / 3}

// ModelKeys renders the distribution with the classifier's key names.
func (p Probabilities) ModelKeys() map[string]float64 {
	return map[string]float64{KeyHomeWin: p.HomeWin, KeyDraw: p.Draw, KeyAwayWin: p.AwayWin}
}

// PersistKeys renders the distribution with the persistence layer's key names.
func (p Probabilities) PersistKeys() map[string]float64 {
	return map[string]float64{KeyProbHomeWin: p.HomeWin, KeyProbDraw: p.Draw, KeyProbAwayWin: p.AwayWin}
}

// Sum returns the total probability mass.
func (p Probabilities) Sum() float64 { return p.HomeWin + p.Draw + p.AwayWin }

// Valid reports whether every value is in [0,1] and the total is 1 within tol.
func (p Probabilities) Valid(tol float64) bool {
	for _, v := range []float64{p.HomeWin, p.Draw, p.AwayWin} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return false
		}
	}
	return math.Abs(p.Sum()-1) <= tol
}

// NormalizeProbabilityKeys renames classifier keys to persistence keys. Input that
// already uses persistence keys is returned unchanged.
func NormalizeProbabilityKeys(m map[string]float64) map[string]float64 {
	if _, ok := m[KeyProbAwayWin]; ok {
		return m
	}
	return map[string]float64{
		KeyProbHomeWin: m[KeyHomeWin],
		KeyProbDraw:    m[KeyDraw],
		KeyProbAwayWin: m[KeyAwayWin],
	}
}

// ProbabilitiesFromMap accepts either key naming.
func ProbabilitiesFromMap(m map[string]float64) (Probabilities, error) {
	keys := []string{KeyHomeWin, KeyDraw, KeyAwayWin}
	if _, ok := m[KeyProbAwayWin]; ok {
		keys = []string{KeyProbHomeWin, KeyProbDraw, KeyProbAwayWin}
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return Probabilities{}, fmt.Errorf("probabilities missing %q", k)
		}
	}
	n := NormalizeProbabilityKeys(m)
	return Probabilities{HomeWin: n[KeyProbHomeWin], Draw: n[KeyProbDraw], AwayWin: n[KeyProbAwayWin]}, nil
}

// PredictionMeta is denormalized onto prediction rows for read convenience.
type PredictionMeta struct {
	League   string `json:"league"`
	Season   *int   `json:"season"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
}

// OutboundPrediction is published on the predictions stream after a live inference.
// The embedded distribution is flattened next to fixture_id.
type OutboundPrediction struct {
	FixtureID int64 `json:"fixture_id"`
	Probabilities
}

// MatchWithProbabilities is a fixture joined with its preferred prediction:
// live when present, otherwise pre-match.
type MatchWithProbabilities struct {
	Fixture
	ProbHomeWin *float64 `json:"prob_home_win"`
	ProbDraw    *float64 `json:"prob_draw"`
	ProbAwayWin *float64 `json:"prob_away_win"`
	ProbSource  *string  `json:"prob_source"`
}

// LivePrediction is a row of predictions_live joined with its fixture.
type LivePrediction struct {
	FixtureID int64      `json:"fixture_id"`
	League    string     `json:"league"`
	Season    *int       `json:"season"`
	Date      *time.Time `json:"date"`
	HomeTeam  string     `json:"home_team"`
	AwayTeam  string     `json:"away_team"`
	HomeGoals *int       `json:"home_goals"`
	AwayGoals *int       `json:"away_goals"`
	Probabilities
	CreatedAt time.Time `json:"created_at"`
}
