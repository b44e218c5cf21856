package logic

import (
	"math"

	"github.com/matchcast/predictor/internal/models"
)

// Elapsed minutes are clamped to this window before rate normalization so the
// opening minutes and extra time do not produce extreme multipliers.
const (
	minElapsedMinutes = 15
	maxElapsedMinutes = 120
	fullMatchMinutes  = 90.0
)

// ScaleFactor returns the multiplier that converts a count observed over elapsed
// minutes into its 90-minute equivalent.
func ScaleFactor(elapsed int) float64 {
	denom := elapsed
	if denom < minElapsedMinutes {
		denom = minElapsedMinutes
	}
	if denom > maxElapsedMinutes {
		denom = maxElapsedMinutes
	}
	return fullMatchMinutes / float64(denom)
}

// BuildFeatures converts a statistics snapshot into the differential feature
// vector. Missing values count as zero. Shots, shots inside the box, corners and
// fouls are per-90 normalized before differencing; possession and pass accuracy are
// already rates and are differenced as-is.
func BuildFeatures(stats models.MatchStats, homeGoals, awayGoals *int, elapsed *int) models.FeatureVector {
	scale := ScaleFactor(intOrZero(elapsed))
	per90 := func(v *float64) float64 { return floatOrZero(v) * scale }

	var v models.FeatureVector
	v[models.FeatDiffGoals] = float64(intOrZero(homeGoals) - intOrZero(awayGoals))
	v[models.FeatDiffShots] = per90(stats.HomeShotsTotal) - per90(stats.AwayShotsTotal)
	v[models.FeatDiffShotsInbox] = per90(stats.HomeShotsInbox) - per90(stats.AwayShotsInbox)
	v[models.FeatDiffPossession] = floatOrZero(stats.HomePossession) - floatOrZero(stats.AwayPossession)
	v[models.FeatDiffPassAccuracy] = floatOrZero(stats.HomePassAccuracy) - floatOrZero(stats.AwayPassAccuracy)
	v[models.FeatDiffCorners] = per90(stats.HomeCorners) - per90(stats.AwayCorners)
	v[models.FeatDiffFouls] = per90(stats.HomeFouls) - per90(stats.AwayFouls)
	return v
}

// FeaturesFromEvent builds the feature vector for a live event.
func FeaturesFromEvent(e *models.InboundEvent) models.FeatureVector {
	return BuildFeatures(e.Stats(), e.HomeGoals, e.AwayGoals, e.Elapsed)
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
