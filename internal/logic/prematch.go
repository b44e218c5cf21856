package logic

import "github.com/matchcast/predictor/internal/models"

// EstimatePrematch turns head-to-head counts into a Laplace-smoothed 3-way
// distribution, (count+1)/(matches+3). With no usable meetings, or no summary, it
// returns the uniform distribution. The classifier is never consulted.
func EstimatePrematch(s *models.H2HSummary) models.Probabilities {
	if s == nil || s.Matches <= 0 {
		return models.Uniform
	}

	denom := float64(s.Matches + 3)
	return models.Probabilities{
		HomeWin: float64(nonNegative(s.HomeWins)+1) / denom,
		Draw:    float64(nonNegative(s.Draws)+1) / denom,
		AwayWin: float64(nonNegative(s.AwayWins)+1) / denom,
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
