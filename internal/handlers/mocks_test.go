package handlers

import (
	"context"

	"github.com/matchcast/predictor/internal/models"
)

// MockReadStore implements ReadStore for testing
type MockReadStore struct {
	MatchesFunc func(ctx context.Context, league string, season, limit int, upcomingOnly bool) ([]models.MatchWithProbabilities, error)
	LiveFunc    func(ctx context.Context, limit int) ([]models.LivePrediction, error)
	LeaguesFunc func(ctx context.Context) ([]string, error)
	SeasonsFunc func(ctx context.Context, league string) ([]int, error)
}

func (m *MockReadStore) MatchesWithProbabilities(ctx context.Context, league string, season, limit int, upcomingOnly bool) ([]models.MatchWithProbabilities, error) {
	if m.MatchesFunc != nil {
		return m.MatchesFunc(ctx, league, season, limit, upcomingOnly)
	}
	return nil, nil
}

func (m *MockReadStore) LatestLivePredictions(ctx context.Context, limit int) ([]models.LivePrediction, error) {
	if m.LiveFunc != nil {
		return m.LiveFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockReadStore) Leagues(ctx context.Context) ([]string, error) {
	if m.LeaguesFunc != nil {
		return m.LeaguesFunc(ctx)
	}
	return nil, nil
}

func (m *MockReadStore) Seasons(ctx context.Context, league string) ([]int, error) {
	if m.SeasonsFunc != nil {
		return m.SeasonsFunc(ctx, league)
	}
	return nil, nil
}
