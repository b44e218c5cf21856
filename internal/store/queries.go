package store

import (
	"context"
	"fmt"
	"time"

	"github.com/matchcast/predictor/internal/models"
)

// FixturesNeedingH2H returns not-started fixtures with both team ids whose
// head-to-head summary is missing or older than stale, earliest kickoff first.
func (s *Store) FixturesNeedingH2H(ctx context.Context, limit int, stale time.Duration) ([]models.FixtureRef, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := `
		SELECT f.fixture_id, f.league, f.season, f.date,
		       f.home_team, f.away_team, f.home_team_id, f.away_team_id
		FROM fixtures f
		LEFT JOIN prematch_h2h h ON h.fixture_id = f.fixture_id
		WHERE f.status = 'NS'
		  AND f.home_team_id IS NOT NULL
		  AND f.away_team_id IS NOT NULL
		  AND (h.updated_at IS NULL OR h.updated_at < NOW() - make_interval(secs => $1))
		ORDER BY f.date ASC NULLS LAST
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, stale.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("fixtures needing h2h: %w", err)
	}
	defer rows.Close()

	var refs []models.FixtureRef
	for rows.Next() {
		var (
			r                          models.FixtureRef
			league, homeTeam, awayTeam *string
		)
		if err := rows.Scan(&r.FixtureID, &league, &r.Season, &r.Date, &homeTeam, &awayTeam, &r.HomeTeamID, &r.AwayTeamID); err != nil {
			return nil, fmt.Errorf("scan fixture ref: %w", err)
		}
		r.League, r.HomeTeam, r.AwayTeam = deref(league), deref(homeTeam), deref(awayTeam)
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpcomingWithH2H returns not-started fixtures joined with their stored summary.
func (s *Store) UpcomingWithH2H(ctx context.Context, limit int) ([]models.UpcomingH2H, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := `
		SELECT f.fixture_id, f.league, f.season, f.date,
		       f.home_team, f.away_team, f.home_team_id, f.away_team_id,
		       h.h2h_last, h.h2h_matches, h.h2h_home_wins, h.h2h_draws, h.h2h_away_wins,
		       h.h2h_home_goals_for, h.h2h_home_goals_against, h.h2h_home_goal_diff
		FROM fixtures f
		JOIN prematch_h2h h ON h.fixture_id = f.fixture_id
		WHERE f.status = 'NS'
		ORDER BY f.date ASC NULLS LAST
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming with h2h: %w", err)
	}
	defer rows.Close()

	var out []models.UpcomingH2H
	for rows.Next() {
		var (
			u                          models.UpcomingH2H
			league, homeTeam, awayTeam *string
		)
		if err := rows.Scan(
			&u.FixtureID, &league, &u.Season, &u.Date,
			&homeTeam, &awayTeam, &u.HomeTeamID, &u.AwayTeamID,
			&u.Summary.Last, &u.Summary.Matches, &u.Summary.HomeWins, &u.Summary.Draws, &u.Summary.AwayWins,
			&u.Summary.HomeGoalsFor, &u.Summary.HomeGoalsAgainst, &u.Summary.HomeGoalDiff,
		); err != nil {
			return nil, fmt.Errorf("scan upcoming h2h: %w", err)
		}
		u.League, u.HomeTeam, u.AwayTeam = deref(league), deref(homeTeam), deref(awayTeam)
		u.Summary.FixtureID = u.FixtureID
		out = append(out, u)
	}
	return out, rows.Err()
}

// MatchesWithProbabilities lists a league season with the preferred prediction per
// fixture: live when one exists, otherwise pre-match. upcomingOnly keeps fixtures
// that have not started or have no score yet.
func (s *Store) MatchesWithProbabilities(ctx context.Context, league string, season, limit int, upcomingOnly bool) ([]models.MatchWithProbabilities, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	whereExtra := ""
	if upcomingOnly {
		whereExtra = "AND (f.status = 'NS' OR (f.home_goals IS NULL AND f.away_goals IS NULL))"
	}

	query := fmt.Sprintf(`
		SELECT f.fixture_id, f.league, f.season, f.date,
		       f.home_team, f.away_team, f.home_team_id, f.away_team_id,
		       f.home_goals, f.away_goals, f.status,
		       COALESCE(pl.prob_home_win, pp.prob_home_win) AS prob_home_win,
		       COALESCE(pl.prob_draw, pp.prob_draw) AS prob_draw,
		       COALESCE(pl.prob_away_win, pp.prob_away_win) AS prob_away_win,
		       CASE
		         WHEN pl.fixture_id IS NOT NULL THEN 'live'
		         WHEN pp.fixture_id IS NOT NULL THEN 'prematch'
		         ELSE NULL
		       END AS prob_source
		FROM fixtures f
		LEFT JOIN predictions_prematch pp ON pp.fixture_id = f.fixture_id
		LEFT JOIN predictions_live pl ON pl.fixture_id = f.fixture_id
		WHERE f.league = $1
		  AND f.season = $2
		  %s
		ORDER BY f.date ASC NULLS LAST
		LIMIT $3
	`, whereExtra)

	rows, err := s.pool.Query(ctx, query, league, season, limit)
	if err != nil {
		return nil, fmt.Errorf("matches with probabilities: %w", err)
	}
	defer rows.Close()

	var out []models.MatchWithProbabilities
	for rows.Next() {
		var (
			m                                  models.MatchWithProbabilities
			leagueName, homeTeam, awayTeam, st *string
		)
		if err := rows.Scan(
			&m.FixtureID, &leagueName, &m.Season, &m.Date,
			&homeTeam, &awayTeam, &m.HomeTeamID, &m.AwayTeamID,
			&m.HomeGoals, &m.AwayGoals, &st,
			&m.ProbHomeWin, &m.ProbDraw, &m.ProbAwayWin, &m.ProbSource,
		); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.League, m.HomeTeam, m.AwayTeam, m.Status = deref(leagueName), deref(homeTeam), deref(awayTeam), deref(st)
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestLivePredictions returns the most recently refreshed live predictions.
func (s *Store) LatestLivePredictions(ctx context.Context, limit int) ([]models.LivePrediction, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := `
		SELECT f.fixture_id, f.league, f.season, f.date,
		       f.home_team, f.away_team, f.home_goals, f.away_goals,
		       p.prob_home_win, p.prob_draw, p.prob_away_win, p.created_at
		FROM predictions_live p
		JOIN fixtures f ON f.fixture_id = p.fixture_id
		ORDER BY p.created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("latest live predictions: %w", err)
	}
	defer rows.Close()

	var out []models.LivePrediction
	for rows.Next() {
		var (
			p                          models.LivePrediction
			league, homeTeam, awayTeam *string
		)
		if err := rows.Scan(
			&p.FixtureID, &league, &p.Season, &p.Date,
			&homeTeam, &awayTeam, &p.HomeGoals, &p.AwayGoals,
			&p.HomeWin, &p.Draw, &p.AwayWin, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan live prediction: %w", err)
		}
		p.League, p.HomeTeam, p.AwayTeam = deref(league), deref(homeTeam), deref(awayTeam)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Leagues returns the distinct league names present in fixtures.
func (s *Store) Leagues(ctx context.Context) ([]string, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT DISTINCT league FROM fixtures WHERE league IS NOT NULL ORDER BY league ASC`)
	if err != nil {
		return nil, fmt.Errorf("leagues: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Seasons returns the distinct seasons, newest first, optionally for one league.
func (s *Store) Seasons(ctx context.Context, league string) ([]int, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := `SELECT DISTINCT season FROM fixtures WHERE season IS NOT NULL ORDER BY season DESC`
	var args []any
	if league != "" {
		query = `SELECT DISTINCT season FROM fixtures WHERE league = $1 AND season IS NOT NULL ORDER BY season DESC`
		args = append(args, league)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("seasons: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var season int
		if err := rows.Scan(&season); err != nil {
			return nil, err
		}
		out = append(out, season)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
