// Package store is the persistence gateway for fixtures, statistics, head-to-head
// summaries and predictions. Every write is an upsert keyed by fixture_id, so
// replaying the same event converges to the same row state.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/matchcast/predictor/internal/models"
)

// PgPool defines the interface for PostgreSQL connection pool
type PgPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Upserts are chunked so a large refresh stays under the bind parameter limit.
const maxRowsPerStatement = 500

// Store runs the gateway's statements against a pool. Each call bounds itself with
// Timeout and detaches from the caller's cancellation, so a shutdown signal never
// aborts a write halfway.
type Store struct {
	pool    PgPool
	timeout time.Duration
}

func New(pool PgPool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Store{pool: pool, timeout: timeout}
}

func (s *Store) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

func (s *Store) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

var fixtureColumns = []string{
	"fixture_id", "league", "season", "date",
	"home_team", "away_team", "home_team_id", "away_team_id",
	"home_goals", "away_goals", "status",
}

// UpsertFixtures inserts or fully updates a batch of fixtures.
func (s *Store) UpsertFixtures(ctx context.Context, fixtures []models.Fixture) (int, error) {
	if len(fixtures) == 0 {
		return 0, nil
	}

	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	written := 0
	for start := 0; start < len(fixtures); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(fixtures))
		chunk := fixtures[start:end]

		rows := make([][]any, 0, len(chunk))
		for _, f := range chunk {
			rows = append(rows, []any{
				f.FixtureID, nullString(f.League), f.Season, f.Date,
				nullString(f.HomeTeam), nullString(f.AwayTeam), f.HomeTeamID, f.AwayTeamID,
				f.HomeGoals, f.AwayGoals, nullString(f.Status),
			})
		}

		sql, args := buildUpsert("fixtures", fixtureColumns, rows, "updated_at")
		if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
			return written, fmt.Errorf("upsert fixtures: %w", err)
		}
		written += len(chunk)
	}
	return written, nil
}

var liveFixtureColumns = []string{
	"fixture_id", "league", "season", "date",
	"home_team", "away_team",
	"home_goals", "away_goals", "status",
}

// UpsertLiveFixture is the live-path fixture write. Live events do not carry team
// ids, so existing ids are left untouched.
func (s *Store) UpsertLiveFixture(ctx context.Context, f models.Fixture) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	sql, args := buildUpsert("fixtures", liveFixtureColumns, [][]any{{
		f.FixtureID, nullString(f.League), f.Season, f.Date,
		nullString(f.HomeTeam), nullString(f.AwayTeam),
		f.HomeGoals, f.AwayGoals, nullString(f.Status),
	}}, "updated_at")

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert live fixture %d: %w", f.FixtureID, err)
	}
	return nil
}

var statsColumns = []string{
	"fixture_id",
	"home_shots_total", "home_shots_inbox", "home_possession", "home_pass_accuracy", "home_corners", "home_fouls",
	"away_shots_total", "away_shots_inbox", "away_possession", "away_pass_accuracy", "away_corners", "away_fouls",
}

// UpsertMatchStats replaces the statistics snapshot of a fixture.
func (s *Store) UpsertMatchStats(ctx context.Context, fixtureID int64, stats models.MatchStats) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	row := make([]any, 0, len(statsColumns))
	row = append(row, fixtureID)
	for _, v := range stats.Ordered() {
		row = append(row, v)
	}

	sql, args := buildUpsert("match_stats", statsColumns, [][]any{row}, "updated_at")
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert match stats %d: %w", fixtureID, err)
	}
	return nil
}

var h2hColumns = []string{
	"fixture_id", "h2h_last", "h2h_matches",
	"h2h_home_wins", "h2h_draws", "h2h_away_wins",
	"h2h_home_goals_for", "h2h_home_goals_against", "h2h_home_goal_diff",
}

// UpsertH2H stores head-to-head summaries.
func (s *Store) UpsertH2H(ctx context.Context, summaries []models.H2HSummary) (int, error) {
	if len(summaries) == 0 {
		return 0, nil
	}

	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	written := 0
	for start := 0; start < len(summaries); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(summaries))
		chunk := summaries[start:end]

		rows := make([][]any, 0, len(chunk))
		for _, h := range chunk {
			rows = append(rows, []any{
				h.FixtureID, h.Last, h.Matches,
				h.HomeWins, h.Draws, h.AwayWins,
				h.HomeGoalsFor, h.HomeGoalsAgainst, h.HomeGoalDiff,
			})
		}

		sql, args := buildUpsert("prematch_h2h", h2hColumns, rows, "updated_at")
		if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
			return written, fmt.Errorf("upsert prematch_h2h: %w", err)
		}
		written += len(chunk)
	}
	return written, nil
}

var predictionColumns = []string{
	"fixture_id", "league", "season", "home_team", "away_team",
	"prob_away_win", "prob_draw", "prob_home_win",
}

func predictionTable(kind models.PredictionKind) (string, error) {
	switch kind {
	case models.PredictionLive:
		return "predictions_live", nil
	case models.PredictionPrematch:
		return "predictions_prematch", nil
	default:
		return "", fmt.Errorf("unknown prediction kind %q", kind)
	}
}

// UpsertPrediction stores the latest prediction of the given kind for a fixture.
func (s *Store) UpsertPrediction(ctx context.Context, kind models.PredictionKind, fixtureID int64, p models.Probabilities, meta models.PredictionMeta) error {
	table, err := predictionTable(kind)
	if err != nil {
		return err
	}

	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	sql, args := buildUpsert(table, predictionColumns, [][]any{{
		fixtureID, nullString(meta.League), meta.Season, nullString(meta.HomeTeam), nullString(meta.AwayTeam),
		p.AwayWin, p.Draw, p.HomeWin,
	}}, "created_at")

	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %s %d: %w", table, fixtureID, err)
	}
	return nil
}

// buildUpsert renders a multi-row INSERT ... ON CONFLICT (first column) DO UPDATE
// that overwrites every non-key column and stamps touchColumn with NOW().
func buildUpsert(table string, columns []string, rows [][]any, touchColumn string) (string, []any) {
	var sb strings.Builder
	args := make([]any, 0, len(rows)*len(columns))

	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(", ")
	sb.WriteString(touchColumn)
	sb.WriteString(") VALUES ")

	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&sb, "$%d", len(args))
		}
		sb.WriteString(", NOW())")
	}

	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(columns[0])
	sb.WriteString(") DO UPDATE SET ")
	for _, col := range columns[1:] {
		fmt.Fprintf(&sb, "%s = EXCLUDED.%s, ", col, col)
	}
	sb.WriteString(touchColumn)
	sb.WriteString(" = NOW()")

	return sb.String(), args
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
