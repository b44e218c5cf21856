package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/upstream"
)

// SeasonSource lists every fixture of a league season.
type SeasonSource interface {
	FixturesBySeason(ctx context.Context, leagueID int64, season int) ([]upstream.FixtureItem, error)
}

type RefreshConfig struct {
	Source    SeasonSource
	Sender    Sender
	LeagueIDs []int64
	Season    int
	Interval  time.Duration
	Timeout   time.Duration
	Logger    *zap.SugaredLogger
}

// RefreshPoller republishes the full fixture list of each configured league so
// schedules, team ids and final scores stay current.
type RefreshPoller struct {
	cfg    RefreshConfig
	logger *zap.SugaredLogger
}

func NewRefreshPoller(cfg RefreshConfig) *RefreshPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &RefreshPoller{cfg: cfg, logger: cfg.Logger}
}

func (p *RefreshPoller) Run(ctx context.Context) error {
	return run(ctx, "refresh", p.cfg.Interval, p.logger, p.Poll)
}

// Poll refreshes every league once. A failing league does not stop the others.
func (p *RefreshPoller) Poll(ctx context.Context) (int, error) {
	total := 0
	var errs []error

	for _, leagueID := range p.cfg.LeagueIDs {
		if ctx.Err() != nil {
			break
		}

		fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		items, err := p.cfg.Source.FixturesBySeason(fetchCtx, leagueID, p.cfg.Season)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("league %d: %w", leagueID, err))
			continue
		}

		sent := 0
		for _, item := range items {
			event := item.RefreshEvent()
			if _, err := p.cfg.Sender.Send(ctx, broker.TopicRefresh, item.Fixture.ID, event); err != nil {
				errs = append(errs, fmt.Errorf("fixture %d: %w", item.Fixture.ID, err))
				continue
			}
			sent++
		}

		eventsPublished.WithLabelValues("refresh").Add(float64(sent))
		p.logger.Infow("Published fixture refresh", "league_id", leagueID, "season", p.cfg.Season, "fetched", len(items), "published", sent)
		total += sent
	}

	return total, errors.Join(errs...)
}
