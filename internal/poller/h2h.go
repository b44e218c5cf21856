package poller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/models"
)

// FixtureLister finds not-started fixtures whose head-to-head summary is missing
// or older than stale.
type FixtureLister interface {
	FixturesNeedingH2H(ctx context.Context, limit int, stale time.Duration) ([]models.FixtureRef, error)
}

type H2HConfig struct {
	Store    FixtureLister
	Sender   Sender
	Limit    int
	Stale    time.Duration
	Interval time.Duration
	Logger   *zap.SugaredLogger
}

// H2HPoller requests a head-to-head recomputation for every upcoming fixture
// whose summary is stale.
type H2HPoller struct {
	cfg    H2HConfig
	logger *zap.SugaredLogger
}

func NewH2HPoller(cfg H2HConfig) *H2HPoller {
	if cfg.Limit <= 0 {
		cfg.Limit = 5000
	}
	if cfg.Stale <= 0 {
		cfg.Stale = 12 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &H2HPoller{cfg: cfg, logger: cfg.Logger}
}

func (p *H2HPoller) Run(ctx context.Context) error {
	return run(ctx, "h2h", p.cfg.Interval, p.logger, p.Poll)
}

func (p *H2HPoller) Poll(ctx context.Context) (int, error) {
	rows, err := p.cfg.Store.FixturesNeedingH2H(ctx, p.cfg.Limit, p.cfg.Stale)
	if err != nil {
		return 0, fmt.Errorf("list fixtures needing h2h: %w", err)
	}

	sent := 0
	for _, r := range rows {
		if ctx.Err() != nil {
			break
		}
		if r.HomeTeamID == nil || r.AwayTeamID == nil {
			continue
		}

		event := PrematchEvent(r)
		if _, err := p.cfg.Sender.Send(ctx, broker.TopicPrematch, r.FixtureID, event); err != nil {
			pollErrors.WithLabelValues("h2h").Inc()
			p.logger.Errorw("Failed to publish prematch request", "fixture_id", r.FixtureID, "error", err)
			continue
		}
		sent++
	}

	eventsPublished.WithLabelValues("h2h").Add(float64(sent))
	if len(rows) > 0 {
		p.logger.Infow("Published prematch requests", "candidates", len(rows), "published", sent)
	}
	return sent, nil
}

// PrematchEvent builds the prematch_h2h message for a fixture.
func PrematchEvent(r models.FixtureRef) models.InboundEvent {
	id := r.FixtureID
	e := models.InboundEvent{
		PredictMode: string(models.ModePrematch),
		FixtureID:   &id,
		HomeTeamID:  r.HomeTeamID,
		AwayTeamID:  r.AwayTeamID,
		League:      r.League,
		Season:      r.Season,
		HomeTeam:    r.HomeTeam,
		AwayTeam:    r.AwayTeam,
	}
	if r.Date != nil {
		e.Date = r.Date.UTC().Format(time.RFC3339)
	}
	return e
}
