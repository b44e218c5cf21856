package poller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/logic"
	"github.com/matchcast/predictor/internal/models"
	"github.com/matchcast/predictor/internal/upstream"
)

// LiveSource is the upstream surface the live poller reads.
type LiveSource interface {
	LiveFixtures(ctx context.Context) ([]upstream.FixtureItem, error)
	MatchStats(ctx context.Context, fixtureID int64, homeTeam, awayTeam string) (models.MatchStats, error)
}

type LiveConfig struct {
	Source   LiveSource
	Sender   Sender
	Interval time.Duration
	// Timeout bounds each upstream call.
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// LivePoller publishes a statistics snapshot for every in-play fixture whose
// snapshot changed since the last publish.
type LivePoller struct {
	cfg    LiveConfig
	dedup  *logic.SignatureCache
	logger *zap.SugaredLogger
}

func NewLivePoller(cfg LiveConfig) *LivePoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &LivePoller{cfg: cfg, dedup: logic.NewSignatureCache(), logger: cfg.Logger}
}

func (p *LivePoller) Run(ctx context.Context) error {
	return run(ctx, "live", p.cfg.Interval, p.logger, p.Poll)
}

// Poll runs one cycle and returns the number of snapshots published.
func (p *LivePoller) Poll(ctx context.Context) (int, error) {
	listCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	items, err := p.cfg.Source.LiveFixtures(listCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list live fixtures: %w", err)
	}

	live := make(map[int64]struct{}, len(items))
	published := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		id := item.Fixture.ID
		status := item.Fixture.Status.Short
		if models.IsTerminal(status) {
			p.dedup.Forget(id)
			continue
		}
		if !models.IsInPlay(status) {
			continue
		}
		live[id] = struct{}{}

		if p.publish(ctx, item) {
			published++
		}
	}

	if evicted := p.dedup.Retain(live); evicted > 0 {
		p.logger.Debugw("Evicted fixtures from dedup cache", "evicted", evicted, "tracked", p.dedup.Len())
	}
	if len(live) == 0 {
		p.logger.Debug("No in-play fixtures")
	}
	return published, nil
}

func (p *LivePoller) publish(ctx context.Context, item upstream.FixtureItem) bool {
	id := item.Fixture.ID

	statsCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	stats, err := p.cfg.Source.MatchStats(statsCtx, id, item.Teams.Home.Name, item.Teams.Away.Name)
	cancel()
	if err != nil {
		pollErrors.WithLabelValues("live").Inc()
		p.logger.Warnw("Failed to fetch statistics", "fixture_id", id, "error", err)
		return false
	}
	if stats.Empty() {
		p.logger.Debugw("No statistics yet", "fixture_id", id)
		return false
	}

	event := item.LiveEvent()
	event.SetStats(stats)

	if !p.dedup.ShouldPublish(id, &event) {
		dedupSuppressed.Inc()
		return false
	}

	if _, err := p.cfg.Sender.Send(ctx, broker.TopicLiveStats, id, event); err != nil {
		// Unsent snapshots must not suppress the retry on the next poll.
		p.dedup.Forget(id)
		pollErrors.WithLabelValues("live").Inc()
		p.logger.Errorw("Failed to publish live snapshot", "fixture_id", id, "error", err)
		return false
	}

	eventsPublished.WithLabelValues("live").Inc()
	p.logger.Infow("Published live snapshot", "fixture_id", id, "status", event.StatusShort, "elapsed", event.Elapsed)
	return true
}
