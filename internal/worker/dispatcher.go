package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/logic"
	"github.com/matchcast/predictor/internal/models"
)

// Outcome is the result of handling one stream message. Every outcome is acked.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

var (
	eventsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_events_handled_total",
		Help: "Stream events handled, by mode and outcome",
	}, []string{"mode", "outcome"})

	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predictor_inference_duration_seconds",
		Help:    "Duration of a single classifier evaluation",
		Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
	})

	predictionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_predictions_published_total",
		Help: "Live predictions published on the predictions stream",
	})
)

// Handler processes one decoded-later stream payload.
type Handler interface {
	Handle(ctx context.Context, payload []byte) Outcome
}

// LiveStore is the persistence the live and refresh paths need.
type LiveStore interface {
	UpsertFixtures(ctx context.Context, fixtures []models.Fixture) (int, error)
	UpsertLiveFixture(ctx context.Context, f models.Fixture) error
	UpsertMatchStats(ctx context.Context, fixtureID int64, stats models.MatchStats) error
	UpsertPrediction(ctx context.Context, kind models.PredictionKind, fixtureID int64, p models.Probabilities, meta models.PredictionMeta) error
}

// Predictor evaluates the outcome classifier.
type Predictor interface {
	Infer(v models.FeatureVector) (models.Probabilities, error)
}

// Publisher emits live predictions downstream.
type Publisher interface {
	PublishPrediction(ctx context.Context, p models.OutboundPrediction) error
}

// Recorder accepts prediction history rows. Enqueue must not block.
type Recorder interface {
	Enqueue(rec ArchiveRecord) bool
}

// DispatcherConfig configures the live/refresh dispatcher
type DispatcherConfig struct {
	Store     LiveStore
	Predictor Predictor
	Publisher Publisher
	// Archive is optional.
	Archive      Recorder
	ModelVersion string
	// Prematch handles prematch events that arrive on the live/refresh streams.
	// When nil they are skipped.
	Prematch Handler
	Logger   *zap.SugaredLogger
}

// Dispatcher routes inbound events by mode: refresh events upsert the fixture,
// live events run the full feature, inference and persistence pipeline.
type Dispatcher struct {
	cfg      DispatcherConfig
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		cfg:      cfg,
		validate: validator.New(),
		logger:   cfg.Logger,
	}
}

// Handle never panics and never returns an error: failures are logged and the
// message is dropped so the stream keeps moving.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) (outcome Outcome) {
	mode := "unknown"
	var e models.InboundEvent
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Dispatcher panic", "error", r, "mode", mode, "fixture_id", e.FixtureID)
			outcome = OutcomeFailed
		}
		// Delegated events are counted by their own handler.
		if mode != "" {
			eventsHandled.WithLabelValues(mode, string(outcome)).Inc()
		}
	}()

	if err := json.Unmarshal(payload, &e); err != nil {
		d.logger.Warnw("Skipping undecodable event", "error", err, "bytes", len(payload))
		return OutcomeSkipped
	}

	m := e.ResolveMode()
	mode = string(m)

	switch m {
	case models.ModeRefresh:
		return d.handleRefresh(ctx, &e)
	case models.ModeLive:
		return d.handleLive(ctx, &e)
	case models.ModePrematch:
		if d.cfg.Prematch == nil {
			d.logger.Warnw("Skipping prematch event, no prematch handler", "fixture_id", e.FixtureID)
			return OutcomeSkipped
		}
		mode = ""
		return d.cfg.Prematch.Handle(ctx, payload)
	default:
		mode = "unknown"
		d.logger.Warnw("Skipping event with unknown mode", "mode", m)
		return OutcomeSkipped
	}
}

func (d *Dispatcher) checkFixtureID(e *models.InboundEvent) error {
	if err := d.validate.Struct(e); err != nil || e.FixtureID == nil {
		return models.ErrMissingFixtureID
	}
	return nil
}

func (d *Dispatcher) handleRefresh(ctx context.Context, e *models.InboundEvent) Outcome {
	if err := d.checkFixtureID(e); err != nil {
		d.logger.Warnw("Skipping refresh event", "error", err)
		return OutcomeSkipped
	}

	if _, err := d.cfg.Store.UpsertFixtures(ctx, []models.Fixture{e.Fixture()}); err != nil {
		d.logger.Errorw("Refresh upsert failed", "fixture_id", *e.FixtureID, "error", err)
		return OutcomeFailed
	}

	d.logger.Debugw("Refresh upsert ok", "fixture_id", *e.FixtureID, "status", e.StatusShort)
	return OutcomeProcessed
}

func (d *Dispatcher) handleLive(ctx context.Context, e *models.InboundEvent) Outcome {
	if err := d.checkFixtureID(e); err != nil {
		d.logger.Warnw("Skipping live event", "error", err)
		return OutcomeSkipped
	}

	id := *e.FixtureID
	if err := d.processLive(ctx, e); err != nil {
		d.logger.Errorw("Live event failed", "fixture_id", id, "error", err)
		return OutcomeFailed
	}
	return OutcomeProcessed
}

func (d *Dispatcher) processLive(ctx context.Context, e *models.InboundEvent) error {
	id := *e.FixtureID

	if err := d.cfg.Store.UpsertLiveFixture(ctx, e.Fixture()); err != nil {
		return err
	}

	stats := e.Stats()
	if err := d.cfg.Store.UpsertMatchStats(ctx, id, stats); err != nil {
		return err
	}

	features := logic.FeaturesFromEvent(e)

	start := time.Now()
	probs, err := d.cfg.Predictor.Infer(features)
	inferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("infer: %w", err)
	}

	if err := d.cfg.Store.UpsertPrediction(ctx, models.PredictionLive, id, probs, e.Meta()); err != nil {
		return err
	}

	if err := d.cfg.Publisher.PublishPrediction(context.WithoutCancel(ctx), models.OutboundPrediction{FixtureID: id, Probabilities: probs}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	predictionsPublished.Inc()

	if d.cfg.Archive != nil {
		rec := ArchiveRecord{
			FixtureID:     id,
			ModelVersion:  d.cfg.ModelVersion,
			Status:        e.StatusShort,
			Elapsed:       e.Elapsed,
			HomeGoals:     e.HomeGoals,
			AwayGoals:     e.AwayGoals,
			Features:      features,
			Probabilities: probs,
			CreatedAt:     time.Now().UTC(),
		}
		if !d.cfg.Archive.Enqueue(rec) {
			d.logger.Warnw("Archive queue full, dropping history row", "fixture_id", id)
		}
	}

	d.logger.Infow("Live prediction stored",
		"fixture_id", id,
		"elapsed", e.Elapsed,
		"prob_home_win", probs.HomeWin,
		"prob_draw", probs.Draw,
		"prob_away_win", probs.AwayWin,
	)
	return nil
}

// H2HSource fetches past meetings between two teams.
type H2HSource interface {
	HeadToHead(ctx context.Context, teamA, teamB int64, last int) ([]models.H2HMeeting, error)
}

// PrematchStore is the persistence the prematch path needs.
type PrematchStore interface {
	UpsertH2H(ctx context.Context, summaries []models.H2HSummary) (int, error)
	UpsertPrediction(ctx context.Context, kind models.PredictionKind, fixtureID int64, p models.Probabilities, meta models.PredictionMeta) error
	UpcomingWithH2H(ctx context.Context, limit int) ([]models.UpcomingH2H, error)
}

// PrematchConfig configures the prematch dispatcher
type PrematchConfig struct {
	Store  PrematchStore
	Source H2HSource
	// Window is the number of past meetings requested.
	Window          int
	UpstreamTimeout time.Duration
	Logger          *zap.SugaredLogger
}

// PrematchDispatcher turns prematch events into head-to-head summaries and
// smoothed pre-match predictions.
type PrematchDispatcher struct {
	cfg      PrematchConfig
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewPrematchDispatcher(cfg PrematchConfig) *PrematchDispatcher {
	if cfg.Window <= 0 {
		cfg.Window = 10
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 25 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &PrematchDispatcher{cfg: cfg, validate: validator.New(), logger: cfg.Logger}
}

func (p *PrematchDispatcher) Handle(ctx context.Context, payload []byte) (outcome Outcome) {
	var e models.InboundEvent
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Prematch dispatcher panic", "error", r, "fixture_id", e.FixtureID)
			outcome = OutcomeFailed
		}
		eventsHandled.WithLabelValues(string(models.ModePrematch), string(outcome)).Inc()
	}()

	if err := json.Unmarshal(payload, &e); err != nil {
		p.logger.Warnw("Skipping undecodable prematch event", "error", err)
		return OutcomeSkipped
	}

	if err := p.validate.Struct(&e); err != nil || e.FixtureID == nil {
		p.logger.Warnw("Skipping prematch event", "error", models.ErrMissingFixtureID)
		return OutcomeSkipped
	}
	if e.HomeTeamID == nil || e.AwayTeamID == nil {
		p.logger.Warnw("Skipping prematch event", "fixture_id", *e.FixtureID, "error", models.ErrMissingTeamIDs)
		return OutcomeSkipped
	}

	if err := p.process(ctx, &e); err != nil {
		p.logger.Errorw("Prematch event failed", "fixture_id", *e.FixtureID, "error", err)
		return OutcomeFailed
	}
	return OutcomeProcessed
}

func (p *PrematchDispatcher) process(ctx context.Context, e *models.InboundEvent) error {
	id, home, away := *e.FixtureID, *e.HomeTeamID, *e.AwayTeamID

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.UpstreamTimeout)
	history, err := p.cfg.Source.HeadToHead(fetchCtx, home, away, p.cfg.Window)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch head to head: %w", err)
	}

	summary := logic.AggregateH2H(id, history, home, away, p.cfg.Window)
	if _, err := p.cfg.Store.UpsertH2H(ctx, []models.H2HSummary{summary}); err != nil {
		return err
	}

	probs := logic.EstimatePrematch(&summary)
	if err := p.cfg.Store.UpsertPrediction(ctx, models.PredictionPrematch, id, probs, e.Meta()); err != nil {
		return err
	}

	p.logger.Infow("Prematch prediction stored",
		"fixture_id", id,
		"h2h_matches", summary.Matches,
		"wdl", fmt.Sprintf("%d/%d/%d", summary.HomeWins, summary.Draws, summary.AwayWins),
		"goal_diff_avg", summary.HomeGoalDiff,
	)
	return nil
}

// Backfill recomputes pre-match predictions for every not-started fixture that
// already has a stored head-to-head summary. A failed row is logged and skipped.
func (p *PrematchDispatcher) Backfill(ctx context.Context, limit int) (int, error) {
	rows, err := p.cfg.Store.UpcomingWithH2H(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load upcoming fixtures: %w", err)
	}

	written := 0
	var errs []error
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		meta := models.PredictionMeta{League: row.League, Season: row.Season, HomeTeam: row.HomeTeam, AwayTeam: row.AwayTeam}
		probs := logic.EstimatePrematch(&row.Summary)
		if err := p.cfg.Store.UpsertPrediction(ctx, models.PredictionPrematch, row.FixtureID, probs, meta); err != nil {
			p.logger.Errorw("Backfill row failed", "fixture_id", row.FixtureID, "error", err)
			errs = append(errs, err)
			continue
		}
		written++
	}

	p.logger.Infow("Prematch backfill done", "candidates", len(rows), "written", written, "failed", len(errs))
	if written == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return written, nil
}
