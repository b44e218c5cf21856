package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/models"
)

// MaxLimit caps the row count any list endpoint returns.
const MaxLimit = 1000

// ReadStore is the read side of the persistence gateway.
type ReadStore interface {
	MatchesWithProbabilities(ctx context.Context, league string, season, limit int, upcomingOnly bool) ([]models.MatchWithProbabilities, error)
	LatestLivePredictions(ctx context.Context, limit int) ([]models.LivePrediction, error)
	Leagues(ctx context.Context) ([]string, error)
	Seasons(ctx context.Context, league string) ([]int, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// QueueReporter exposes the archive queue depth for readiness output.
type QueueReporter interface {
	QueueDepth() int
}

type Config struct {
	Store ReadStore
	// Dependencies checked by /ready, by name.
	Checks map[string]Pinger
	// Archive is optional.
	Archive QueueReporter
	Logger  *zap.Logger
}

type Handler struct {
	store     ReadStore
	checks    map[string]Pinger
	archive   QueueReporter
	logger    *zap.SugaredLogger
	validator *validator.Validate
}

func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:     cfg.Store,
		checks:    cfg.Checks,
		archive:   cfg.Archive,
		logger:    logger.Sugar(),
		validator: validator.New(),
	}
}
