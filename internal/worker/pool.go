// Package worker consumes the fixture streams and turns events into stored and
// published predictions:
// - Pool reads one or more streams as a consumer group member and acks every message
// - Dispatcher and PrematchDispatcher handle a single event
// - Archive batches prediction history into ClickHouse
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/broker"
)

// Prometheus metrics
var (
	messagesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_stream_messages_read_total",
		Help: "Stream messages delivered to this consumer",
	}, []string{"stream"})

	messagesAcked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_stream_messages_acked_total",
		Help: "Stream messages acknowledged after handling",
	}, []string{"stream"})

	streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_stream_errors_total",
		Help: "Stream read, claim and ack failures",
	}, []string{"stream", "op"})

	handleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predictor_handle_duration_seconds",
		Help:    "Duration of handling a single stream message",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
)

// StreamReader is the consumer group surface the pool drives.
type StreamReader interface {
	EnsureGroup(ctx context.Context, stream string) error
	Claim(ctx context.Context, stream string) ([]broker.Message, error)
	ReadPending(ctx context.Context, stream string) ([]broker.Message, error)
	ReadNew(ctx context.Context, stream string) ([]broker.Message, error)
	Ack(ctx context.Context, msg broker.Message) error
}

// PoolConfig configures the stream worker pool
type PoolConfig struct {
	Name    string
	Streams []string
	Reader  StreamReader
	Handler Handler
	// RetryDelay is the pause after a failed read before trying again.
	RetryDelay time.Duration
	// ClaimInterval is how often abandoned entries of other consumers are claimed.
	ClaimInterval time.Duration
	Logger        *zap.SugaredLogger
}

// Pool runs one consumer goroutine per stream. Messages are handled in delivery
// order within a stream and acked whatever the outcome.
type Pool struct {
	config PoolConfig
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.SugaredLogger
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) *Pool {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Pool{
		config: cfg,
		logger: cfg.Logger.With("pool", cfg.Name),
	}
}

// Start launches the consumer goroutines
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	for _, stream := range p.config.Streams {
		p.wg.Add(1)
		go p.consume(stream)
	}

	p.logger.Infow("Worker pool started", "streams", p.config.Streams)
}

// Stop cancels the readers and waits for in-flight messages to finish.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// Run starts the pool and blocks until ctx is done.
func (p *Pool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (p *Pool) consume(stream string) {
	defer p.wg.Done()
	ctx := p.ctx

	for {
		err := p.config.Reader.EnsureGroup(ctx, stream)
		if err == nil {
			break
		}
		streamErrors.WithLabelValues(stream, "group").Inc()
		p.logger.Errorw("Failed to create consumer group", "stream", stream, "error", err)
		if !p.sleep(ctx) {
			return
		}
	}

	// Entries delivered before a crash are still in our pending list.
	for ctx.Err() == nil {
		msgs, err := p.config.Reader.ReadPending(ctx, stream)
		if err != nil {
			streamErrors.WithLabelValues(stream, "pending").Inc()
			p.logger.Errorw("Failed to read pending entries", "stream", stream, "error", err)
			if !p.sleep(ctx) {
				return
			}
			continue
		}
		if len(msgs) == 0 {
			break
		}
		p.logger.Infow("Replaying pending entries", "stream", stream, "count", len(msgs))
		p.handleAll(ctx, stream, msgs)
	}

	var lastClaim time.Time
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= p.config.ClaimInterval {
			lastClaim = time.Now()
			claimed, err := p.config.Reader.Claim(ctx, stream)
			if err != nil {
				streamErrors.WithLabelValues(stream, "claim").Inc()
				p.logger.Warnw("Failed to claim idle entries", "stream", stream, "error", err)
			} else if len(claimed) > 0 {
				p.logger.Infow("Claimed idle entries", "stream", stream, "count", len(claimed))
				p.handleAll(ctx, stream, claimed)
			}
		}

		msgs, err := p.config.Reader.ReadNew(ctx, stream)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			streamErrors.WithLabelValues(stream, "read").Inc()
			p.logger.Errorw("Failed to read stream", "stream", stream, "error", err)
			if !p.sleep(ctx) {
				return
			}
			continue
		}
		p.handleAll(ctx, stream, msgs)
	}
}

func (p *Pool) handleAll(ctx context.Context, stream string, msgs []broker.Message) {
	for _, msg := range msgs {
		messagesRead.WithLabelValues(stream).Inc()
		p.handle(ctx, msg)
	}
}

func (p *Pool) handle(ctx context.Context, msg broker.Message) {
	start := time.Now()
	outcome := OutcomeSkipped
	if msg.Payload == nil {
		p.logger.Warnw("Skipping entry without payload", "stream", msg.Stream, "id", msg.ID)
	} else {
		outcome = p.config.Handler.Handle(ctx, msg.Payload)
	}
	handleDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())

	// Ack even on shutdown so a handled message is not replayed.
	if err := p.config.Reader.Ack(context.WithoutCancel(ctx), msg); err != nil {
		streamErrors.WithLabelValues(msg.Stream, "ack").Inc()
		p.logger.Errorw("Failed to ack message", "stream", msg.Stream, "id", msg.ID, "error", err)
		return
	}
	messagesAcked.WithLabelValues(msg.Stream).Inc()
}

func (p *Pool) sleep(ctx context.Context) bool {
	t := time.NewTimer(p.config.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
