// Package poller holds the producer loops that read the upstream football API (or
// the fixture table) on an interval and publish events onto the fixture streams.
package poller

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "predictor_poll_duration_seconds",
		Help:    "Duration of one poll cycle",
		Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"poller"})

	pollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_poll_errors_total",
		Help: "Poll cycles or items that failed",
	}, []string{"poller"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictor_poll_events_published_total",
		Help: "Events published onto the fixture streams",
	}, []string{"poller"})

	dedupSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_dedup_suppressed_total",
		Help: "Live snapshots suppressed because nothing changed",
	})
)

// Sender publishes an event on a fixture-partitioned topic.
type Sender interface {
	Send(ctx context.Context, topic string, fixtureID int64, v any) (string, error)
}

// cycle runs one poll and returns the number of events published.
type cycle func(ctx context.Context) (int, error)

// run polls immediately, then every interval, until ctx is done. A failed cycle
// is logged; the next tick retries with fresh data.
func run(ctx context.Context, name string, interval time.Duration, logger *zap.SugaredLogger, poll cycle) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Infow("Poller started", "poller", name, "interval", interval)

	for {
		start := time.Now()
		n, err := poll(ctx)
		pollDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil && ctx.Err() == nil {
			pollErrors.WithLabelValues(name).Inc()
			logger.Errorw("Poll failed", "poller", name, "error", err)
		} else if err == nil {
			logger.Debugw("Poll done", "poller", name, "published", n, "duration", time.Since(start))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Infow("Poller stopped", "poller", name)
			return nil
		}
	}
}
