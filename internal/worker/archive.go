package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/matchcast/predictor/internal/models"
)

var (
	archiveQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_archive_rows_queued_total",
		Help: "Prediction history rows accepted by the archive queue",
	})

	archiveWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_archive_rows_written_total",
		Help: "Prediction history rows sent to ClickHouse",
	})

	archiveFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_archive_rows_failed_total",
		Help: "Prediction history rows lost to a failed batch",
	})

	archiveShed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictor_archive_rows_shed_total",
		Help: "Prediction history rows dropped because the queue was full",
	})

	archiveQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predictor_archive_queue_depth",
		Help: "Current depth of the archive queue",
	})

	archiveBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "predictor_archive_batch_duration_seconds",
		Help:    "Duration of batch inserts to ClickHouse",
		Buckets: prometheus.DefBuckets,
	})
)

const createPredictionHistory = `
	CREATE TABLE IF NOT EXISTS prediction_history (
		id                 UUID,
		fixture_id         Int64,
		model_version      LowCardinality(String),
		status             LowCardinality(String),
		elapsed            Nullable(Int32),
		home_goals         Nullable(Int32),
		away_goals         Nullable(Int32),
		diff_goals         Float64,
		diff_shots         Float64,
		diff_shots_inbox   Float64,
		diff_possession    Float64,
		diff_pass_accuracy Float64,
		diff_corners       Float64,
		diff_fouls         Float64,
		prob_home_win      Float64,
		prob_draw          Float64,
		prob_away_win      Float64,
		created_at         DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (fixture_id, created_at)
`

const insertPredictionHistory = `
	INSERT INTO prediction_history (
		id, fixture_id, model_version, status, elapsed, home_goals, away_goals,
		diff_goals, diff_shots, diff_shots_inbox, diff_possession, diff_pass_accuracy, diff_corners, diff_fouls,
		prob_home_win, prob_draw, prob_away_win, created_at
	)
`

// ArchiveRecord is one live prediction together with the features that produced it.
type ArchiveRecord struct {
	FixtureID     int64
	ModelVersion  string
	Status        string
	Elapsed       *int
	HomeGoals     *int
	AwayGoals     *int
	Features      models.FeatureVector
	Probabilities models.Probabilities
	CreatedAt     time.Time
}

// BatchConn is the part of driver.Conn the archive uses.
type BatchConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// ArchiveConfig configures the archive writer
type ArchiveConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	ClickHouse    BatchConn
	Logger        *zap.SugaredLogger
}

// Archive buffers live predictions and writes them to ClickHouse in batches. It
// sheds load instead of blocking the dispatcher when the queue is full.
type Archive struct {
	config ArchiveConfig
	queue  chan ArchiveRecord
	wg     sync.WaitGroup
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	stopped bool
}

func NewArchive(cfg ArchiveConfig) *Archive {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Archive{
		config: cfg,
		queue:  make(chan ArchiveRecord, cfg.QueueSize),
		logger: cfg.Logger,
	}
}

// EnsureSchema creates the history table when it does not exist yet.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	return a.config.ClickHouse.Exec(ctx, createPredictionHistory)
}

// Start launches the writer goroutine.
func (a *Archive) Start() {
	a.wg.Add(1)
	go a.writer()

	a.logger.Infow("Prediction archive started",
		"queueSize", a.config.QueueSize,
		"batchSize", a.config.BatchSize,
		"flushInterval", a.config.FlushInterval,
	)
}

// Stop drains the queue, flushes the last batch and waits for the writer.
func (a *Archive) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("Prediction archive stopped")
}

// Enqueue never blocks; it returns false when the row was dropped.
func (a *Archive) Enqueue(rec ArchiveRecord) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		archiveShed.Inc()
		return false
	}

	select {
	case a.queue <- rec:
		archiveQueued.Inc()
		archiveQueueDepth.Set(float64(len(a.queue)))
		return true
	default:
		archiveShed.Inc()
		return false
	}
}

// QueueDepth returns current queue size
func (a *Archive) QueueDepth() int {
	return len(a.queue)
}

func (a *Archive) writer() {
	defer a.wg.Done()

	batch := make([]ArchiveRecord, 0, a.config.BatchSize)
	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		start := time.Now()
		if err := a.writeBatch(batch); err != nil {
			a.logger.Errorw("Archive batch failed", "batchSize", len(batch), "error", err)
			archiveFailed.Add(float64(len(batch)))
		} else {
			a.logger.Debugw("Archive batch written", "batchSize", len(batch), "duration", time.Since(start))
			archiveWritten.Add(float64(len(batch)))
		}
		archiveBatchDuration.Observe(time.Since(start).Seconds())
		archiveQueueDepth.Set(float64(len(a.queue)))

		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-a.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= a.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

func (a *Archive) writeBatch(batch []ArchiveRecord) error {
	// The writer outlives the caller's context so the final flush on Stop still lands.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chBatch, err := a.config.ClickHouse.PrepareBatch(ctx, insertPredictionHistory)
	if err != nil {
		return err
	}

	for _, rec := range batch {
		f := rec.Features
		err := chBatch.Append(
			uuid.New(),
			rec.FixtureID,
			rec.ModelVersion,
			rec.Status,
			toInt32(rec.Elapsed),
			toInt32(rec.HomeGoals),
			toInt32(rec.AwayGoals),
			f[models.FeatDiffGoals],
			f[models.FeatDiffShots],
			f[models.FeatDiffShotsInbox],
			f[models.FeatDiffPossession],
			f[models.FeatDiffPassAccuracy],
			f[models.FeatDiffCorners],
			f[models.FeatDiffFouls],
			rec.Probabilities.HomeWin,
			rec.Probabilities.Draw,
			rec.Probabilities.AwayWin,
			rec.CreatedAt,
		)
		if err != nil {
			a.logger.Warnw("Failed to append prediction to batch", "error", err, "fixture_id", rec.FixtureID)
			continue
		}
	}

	return chBatch.Send()
}

func toInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
