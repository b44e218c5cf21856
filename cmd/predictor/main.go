package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/config"
	"github.com/matchcast/predictor/internal/handlers"
	"github.com/matchcast/predictor/internal/inference"
	"github.com/matchcast/predictor/internal/poller"
	"github.com/matchcast/predictor/internal/store"
	"github.com/matchcast/predictor/internal/upstream"
	"github.com/matchcast/predictor/internal/worker"
)

// deps holds the connections the selected roles share.
type deps struct {
	pg       *pgxpool.Pool
	rdb      *redis.Client
	ch       driver.Conn
	store    *store.Store
	producer *broker.Producer
	consumer *broker.Consumer
	upstream *upstream.Client
	archive  *worker.Archive
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var zl *zap.Logger
	if cfg.Env == "development" {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect dependencies", "error", err)
	}
	defer d.close()

	if d.archive != nil {
		d.archive.Start()
		defer d.archive.Stop()
	}

	logger.Infow("Starting predictor", "roles", cfg.Roles, "partitions", cfg.OwnedPartitions, "consumer", cfg.ConsumerName)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HasRole(config.RoleLivePoller) {
		p := poller.NewLivePoller(poller.LiveConfig{
			Source:   d.upstream,
			Sender:   d.producer,
			Interval: cfg.LivePollInterval,
			Timeout:  cfg.UpstreamTimeout,
			Logger:   logger,
		})
		g.Go(func() error { return p.Run(gctx) })
	}

	if cfg.HasRole(config.RoleRefreshPoller) {
		p := poller.NewRefreshPoller(poller.RefreshConfig{
			Source:    d.upstream,
			Sender:    d.producer,
			LeagueIDs: cfg.LeagueIDs,
			Season:    cfg.Season,
			Interval:  cfg.RefreshInterval,
			Timeout:   cfg.UpstreamTimeout,
			Logger:    logger,
		})
		g.Go(func() error { return p.Run(gctx) })
	}

	if cfg.HasRole(config.RoleH2HPoller) {
		p := poller.NewH2HPoller(poller.H2HConfig{
			Store:    d.store,
			Sender:   d.producer,
			Limit:    cfg.H2HBatchLimit,
			Stale:    cfg.H2HStale,
			Interval: cfg.H2HPollInterval,
			Logger:   logger,
		})
		g.Go(func() error { return p.Run(gctx) })
	}

	var prematch *worker.PrematchDispatcher
	if d.store != nil {
		pc := worker.PrematchConfig{
			Store:           d.store,
			Window:          cfg.H2HLast,
			UpstreamTimeout: cfg.UpstreamTimeout,
			Logger:          logger,
		}
		// Backfill works from stored summaries and needs no upstream.
		if d.upstream != nil {
			pc.Source = d.upstream
		}
		prematch = worker.NewPrematchDispatcher(pc)
	}

	if cfg.HasRole(config.RoleDispatcher) {
		svc, err := inference.Load(cfg.ModelPath)
		if err != nil {
			logger.Fatalw("Failed to load model artifact", "path", cfg.ModelPath, "error", err)
		}
		logger.Infow("Model loaded", "version", svc.Version())

		dc := worker.DispatcherConfig{
			Store:        d.store,
			Predictor:    svc,
			Publisher:    d.producer,
			ModelVersion: svc.Version(),
			Logger:       logger,
		}
		if d.archive != nil {
			dc.Archive = d.archive
		}
		if d.upstream != nil {
			dc.Prematch = prematch
		}

		streams := append(broker.Streams(broker.TopicLiveStats, cfg.OwnedPartitions),
			broker.Streams(broker.TopicRefresh, cfg.OwnedPartitions)...)
		pool := worker.NewPool(worker.PoolConfig{
			Name:    config.RoleDispatcher,
			Streams: streams,
			Reader:  d.consumer,
			Handler: worker.NewDispatcher(dc),
			Logger:  logger,
		})
		g.Go(func() error { return pool.Run(gctx) })
	}

	if cfg.HasRole(config.RolePrematchDispatcher) {
		pool := worker.NewPool(worker.PoolConfig{
			Name:    config.RolePrematchDispatcher,
			Streams: broker.Streams(broker.TopicPrematch, cfg.OwnedPartitions),
			Reader:  d.consumer,
			Handler: prematch,
			Logger:  logger,
		})
		g.Go(func() error { return pool.Run(gctx) })
	}

	if cfg.HasRole(config.RolePrematchBackfill) {
		g.Go(func() error {
			n, err := prematch.Backfill(gctx, cfg.BackfillLimit)
			if err != nil {
				logger.Errorw("Prematch backfill failed", "error", err)
				return nil
			}
			logger.Infow("Prematch backfill finished", "written", n)
			return nil
		})
	}

	if cfg.HasRole(config.RoleAPI) {
		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Port),
			Handler: handlers.New(handlers.Config{
				Store:   d.store,
				Checks:  d.checks(),
				Archive: d.reporter(),
				Logger:  zl,
			}).Router(cfg.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Infow("API listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Errorw("Predictor stopped with error", "error", err)
		return
	}
	logger.Info("Predictor stopped")
}

// connect opens only the connections the selected roles need.
func connect(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*deps, error) {
	d := &deps{}

	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.pg = pool
		d.store = store.New(pool, cfg.StoreTimeout)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		d.rdb = redis.NewClient(opts)
		d.producer = broker.NewProducer(d.rdb, cfg.StreamPartitions, cfg.StreamMaxLen)
		d.consumer = broker.NewConsumer(d.rdb, broker.ConsumerConfig{
			Group:        cfg.ConsumerGroup,
			Name:         cfg.ConsumerName,
			Block:        cfg.ReadBlock,
			Count:        int64(cfg.ReadCount),
			ClaimMinIdle: cfg.ClaimMinIdle,
		})
	}

	if cfg.APIFootballKey != "" {
		d.upstream = upstream.NewClient(cfg.APIFootballKey,
			upstream.WithBaseURL(cfg.APIFootballBaseURL),
			upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst),
			upstream.WithTimeout(cfg.UpstreamTimeout),
		)
	}

	if cfg.ClickHouseURL != "" && cfg.HasRole(config.RoleDispatcher) {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("clickhouse dsn: %w", err)
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		d.ch = conn

		d.archive = worker.NewArchive(worker.ArchiveConfig{
			QueueSize:     cfg.ArchiveQueueSize,
			BatchSize:     cfg.ArchiveBatchSize,
			FlushInterval: cfg.ArchiveFlushInterval,
			ClickHouse:    conn,
			Logger:        logger,
		})
		if err := d.archive.EnsureSchema(ctx); err != nil {
			// History is optional; predictions still flow without it.
			logger.Warnw("Prediction archive disabled", "error", err)
			d.archive = nil
		}
	}

	return d, nil
}

func (d *deps) checks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if d.pg != nil {
		checks["postgres"] = handlers.PingFunc(d.pg.Ping)
	}
	if d.rdb != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return d.rdb.Ping(ctx).Err()
		})
	}
	if d.ch != nil {
		checks["clickhouse"] = handlers.PingFunc(d.ch.Ping)
	}
	return checks
}

func (d *deps) reporter() handlers.QueueReporter {
	if d.archive == nil {
		return nil
	}
	return d.archive
}

func (d *deps) close() {
	if d.ch != nil {
		d.ch.Close()
	}
	if d.rdb != nil {
		d.rdb.Close()
	}
	if d.pg != nil {
		d.pg.Close()
	}
}
