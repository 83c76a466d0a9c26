package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/applications"
	"jobmate/discovery-service/internal/clock"
	"jobmate/discovery-service/internal/config"
	"jobmate/discovery-service/internal/db"
	"jobmate/discovery-service/internal/dedup"
	"jobmate/discovery-service/internal/embedding"
	"jobmate/discovery-service/internal/events"
	"jobmate/discovery-service/internal/ingest"
	"jobmate/discovery-service/internal/logger"
	"jobmate/discovery-service/internal/matchcache"
	"jobmate/discovery-service/internal/model"
	"jobmate/discovery-service/internal/relevance"
	"jobmate/discovery-service/internal/retention"
	"jobmate/discovery-service/internal/scheduler"
	"jobmate/discovery-service/internal/scraper"
	"jobmate/discovery-service/internal/store"
)

// base holds what every command needs: config, logger and the database.
type base struct {
	cfg   *config.Config
	log   *zap.Logger
	pool  *pgxpool.Pool
	store *store.PostgresStore
}

func newBase(ctx context.Context, cmd *cobra.Command) (*base, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	json := cfg.LogJSON || flagJSON
	debug := cfg.LogDebug || flagDebug
	log, err := logger.New(json, debug)
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}
	log = log.With(zap.String("service", app), zap.String("command", cmd.Name()))

	log.Info("connecting to PostgreSQL")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return &base{cfg: cfg, log: log, pool: pool, store: store.NewPostgresStore(pool)}, nil
}

func (b *base) close() {
	b.pool.Close()
	_ = b.log.Sync()
}

// pipeline is every component of the discovery pipeline wired over the
// base.
type pipeline struct {
	*base
	rdb       *redis.Client
	matches   *matchcache.Service
	scheduler *scheduler.Scheduler
	apps      *applications.Service
}

func newPipeline(ctx context.Context, b *base) (*pipeline, error) {
	cfg, log := b.cfg, b.log
	clk := clock.Real{}
	p := &pipeline{base: b}
	fail := func(err error) (*pipeline, error) {
		if p.rdb != nil {
			_ = p.rdb.Close()
		}
		return nil, err
	}

	var (
		backend   matchcache.Backend
		publisher events.Publisher = events.Nop{}
	)
	if cfg.RedisURL != "" {
		log.Info("connecting to Redis")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		p.rdb = rdb
		backend = matchcache.NewRedisBackend(rdb)
		publisher = events.NewRedisPublisher(rdb)
	} else {
		log.Warn("REDIS_URL not set: match cache is in-process and events are not published")
		backend = matchcache.NewMemoryBackend(clk)
	}

	embedder, err := embedding.New(ctx, cfg.Embedding, log)
	if err != nil {
		return fail(fmt.Errorf("embedding: %w", err))
	}
	scorer := relevance.NewScorer(embedder, b.store, cfg.Matching.ScoreFloor, clk, log)
	cache := matchcache.New(backend, cfg.Matching.CacheTTL, clk, log)
	p.matches = matchcache.NewService(cache, b.store, scorer, cfg.Matching.CandidateLimit, log)

	catalog, err := config.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return fail(err)
	}
	registry, err := scraper.BuildRegistry(cfg, catalog, log)
	if err != nil {
		return fail(fmt.Errorf("adapters: %w", err))
	}
	log.Info("adapters registered", zap.Any("sources", registry.Sources()))

	coordinator := ingest.New(
		registry,
		dedup.New(b.store, cfg.DedupWindow(), log),
		publisher,
		clk,
		ingest.Options{
			Concurrency:   cfg.Ingest.Concurrency,
			SourceTimeout: cfg.Ingest.SourceTimeout,
			MaxPostings:   cfg.Ingest.MaxPostings,
		},
		log,
	)
	sweeper := retention.New(b.store, cache, publisher, cfg.Retention.BatchSize, log)

	p.scheduler = scheduler.New(coordinator, sweeper, b.store, clk, scheduler.Options{
		IngestSpec:    cfg.Ingest.Schedule,
		RetentionSpec: cfg.Retention.Schedule,
		RunOnStart:    cfg.Ingest.RunOnStart,
		StaleAfter:    cfg.StaleAfter(),
		MaxResults:    cfg.Ingest.MaxResults,
		MaxPostings:   cfg.Ingest.MaxPostings,
		DefaultQuery: model.Query{
			Keywords:   cfg.Ingest.DefaultKeywords,
			Location:   cfg.Ingest.DefaultLocation,
			MaxResults: cfg.Ingest.MaxResults,
		},
	}, log)
	p.apps = applications.NewService(b.store, log)
	return p, nil
}

func (p *pipeline) close() {
	if p.rdb != nil {
		_ = p.rdb.Close()
	}
	p.base.close()
}
