package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/ratings-crawler/internal/api"
	"github.com/JakeFAU/ratings-crawler/internal/clock/system"
	"github.com/JakeFAU/ratings-crawler/internal/config"
	"github.com/JakeFAU/ratings-crawler/internal/crawler"
	"github.com/JakeFAU/ratings-crawler/internal/discovery"
	"github.com/JakeFAU/ratings-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/ratings-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/ratings-crawler/internal/hash/sha256"
	"github.com/JakeFAU/ratings-crawler/internal/id/uuid"
	"github.com/JakeFAU/ratings-crawler/internal/metrics"
	"github.com/JakeFAU/ratings-crawler/internal/paginate"
	"github.com/JakeFAU/ratings-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/ratings-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/ratings-crawler/internal/runner"
	"github.com/JakeFAU/ratings-crawler/internal/scrape/letterboxd"
	gcsstore "github.com/JakeFAU/ratings-crawler/internal/storage/gcs"
	localstore "github.com/JakeFAU/ratings-crawler/internal/storage/local"
	memorystore "github.com/JakeFAU/ratings-crawler/internal/storage/memory"
	miniostore "github.com/JakeFAU/ratings-crawler/internal/storage/minio"
	"github.com/JakeFAU/ratings-crawler/internal/storage/postgres"
	"github.com/JakeFAU/ratings-crawler/internal/store"
)

const (
	opsShutdownTimeout = 10 * time.Second
	opsHeaderTimeout   = 5 * time.Second
)

// App holds the wired services for one CLI invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runner  *runner.Runner
	ready   api.ReadyFunc
	closers []func()
}

// Close releases backends in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	metrics.Init()

	if demand := cfg.InflightDemand(); demand > cfg.Fetch.MaxInflight {
		logger.Warn("pool widths exceed the in-flight cap; requests will queue",
			zap.Int("demand", demand),
			zap.Int("max_inflight", cfg.Fetch.MaxInflight),
		)
	}

	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.RequestTimeout,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.RequestsPerSecond,
		DefaultBurst: cfg.Fetch.Burst,
	})
	fetch := fetcher.New(transport, limiter, fetcher.Config{
		MaxRetries:  cfg.Fetch.MaxRetries,
		Backoff:     fetcher.Backoff{Base: cfg.Fetch.BaseDelay},
		MaxInflight: int64(cfg.Fetch.MaxInflight),
	}, logger.Named("fetcher"))

	pages := paginate.New(
		fetch,
		letterboxd.NewFilmGridScraper(),
		letterboxd.RatingsURLs(cfg.Crawler.BaseURL),
		paginate.Config{
			Strategy:  cfg.Pagination.Strategy,
			BatchSize: cfg.Pagination.BatchSize,
			Workers:   cfg.Pagination.Workers,
			MinDelay:  cfg.Pagination.MinDelay,
			MaxDelay:  cfg.Pagination.MaxDelay,
			MaxPages:  cfg.Pagination.MaxPages,
		},
		logger.Named("paginate"),
	)

	baseURL := cfg.Crawler.BaseURL
	discover := discovery.New(
		fetch,
		letterboxd.NewMembersScraper(),
		func(page int) string { return letterboxd.MembersURL(baseURL, page) },
		discovery.Config{MinDelay: cfg.Discovery.MinDelay, MaxDelay: cfg.Discovery.MaxDelay},
		logger.Named("discovery"),
	)

	clock := system.New()
	gateway, err := a.buildGateway(ctx, clock)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher crawler.Publisher
	if cfg.PubSub.TopicID != "" {
		pub, err := a.buildPublisher(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		publisher = pub
	}

	a.runner = runner.New(
		gateway,
		discover,
		pages,
		publisher,
		clock,
		uuid.New(),
		runner.Config{Concurrency: cfg.Batch.Concurrency, Versioning: cfg.Storage.Versioning},
		logger.Named("runner"),
	)
	return a, nil
}

func (a *App) buildGateway(ctx context.Context, clock crawler.Clock) (store.Gateway, error) {
	cfg := a.cfg.Storage
	logger := a.logger.Named("store").With(zap.String("backend", cfg.Backend))

	if cfg.Backend == config.BackendPostgres {
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		gw, err := postgres.New(pool, sha256.New(), clock, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.closers = append(a.closers, gw.Close)
		a.ready = pool.Ping
		if err := gw.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return gw, nil
	}

	var blobs crawler.BlobStore
	switch cfg.Backend {
	case config.BackendLocal:
		bs, err := localstore.New(localstore.Config{BaseDir: cfg.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		blobs = bs
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		bs, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.GCS.Bucket})
		if err != nil {
			return nil, err
		}
		blobs = bs
	case config.BackendMinIO:
		client, err := miniostore.NewClient(miniostore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		bs, err := miniostore.New(client, cfg.MinIO.Bucket)
		if err != nil {
			return nil, err
		}
		blobs = bs
	case config.BackendMemory:
		logger.Warn("memory backend selected; nothing outlives the process")
		blobs = memorystore.NewBlobStore()
	default:
		return nil, fmt.Errorf("storage backend %q is not supported", cfg.Backend)
	}

	return store.NewCSVGateway(blobs, clock, sha256.New(), store.CSVConfig{
		Prefix:            cfg.EffectivePrefix(),
		CompressSnapshots: cfg.SnapshotCompression == "zstd",
	}, logger), nil
}

func (a *App) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.Open(ctx, client, a.cfg.PubSub.TopicID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		pub.Stop()
		_ = client.Close()
	})
	return pub, nil
}

// serveOps starts the ops server when an address is configured. The returned
// func shuts it down.
func (a *App) serveOps(ctx context.Context) func() {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a.runner, a.ready, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: opsHeaderTimeout,
	}
	go func() {
		a.logger.Info("ops server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("ops server shutdown error", zap.Error(err))
		}
	}
}
