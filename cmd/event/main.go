package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rx3lixir/ewm-service/internal/admission"
	"github.com/rx3lixir/ewm-service/internal/compilation"
	"github.com/rx3lixir/ewm-service/internal/config"
	"github.com/rx3lixir/ewm-service/internal/dataloader"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/db/migrations"
	"github.com/rx3lixir/ewm-service/internal/directory"
	"github.com/rx3lixir/ewm-service/internal/grpcserver"
	"github.com/rx3lixir/ewm-service/internal/httpapi"
	"github.com/rx3lixir/ewm-service/internal/lifecycle"
	"github.com/rx3lixir/ewm-service/internal/moderation"
	"github.com/rx3lixir/ewm-service/internal/opensearch"
	"github.com/rx3lixir/ewm-service/pkg/consistency"
	"github.com/rx3lixir/ewm-service/pkg/health"
	"github.com/rx3lixir/ewm-service/pkg/logger"
	"github.com/rx3lixir/ewm-service/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("service stopped")
}

func run(ctx context.Context, cfg *config.AppConfig, log logger.Logger) error {
	log.Info("starting service",
		"service", cfg.Service.Name,
		"version", cfg.Service.Version,
		"env", cfg.Service.Env,
		"db_driver", cfg.DB.Driver,
	)
	metrics.SetServiceInfo(cfg.Service.Version, cfg.Service.Name, cfg.Service.Env)

	healthSrv := health.NewServer(log,
		health.WithService(cfg.Service.Name, cfg.Service.Version),
		health.WithPort(cfg.Health.Addr),
		health.WithTimeout(cfg.Health.Timeout),
		health.WithMigrationVersion(cfg.Health.MigrationVersion),
		health.WithRequiredTables(cfg.Health.RequiredTables...),
		health.WithMaxInconsistency(cfg.Health.MaxInconsistency),
	)
	checks := healthSrv.Health()

	var (
		store db.Store
		pool  *pgxpool.Pool
	)
	switch cfg.DB.Driver {
	case "memory":
		log.Warn("using in-memory store, data will not survive a restart")
		store = db.NewMemoryStore()
	default:
		var err error
		pool, err = db.CreatePostgresPool(ctx, cfg.DB.URL, cfg.DB.MaxConns, cfg.DB.MinConns, cfg.DB.MaxConnLifetime)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()

		version := cfg.Health.MigrationVersion
		if cfg.DB.Migrate {
			applied, err := db.ApplyMigrations(ctx, pool, migrations.FS)
			if err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
			log.Info("database schema is up to date", "version", applied)
			if version == "" {
				version = applied
			}
		}

		store = db.NewPostgresStore(pool, cfg.DB.QueryTimeout)
		checks.AddCheck("postgres", health.PostgresChecker(pool))
		checks.AddCheck("migrations", health.MigrationChecker(pool, version))
		checks.AddCheck("tables", health.SimpleTableChecker(pool, cfg.Health.RequiredTables))
	}

	var (
		lifecycleOpts  = []lifecycle.Option{lifecycle.WithMinLeadTime(cfg.Rules.MinEventLeadTime)}
		admissionOpts  []admission.Option
		moderationOpts []moderation.Option
		consistencyOpt = []consistency.Option{consistency.WithCacheTTL(cfg.Health.ConsistencyTTL)}
	)

	if cfg.OpenSearch.Enabled {
		search, err := setupSearch(ctx, cfg, store, log)
		if err != nil {
			return err
		}
		lifecycleOpts = append(lifecycleOpts, lifecycle.WithIndexer(search), lifecycle.WithSearcher(search))
		admissionOpts = append(admissionOpts, admission.WithIndexer(search))
		moderationOpts = append(moderationOpts, moderation.WithIndexer(search))
		consistencyOpt = append(consistencyOpt, consistency.WithIndex(search))
		checks.AddCheck("opensearch", health.PingChecker(search))
	}

	lifecycleSvc := lifecycle.NewService(store, log, lifecycleOpts...)
	admissionSvc := admission.NewService(store, log, admissionOpts...)
	moderationSvc := moderation.NewService(store, log, moderationOpts...)
	directorySvc := directory.NewService(store, log)
	compilationSvc := compilation.NewService(store, log)

	consistencyMgr := consistency.New(store, log, consistencyOpt...)
	checks.AddCheck("consistency", health.ConsistencyChecker(consistencyMgr, healthSrv.Config().MaxInconsistency))

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Services{
			Lifecycle:    lifecycleSvc,
			Admission:    admissionSvc,
			Moderation:   moderationSvc,
			Directory:    directorySvc,
			Compilations: compilationSvc,
		}, log),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server is listening", "address", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var grpcSrv *grpcserver.Server
	if cfg.GRPC.Enabled {
		grpcSrv = grpcserver.New(cfg.Service.Name, grpcserver.NewAdmin(lifecycleSvc, moderationSvc, consistencyMgr, log), log)
		g.Go(func() error { return grpcSrv.Serve(cfg.GRPC.Addr) })
		g.Go(func() error {
			grpcSrv.MirrorHealth(gctx, checks, cfg.Health.Timeout*2)
			return nil
		})
	}

	var metricsSrv *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewMetricsServer(cfg.Metrics.Addr, log)
		metricsSrv.StartUptimeUpdater(gctx, cfg.Service.Name)
		if pool != nil {
			metricsSrv.StartPoolUpdater(gctx, 15*time.Second, func() (int32, int32, int32) {
				st := pool.Stat()
				return st.AcquiredConns(), st.IdleConns(), st.TotalConns()
			})
		}
		g.Go(metricsSrv.Start)
	}

	if cfg.Health.Enabled {
		g.Go(healthSrv.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.Service.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()

		var errs []error
		if grpcSrv != nil {
			grpcSrv.Shutdown(shutdownCtx)
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		if cfg.Health.Enabled {
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("health shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// setupSearch поднимает зеркало опубликованных событий в OpenSearch и
// заполняет пустой индекс из базы
func setupSearch(ctx context.Context, cfg *config.AppConfig, store db.Store, log logger.Logger) (*opensearch.Service, error) {
	client, err := opensearch.NewClient(cfg.OpenSearch, log)
	if err != nil {
		return nil, err
	}
	if err := client.WaitForHealthy(ctx, 10, 3*time.Second); err != nil {
		return nil, fmt.Errorf("opensearch is not available: %w", err)
	}
	if err := client.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare opensearch index: %w", err)
	}

	batchSize := cfg.OpenSearch.BatchSize
	if batchSize <= 0 {
		batchSize = dataloader.DefaultBatchSize
	}
	search := opensearch.NewService(client, batchSize, cfg.OpenSearch.MaxRetries, log)

	loader := dataloader.NewLoader(store, search, batchSize, log)
	result, err := loader.InitializeOpenSearchData(ctx)
	if err != nil {
		// сервис работает и без индекса: публичный листинг уйдет в базу
		log.Error("failed to load events into opensearch", "error", err)
	} else if result != nil {
		log.Info("opensearch data initialized",
			"processed", result.EventsProcessed,
			"succeeded", result.EventsSucceeded,
			"failed", result.EventsFailed,
			"duration", result.Duration,
		)
	}

	if status, err := loader.CheckSyncStatus(ctx); err == nil && !status.InSync {
		log.Warn("opensearch index is out of sync", "postgres", status.PostgreSQLCount, "opensearch", status.OpenSearchCount)
	}

	return search, nil
}
