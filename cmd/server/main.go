package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/michael-harrison/graph-attack/internal/adapters/graphql"
	httpHandlers "github.com/michael-harrison/graph-attack/internal/adapters/http/handlers"
	httpMiddleware "github.com/michael-harrison/graph-attack/internal/adapters/http/middleware"
	"github.com/michael-harrison/graph-attack/internal/adapters/metrics"
	fileregistry "github.com/michael-harrison/graph-attack/internal/adapters/registry"
	memorystorage "github.com/michael-harrison/graph-attack/internal/adapters/storage/memory"
	redisstorage "github.com/michael-harrison/graph-attack/internal/adapters/storage/redis"
	sqlitestorage "github.com/michael-harrison/graph-attack/internal/adapters/storage/sqlite"
	"github.com/michael-harrison/graph-attack/internal/config"
	"github.com/michael-harrison/graph-attack/internal/core/ports"
	"github.com/michael-harrison/graph-attack/internal/core/services"
	"github.com/michael-harrison/graph-attack/internal/demo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeFn, err := initStorage(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	defer closeFn()

	schema, err := demo.LoadSchema()
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	registry, err := initRegistry(ctx, cfg.RateLimiter, schema, logger)
	if err != nil {
		return err
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithCategories(cfg.RateLimiter.Categories...),
	}
	if cfg.Metrics.Enabled {
		m := metrics.New(prometheus.DefaultRegisterer)
		storage = m.InstrumentStore(storage)
		opts = append(opts, services.WithObserver(m))
	}

	analyzer, err := services.NewAnalyzer(storage, registry, opts...)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	executor, err := graphql.NewExecutor(schema, demo.Resolvers(analyzer))
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", httpHandlers.Health)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Server.TrustProxyHeaders {
		logger.Warn("client identity taken from X-Forwarded-For/X-Real-IP; only enable behind a proxy that overwrites them")
	}
	r.Group(func(r chi.Router) {
		r.Use(httpMiddleware.NewClientIdentityMiddleware(cfg.Server.TrustProxyHeaders))
		graphQLHandler := httpHandlers.NewGraphQLHandler(schema, analyzer, executor, logger)
		r.Method(http.MethodGet, "/graphql", graphQLHandler)
		r.Method(http.MethodPost, "/graphql", graphQLHandler)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "storage", cfg.Storage.Type)
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// initRegistry junta os limites do schema com o arquivo opcional e, se pedido,
// passa a observar o arquivo até ctx ser cancelado.
func initRegistry(ctx context.Context, cfg config.RateLimiterConfig, schema *ast.Schema, logger *slog.Logger) (*services.Registry, error) {
	base, err := graphql.LimitsFromSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid schema limits: %w", err)
	}

	limits := base
	if cfg.File != "" {
		overrides, err := fileregistry.Load(cfg.File)
		if err != nil {
			return nil, err
		}
		limits = services.Merge(base, overrides)
	}

	registry, err := services.NewRegistry(limits)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	logger.Info("rate limits loaded", "operations", len(limits))

	if cfg.Watch {
		watcher, err := fileregistry.NewWatcher(cfg.File, base, registry, logger)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("rate limit watcher stopped", "error", err)
			}
		}()
	}

	return registry, nil
}

func initStorage(cfg config.StorageConfig, logger *slog.Logger) (ports.CounterStore, func(), error) {
	switch cfg.Type {
	case "redis":
		redisCfg := redisstorage.Config{
			Addr:      fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Namespace,
		}
		storage, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Error("failed to close redis storage", "error", err)
			}
		}, nil
	case "sqlite":
		storage, err := sqlitestorage.New(sqlitestorage.Config{
			Path:        cfg.SQLite.Path,
			Namespace:   cfg.Namespace,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Error("failed to close sqlite storage", "error", err)
			}
		}, nil
	case "memory":
		logger.Warn("memory storage keeps counters per process; do not use with multiple replicas")
		storage := memorystorage.New(memorystorage.WithNamespace(cfg.Namespace))
		return storage, func() { _ = storage.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
