package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/athlink/db"
	"github.com/splax/athlink/internal/alert"
	"github.com/splax/athlink/internal/app/migrate"
	"github.com/splax/athlink/internal/cache"
	"github.com/splax/athlink/internal/dispatch"
	"github.com/splax/athlink/internal/domain"
	"github.com/splax/athlink/internal/gate"
	httpx "github.com/splax/athlink/internal/http"
	"github.com/splax/athlink/internal/metrics"
	"github.com/splax/athlink/internal/presence"
	"github.com/splax/athlink/internal/repository/postgres"
	"github.com/splax/athlink/internal/service/auth"
	"github.com/splax/athlink/internal/service/health"
	"github.com/splax/athlink/internal/service/post"
	"github.com/splax/athlink/internal/service/profile"
	"github.com/splax/athlink/internal/ws"
	"github.com/splax/athlink/pkg/config"
	"github.com/splax/athlink/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.Level(cfg.LogLevel, cfg.Production()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, db.Migrations, db.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		backend     cache.Backend = cache.NewMemoryBackend()
		cacheHealth func(context.Context) error
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisBackend, err := cache.NewRedisBackend(ctx, addr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Warn("redis cache unavailable, using process memory", "error", err)
		} else {
			defer redisBackend.Close()
			backend = redisBackend
			cacheHealth = redisBackend.Ping
		}
	}
	storeOpts := cacheOptions(cfg, m)
	profiles := cache.NewStore[domain.Profile](backend, log, storeOpts...)
	snapshots := cache.NewStore[domain.HealthSnapshot](backend, log, storeOpts...)

	repo := postgres.New(pool)
	registry := presence.NewMemoryRegistry()
	hub := ws.NewHub(log)
	dispatcher := dispatch.New(registry, hub, repo, log,
		dispatch.WithTimeout(cfg.DispatchTimeout),
		dispatch.WithMetrics(m),
	)

	authSvc := auth.New(repo, profiles, log, cfg)
	profileSvc := profile.New(repo, profiles, dispatcher, log, cfg.CacheTTL)
	healthSvc := health.New(health.Deps{
		Samples:   repo,
		Alerts:    repo,
		Snapshots: snapshots,
		Engine:    alert.NewEngine(repo, log, m),
		Notifier:  dispatcher,
		Logger:    log,
		TTL:       cfg.CacheTTL,
	})
	postSvc := post.New(repo, dispatcher, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(ctx, addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Deps{
		Logger:         log,
		Auth:           authSvc,
		Profiles:       profileSvc,
		Health:         healthSvc,
		Posts:          postSvc,
		Gate:           gate.New(gate.JWTVerifier{Secret: cfg.JWTSecret}, repo, log),
		Registry:       registry,
		Hub:            hub,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
		Limiter:        limiter,
		FrontendOrigin: cfg.FrontendOrigin,
		DBHealth:       pool.Ping,
		CacheHealth:    cacheHealth,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		dispatcher.Wait()
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// cacheOptions maps APIConfig onto the options shared by every cache store.
func cacheOptions(cfg config.APIConfig, m *metrics.Metrics) []cache.Option {
	return []cache.Option{
		cache.WithTTL(cfg.CacheTTL),
		cache.WithMetrics(m),
		cache.WithSingleFlight(cfg.CacheSingleFlight),
	}
}
