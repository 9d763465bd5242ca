// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"interpharma-gateway/internal/api"
	"interpharma-gateway/internal/common/camunda"
	"interpharma-gateway/internal/common/config"
	"interpharma-gateway/internal/common/database"
	"interpharma-gateway/internal/common/logger"
	"interpharma-gateway/internal/common/observability"
	"interpharma-gateway/internal/gateway"
	"interpharma-gateway/internal/gateway/audit"
	"interpharma-gateway/internal/gateway/cache"
	"interpharma-gateway/internal/gateway/provider"
	"interpharma-gateway/internal/gateway/ratelimit"

	mq "interpharma-gateway/internal/workers/medical/medical-query"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("starting gateway", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
		"provider":    cfg.Provider.Kind,
		"configured":  cfg.Provider.Configured(),
		"offlineMock": cfg.Provider.Mock,
		"tracing":     cfg.Tracing.OTLPEndpoint,
	})

	obs, err := observability.New(cfg.App.Name,
		observability.WithGlobal(),
		observability.WithOTLPEndpoint(cfg.Tracing.OTLPEndpoint, cfg.Tracing.Insecure),
	)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.HealthChecker{}

	// --- Redis (rate store and answer cache) ---
	var rdb *database.RedisClient
	if cfg.RateLimit.Store == config.StoreRedis || cfg.Cache.Enabled {
		rdb = database.NewRedis(cfg.Database.Redis)
		if err := database.RetryWithBackoff(ctx, log, "redis ping", connectAttempts, connectDelay, rdb.Ping); err != nil {
			zapLog.Fatal("redis unavailable", zap.Error(err))
		}
		defer rdb.Close()
		checks["redis"] = rdb
	}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Store == config.StoreRedis {
		store = ratelimit.NewRedisStore(rdb.Client)
	}
	limiter := ratelimit.NewLimiter(store, log,
		ratelimit.WithLimit(cfg.RateLimit.Max, config.GetDuration(cfg.RateLimit.Window)),
		ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix),
	)

	var answers cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		answers = cache.NewRedisCache(rdb.Client, config.GetDuration(cfg.Cache.TTL), cfg.Cache.KeyPrefix)
	}

	// --- Postgres (audit log) ---
	var auditRepo audit.Repository = audit.Noop{}
	if cfg.Audit.Enabled {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			zapLog.Fatal("postgres init failed", zap.Error(err))
		}
		if err := database.RetryWithBackoff(ctx, log, "postgres ping", connectAttempts, connectDelay, pg.Ping); err != nil {
			zapLog.Fatal("postgres unavailable", zap.Error(err))
		}
		defer pg.Close()

		repo := audit.NewPostgresRepository(pg.DB)
		if err := repo.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("audit schema setup failed", zap.Error(err))
		}
		auditRepo = repo
		checks["postgres"] = pg
	}

	gw := gateway.New(gateway.Deps{
		Provider:      provider.NewFromConfig(cfg.Provider, log, provider.WithObservability(obs)),
		Limiter:       limiter,
		Cache:         answers,
		Audit:         auditRepo,
		Logger:        log,
		Observability: obs,
	})

	// --- Zeebe worker ---
	var mqWorker *camunda.Worker
	if cfg.Camunda.Enabled {
		zc, err := camunda.NewClient(cfg.Camunda)
		if err != nil {
			zapLog.Fatal("zeebe client init failed", zap.Error(err))
		}
		if err := database.RetryWithBackoff(ctx, log, "zeebe topology", connectAttempts, connectDelay, zc.Ping); err != nil {
			zapLog.Fatal("zeebe unavailable", zap.Error(err))
		}
		defer zc.Close()
		checks["zeebe"] = zc

		wc := config.GetWorkerConfig(cfg, mq.TaskType)
		if wc.Enabled {
			handler := mq.NewHandler(mq.LoadConfig(wc), gw, &medicalQueryLoggerAdapter{log})
			mqWorker = camunda.StartWorker(zc.Raw(), mq.TaskType, wc, handler, log)
		} else {
			log.Info("worker disabled", map[string]interface{}{"taskType": mq.TaskType})
		}
	}

	// --- HTTP ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewServer(gw, log, api.Config{
			Environment: cfg.App.Environment,
			BodyLimit:   cfg.Server.BodyLimit,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, checks).Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		log.Info("http server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if mqWorker != nil {
		mqWorker.Stop()
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn("observability shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	log.Info("gateway stopped", nil)
}

// medicalQueryLoggerAdapter narrows logger.Logger to the worker's own interface.
type medicalQueryLoggerAdapter struct {
	logger.Logger
}

func (a *medicalQueryLoggerAdapter) With(fields map[string]interface{}) mq.Logger {
	return &medicalQueryLoggerAdapter{a.Logger.With(fields)}
}
