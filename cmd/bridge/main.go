package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradebridge/internal/bridge"
	"tradebridge/internal/config"
	cronrunner "tradebridge/internal/cron"
	"tradebridge/internal/db"
	"tradebridge/internal/handler"
	"tradebridge/internal/logger"
	"tradebridge/internal/repository"
	gormrepository "tradebridge/internal/repository/gorm"
	"tradebridge/internal/server"
)

func main() {
	cfgPath := os.Getenv("TB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var repo repository.Repository
	var dbConn *db.DB
	if cfg.DB.Enabled {
		dbConn, err = db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		repo = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Info("running without persistence; relay state is memory-only")
	}

	ws := server.New(cfg.Bridge, logger)
	core := bridge.New(cfg.Bridge, ws, repo, logger)
	ws.AttachCore(core)

	if err := core.LoadState(context.Background()); err != nil {
		logger.Warn("restore persisted state failed", zap.Error(err))
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)

	bridgeHandler := &handler.BridgeHandler{Core: core, Repo: repo, Logger: logger}
	bridgeHandler.Register(engine)

	ws.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)

	sweepSpec := "@every " + cfg.Bridge.SweepInterval.String()
	_, err = cronRunner.Add(sweepSpec, func(ctx context.Context) {
		stale, disconnected := core.Sweep(ctx, time.Now().UTC())
		if stale > 0 || disconnected > 0 {
			logger.Info("liveness sweep",
				zap.Int("stale", stale),
				zap.Int("disconnected", disconnected),
			)
		}
	})
	if err != nil {
		logger.Warn("cron register liveness sweep failed", zap.Error(err))
	}

	statsSpec := "@every " + cfg.Audit.StatsInterval.String()
	_, err = cronRunner.Add(statsSpec, func(ctx context.Context) {
		ws.LogStats()
	})
	if err != nil {
		logger.Warn("cron register stats failed", zap.Error(err))
	}

	if repo != nil && cfg.Audit.Retention > 0 {
		_, err = cronRunner.Add(cfg.Audit.CleanupSpec, func(ctx context.Context) {
			cutoff := time.Now().UTC().Add(-cfg.Audit.Retention)
			removed, err := repo.DeleteCopyEventsBefore(ctx, cutoff)
			if err != nil {
				logger.Warn("copy event cleanup failed", zap.Error(err))
				return
			}
			if removed > 0 {
				logger.Info("copy event cleanup", zap.Int64("removed", removed))
			}
		})
		if err != nil {
			logger.Warn("cron register audit cleanup failed", zap.Error(err))
		}
	}

	cronRunner.Start()
	defer cronRunner.Stop()

	go func() {
		logger.Info("trade bridge listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
