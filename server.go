package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/framecraft/engagement/api/rest"
	"github.com/framecraft/engagement/api/sse"
	"github.com/framecraft/engagement/api/ws"
	"github.com/framecraft/engagement/audit"
	"github.com/framecraft/engagement/cache"
	dbadapter "github.com/framecraft/engagement/db"
	"github.com/framecraft/engagement/game/progression"
	mw "github.com/framecraft/engagement/middleware"
	"github.com/framecraft/engagement/model"
	"github.com/framecraft/engagement/plugin/hook"
	"github.com/framecraft/engagement/resource"
	"github.com/framecraft/engagement/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret is required")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Catalog ----
	cat, err := resource.NewLoader(cfg.Catalog.Dir).Load()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	sum := cat.Summary()
	logger.Info("Catalog loaded",
		zap.String("source", sum.Source),
		zap.Int("quests", sum.Quests),
		zap.Int("skills", sum.Skills),
		zap.Int("milestones", sum.Milestones))

	// ---- Services ----
	opts, err := progression.OptionsFromConfig(cfg.Gamification, cat)
	if err != nil {
		return fmt.Errorf("gamification: %w", err)
	}
	hooks := hook.NewHookCenter()
	notifier := progression.NewNotifier(c, pubsub)
	notifier.Register(hooks)
	svc := progression.NewService(db, c, hooks, opts, logger)

	auditSvc := audit.New(db, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		auditSvc.Stop(ctx)
	}()

	// ---- Scheduler ----
	sched := scheduler.New(logger).WithLocation(opts.Location)
	defer sched.Stop()
	if cfg.Scheduler.Enabled {
		if err := registerJobs(sched, svc, cfg.Scheduler.RearmInterval, cfg.Scheduler.LeaderboardCron, logger); err != nil {
			return err
		}
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	limiter := mw.NewLimiter(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	r.Use(limiter.Middleware(mw.ByClientIP))
	sched.AddTicker("rate_limit_sweep", limiterSweepEvery, func(context.Context) error {
		limiter.Sweep(limiterIdle)
		return nil
	})

	rest.Mount(r, rest.Deps{
		Service:   svc,
		Notifier:  notifier,
		Stream:    sse.NewHandler(pubsub, cfg.Security.AllowedOrigins, logger),
		Socket:    ws.NewHandler(pubsub, notifier, cfg.Security.AllowedOrigins, logger),
		Cache:     c,
		Scheduler: sched,
		Audit:     auditSvc,
		Security:  cfg.Security,
		AdminKey:  cfg.Server.AdminKey,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdle       = 10 * time.Minute
)

// registerJobs schedules the quest re-arm sweep and the leaderboard rebuild.
func registerJobs(sched *scheduler.Scheduler, svc *progression.Service, rearmEvery time.Duration, boardCron string, logger *zap.Logger) error {
	if rearmEvery > 0 {
		sched.AddTicker("quest_rearm", rearmEvery, func(ctx context.Context) error {
			n, err := svc.RearmSweep(ctx)
			if n > 0 {
				logger.Info("quests re-armed", zap.Int("count", n))
			}
			return err
		})
	}
	if boardCron != "" {
		err := sched.AddCron("leaderboard_rebuild", boardCron, func(ctx context.Context) error {
			n, err := svc.RebuildLeaderboard(ctx)
			if err == nil {
				logger.Info("leaderboards rebuilt", zap.Int("profiles", n))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}
	return nil
}
