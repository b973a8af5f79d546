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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rhp/rhp/internal/config"
	"github.com/rhp/rhp/internal/domain/admin"
	"github.com/rhp/rhp/internal/domain/encounter"
	"github.com/rhp/rhp/internal/domain/identity"
	"github.com/rhp/rhp/internal/platform/db"
	"github.com/rhp/rhp/internal/platform/middleware"
	"github.com/rhp/rhp/internal/platform/replay"
	"github.com/rhp/rhp/internal/platform/scheduler"
	"github.com/rhp/rhp/internal/platform/staging"
	"github.com/rhp/rhp/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "rhp-server",
		Short:        "Hospital patient-management API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(stagingCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the replay scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := cmd.Context()

			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, at := "pending", ""
				if s.Applied {
					status = "applied"
					at = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, at)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Run one replay pass over the staging area now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.IsDev())

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sum := a.engine.RunPass(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "batches=%d applied=%d failed=%d rejected=%d recovered=%d skipped=%t duration=%s\n",
				sum.Batches, sum.Applied, sum.Failed, sum.Rejected, sum.Recovered, sum.Skipped, sum.Duration)
			if sum.Failed > 0 {
				return fmt.Errorf("%d staged record(s) could not be applied and remain pending", sum.Failed)
			}
			return nil
		},
	}
}

func stagingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect the local staging area",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show pending staged records per action and entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := newStore(cfg, newLogger(cfg.IsDev()), nil)
			if err != nil {
				return err
			}
			pending, err := store.Pending(cmd.Context())
			if err != nil {
				return err
			}
			return printPending(cmd, store.Root(), pending)
		},
	})
	return cmd
}

func printPending(cmd *cobra.Command, root string, pending []staging.Pending) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Staging area: %s\n", root)
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending records.")
		return nil
	}
	fmt.Fprintf(out, "%-8s %-16s %s\n", "ACTION", "ENTITY", "FILES")
	for _, p := range pending {
		fmt.Fprintf(out, "%-8s %-16s %d\n", p.Action, p.Entity, p.Files)
	}
	return nil
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
}

func newStore(cfg *config.Config, logger zerolog.Logger, metrics *telemetry.Metrics) (*staging.Store, error) {
	root, err := cfg.StagingRoot()
	if err != nil {
		return nil, err
	}
	return staging.NewStore(root, logger, metrics), nil
}

// app holds the process-wide dependencies shared by serve and replay.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	pool    *pgxpool.Pool
	guard   *db.Guard
	store   *staging.Store
	engine  *replay.Engine
	redis   *redis.Client
}

// newApp wires the pool, breaker, staging store and replay engine. The pool
// is created without contacting the database, so the server comes up while
// Postgres is down and stages writes until it returns.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: telemetry.New("rhp")}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool

	a.guard = db.NewGuard(db.GuardConfig{
		MaxFailures:   cfg.DBBreakerMaxFailures,
		OpenTimeout:   cfg.DBBreakerOpenTimeout,
		OnStateChange: a.metrics.BreakerState,
	}, logger)

	a.store, err = newStore(cfg, logger, a.metrics)
	if err != nil {
		pool.Close()
		return nil, err
	}

	policy, err := replay.ParseCommitPolicy(cfg.ReplayCommitPolicy)
	if err != nil {
		pool.Close()
		return nil, err
	}
	rcfg := replay.Config{Policy: policy, LockTTL: cfg.ReplayLockTTL}
	if cfg.RedisURL != "" {
		client, err := replay.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// Without Redis the in-process lock still prevents overlap here.
			logger.Warn().Err(err).Msg("redis unavailable; replay passes are not coordinated across instances")
		} else {
			a.redis = client
			rcfg.Locker = replay.NewRedisLocker(client)
		}
	}
	a.engine = replay.NewEngine(replay.NewPG(pool), a.store, rcfg, logger, a.metrics)

	if err := db.Ping(ctx, pool, 3*time.Second); err != nil {
		logger.Warn().Err(err).Msg("database unreachable at startup; writes will be staged locally")
	} else {
		logger.Info().Msg("connected to database")
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
}

// stagedCount totals pending staged files for the health report.
func (a *app) stagedCount(ctx context.Context) (int, error) {
	pending, err := a.store.Pending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range pending {
		n += p.Files
	}
	return n, nil
}

// router builds the echo server. trigger backs POST /api/v1/staging/replay
// and may be nil.
func (a *app) router(trigger staging.Trigger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = a.cfg.RateLimitRPS
	rl.BurstSize = a.cfg.RateLimitBurst

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RateLimit(rl))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, a.guard, a.stagedCount))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	fallback := staging.NewFallback(a.guard, a.store)
	api := e.Group("/api/v1")

	admin.NewHandler(admin.NewService(
		admin.NewUnitRepo(a.pool), admin.NewBedRepo(a.pool), fallback,
	)).RegisterRoutes(api)

	identity.NewHandler(identity.NewService(
		identity.NewPatientRepo(a.pool), identity.NewProfessionalRepo(a.pool), fallback,
	)).RegisterRoutes(api)

	encounter.NewHandler(encounter.NewService(
		encounter.NewRepo(a.pool), encounter.NewTransferRepo(a.pool), encounter.NewDischargeRepo(a.pool), fallback,
	)).RegisterRoutes(api)

	staging.NewHandler(a.store, trigger).RegisterRoutes(api)
	return e
}

// replayTrigger starts a pass through the scheduler so that manual and
// scheduled passes never overlap.
func replayTrigger(s *scheduler.Scheduler) staging.Trigger {
	return func() error {
		err := s.Trigger()
		if errors.Is(err, scheduler.ErrRunning) {
			return staging.ErrReplayRunning
		}
		return err
	}
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV") == "development")

	cfg, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger = newLogger(cfg.IsDev())

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		return err
	}
	defer a.Close()

	if n, err := a.store.Recover(ctx); errors.Is(err, staging.ErrLocked) {
		logger.Info().Msg("staging root held by a running replay pass; recovery deferred to the next pass")
	} else if err != nil {
		logger.Error().Err(err).Msg("failed to recover interrupted replay snapshots")
	} else if n > 0 {
		logger.Warn().Int("records", n).Msg("restored records from an interrupted replay pass")
	}

	misfire, err := scheduler.ParseMisfirePolicy(cfg.ReplayMisfirePolicy)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Config{
		Spec:     cfg.Crontab,
		TimeZone: cfg.CronTimeZone,
		Misfire:  misfire,
	}, func(ctx context.Context) { a.engine.RunPass(ctx) }, logger, a.metrics)
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	e := a.router(replayTrigger(sched))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		_ = sched.Stop(context.Background())
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("replay pass interrupted by shutdown; it resumes on the next start")
	}
	logger.Info().Msg("server stopped")
	return nil
}
