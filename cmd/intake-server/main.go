package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openclinic/intake/internal/config"
	"github.com/openclinic/intake/internal/domain/encounter"
	"github.com/openclinic/intake/internal/domain/intake"
	"github.com/openclinic/intake/internal/domain/queue"
	"github.com/openclinic/intake/internal/domain/registry"
	"github.com/openclinic/intake/internal/platform/auth"
	"github.com/openclinic/intake/internal/platform/blobstore"
	"github.com/openclinic/intake/internal/platform/db"
	"github.com/openclinic/intake/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Clinical record intake server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(drainCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

// app bundles the wired-up services the CLI commands share.
type app struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	queue *queue.Service
	proc  *intake.Processor
}

func wireApp(ctx context.Context, logger zerolog.Logger) (*app, error) {
	cfg, pool, err := connect(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.NewFSStore(cfg.BlobDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open blob store %s: %w", cfg.BlobDir, err)
	}

	queueSvc := queue.NewService(queue.NewRepoPG(pool), blobs)
	registryRepo := registry.NewRepoPG(pool)
	settingsRepo := registry.NewSettingsRepoPG(pool)
	ingestor := encounter.NewPGIngestor(pool, settingsRepo)
	proc := intake.NewProcessor(queueSvc, registryRepo, ingestor,
		intake.PoolTxer{Pool: pool}, cfg.IntakeActor, logger)

	return &app{cfg: cfg, pool: pool, queue: queueSvc, proc: proc}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := blobstore.NewFSStore(cfg.BlobDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.BlobDir).Msg("failed to open blob store")
	}

	queueSvc := queue.NewService(queue.NewRepoPG(pool), blobs)
	registryRepo := registry.NewRepoPG(pool)
	settingsRepo := registry.NewSettingsRepoPG(pool)
	ingestor := encounter.NewPGIngestor(pool, settingsRepo)
	proc := intake.NewProcessor(queueSvc, registryRepo, ingestor,
		intake.PoolTxer{Pool: pool}, cfg.IntakeActor, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	if cfg.IsDev() && cfg.AdminJWTKey == "" {
		logger.Warn().Msg("running with development auth, all requests are admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AdminJWTKey),
		}))
	}

	e.GET("/health", db.HealthHandler("intake-server", pool))

	api := e.Group("/api/v1")
	queue.NewHandler(queueSvc).RegisterRoutes(api)
	intake.NewHandler(proc).RegisterRoutes(api)
	registry.NewHandler(settingsRepo).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Run one drain pass over the pending queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd.Context(), newLogger())
			if err != nil {
				return err
			}
			defer a.pool.Close()

			stats, err := a.proc.Drain(cmd.Context())
			if err != nil {
				return fmt.Errorf("drain failed: %w", err)
			}
			fmt.Printf("processed: %d  failed: %d  skipped: %d  (%.2fs)\n",
				stats.Processed, stats.Failed, stats.Skipped,
				stats.Finished.Sub(stats.Started).Seconds())
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the pending queue",
	}

	addCmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Submit a document file to the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			submitter, _ := cmd.Flags().GetString("submitter")

			a, err := wireApp(cmd.Context(), newLogger())
			if err != nil {
				return err
			}
			defer a.pool.Close()

			item, err := a.queue.Enqueue(cmd.Context(), raw, submitter)
			if err != nil {
				return fmt.Errorf("enqueue failed: %w", err)
			}
			fmt.Printf("queued %s (seq %d)\n", item.ID, item.Seq)
			return nil
		},
	}
	addCmd.Flags().String("submitter", "cli", "submitter recorded on the item")

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending items in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd.Context(), newLogger())
			if err != nil {
				return err
			}
			defer a.pool.Close()

			items, err := a.queue.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("queue is empty")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%s  %s  %s\n", item.ID,
					item.CreatedAt.Format(time.RFC3339), item.Submitter)
			}
			return nil
		},
	}

	errorsCmd := &cobra.Command{
		Use:   "errors",
		Short: "List items in the error sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(cmd.Context(), newLogger())
			if err != nil {
				return err
			}
			defer a.pool.Close()

			items, err := a.queue.ListErrors(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("error sink is empty")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%s  %s  %s\n", item.ID,
					item.FailedAt.Format(time.RFC3339), truncate(item.ErrorMessage, 80))
			}
			return nil
		},
	}

	requeueCmd := &cobra.Command{
		Use:   "requeue <id>",
		Short: "Move an error item back to the pending queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			a, err := wireApp(cmd.Context(), newLogger())
			if err != nil {
				return err
			}
			defer a.pool.Close()

			item, err := a.queue.Requeue(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("requeue failed: %w", err)
			}
			fmt.Printf("requeued %s (seq %d)\n", item.ID, item.Seq)
			return nil
		},
	}

	cmd.AddCommand(addCmd, pendingCmd, errorsCmd, requeueCmd)
	return cmd
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
			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("applied %d migration(s)\n", count)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d  %-30s  %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}

	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
