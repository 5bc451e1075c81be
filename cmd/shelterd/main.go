package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shelterops/internal/platform/config"
	"shelterops/internal/platform/database"
	"shelterops/internal/platform/httpserver"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

func main() {
	var envFile string

	root := &cobra.Command{
		Use:           "shelterd",
		Short:         "Emergency shelter operations service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Optional .env file read before the process environment")

	var apiOnly bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), envFile, !apiOnly)
		},
	}
	serveCmd.Flags().BoolVar(&apiOnly, "api-only", false, "Serve HTTP without running scheduled tasks")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run only the scheduler worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), envFile)
		},
	}

	var steps int
	migrateCmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			return runMigrate(cmd.Context(), envFile, direction, steps)
		},
	}
	migrateCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back with down")

	root.AddCommand(serveCmd, workerCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(envFile string) (config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, codeError(2, "invalid configuration: %s", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, envFile string, withWorker bool) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := httpserver.New(cfg.Server.Addr, app.Router())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout, app.logger)
	})
	if withWorker {
		g.Go(func() error {
			return app.worker.Run(ctx)
		})
	}
	return ignoreShutdown(g.Wait())
}

func runWorker(ctx context.Context, envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return ignoreShutdown(app.worker.Run(ctx))
}

// ignoreShutdown treats a signal-driven cancellation as a clean exit.
func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runMigrate(ctx context.Context, envFile, direction string, steps int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	if cfg.Database.DSN == "" {
		return codeError(2, "SHELTERD_DATABASE_URL is required for migrate")
	}
	log := newLogger(cfg)

	db, err := database.Open(ctx, database.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	switch direction {
	case "up":
		err = database.Migrate(db)
	case "down":
		err = database.Rollback(db, steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	v, dirty, err := database.Version(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Info("migrations applied", "direction", direction, "version", v, "dirty", dirty)
	return nil
}
