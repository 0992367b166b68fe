package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/ballotbox/election-service/internal/api/http"
	"github.com/ballotbox/election-service/internal/config"
	"github.com/ballotbox/election-service/internal/observability"
	"github.com/ballotbox/election-service/internal/persistence"
)

func main() {
	root := &cobra.Command{
		Use:           "election",
		Short:         "Token-mediated election authorities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(eligibilityCmd(), ballotCmd(), devTokenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime holds what both authorities set up the same way.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	postgres *persistence.Postgres
	redis    *persistence.Redis
}

func bootstrap(ctx context.Context, service string) (*runtime, error) {
	cfg, err := config.Load(service)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, service)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewMetrics(),
		postgres: pg,
		redis:    persistence.NewRedis(cfg.Redis, logger),
	}, nil
}

func (r *runtime) close() {
	r.redis.Close()
	r.postgres.Close()
	_ = r.logger.Sync()
}

func (r *runtime) newApp() *fiber.App {
	app := fiber.New(fiber.Config{AppName: r.cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, r.logger, r.metrics, r.cfg.App.RequestTimeout())
	return app
}

// serve listens until ctx is cancelled, then shuts the app down.
func (r *runtime) serve(ctx context.Context, app *fiber.App) error {
	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("listening", zap.String("addr", r.cfg.App.Addr()))
		errCh <- app.Listen(r.cfg.App.Addr())
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		r.logger.Info("shutting down")
		return app.Shutdown()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
