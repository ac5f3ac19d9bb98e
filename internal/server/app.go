// Package server initializes and runs the subkeeper server: the HTTP API,
// the operational gRPC endpoint and the background scheduler, supervised
// together until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/subkeeper/internal/clock"
	"github.com/dmitrijs2005/subkeeper/internal/logging"
	"github.com/dmitrijs2005/subkeeper/internal/server/config"
	"github.com/dmitrijs2005/subkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/subkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/subkeeper/internal/server/scheduler"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/subkeeper/internal/server/grpc"
)

const healthCheckInterval = 15 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager *repomanager.PostgresRepositoryManager
	services    *Services
	clock       clock.Clock
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := OpenDB(context.Background(), c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}

	clk := clock.Real()
	svc := NewServices(c, db, rm, NewMailer(c, logger), logger, clk)

	return &App{config: c, logger: logger, db: db, repomanager: rm, services: svc, clock: clk}, nil
}

// prepare migrates the schema and seeds the plan catalog. Both steps are
// idempotent, so every start runs them.
func (app *App) prepare(ctx context.Context) error {
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	cat, err := LoadCatalog(app.config)
	if err != nil {
		return fmt.Errorf("catalog load error: %w", err)
	}
	if _, err := app.services.Catalog.Seed(ctx, cat); err != nil {
		return fmt.Errorf("catalog seed error: %w", err)
	}
	return nil
}

func (app *App) httpServer() *httpapi.Server {
	svc := app.services
	return httpapi.NewServer(httpapi.Options{
		Addr:          app.config.EndpointAddrHTTP,
		CORSOrigins:   app.config.CORSOrigins,
		WebhookSecret: app.config.WebhookSecret,
		TokenTTL:      app.config.TokenValidityDuration,
	}, httpapi.Services{
		Identity:     svc.Identity,
		Avatars:      svc.Avatars,
		Companions:   svc.Companions,
		Entitlements: svc.Entitlements,
		Wallet:       svc.Wallet,
		Catalog:      svc.Catalog,
		Otp:          svc.Otp,
		Payments:     svc.Payments,
	}, app.logger)
}

// Run blocks until SIGINT/SIGTERM/SIGQUIT or until one component fails;
// either way the others are stopped and the pool is closed.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	defer app.db.Close()

	app.logger.Info(ctx, "Starting app...")

	if err := app.prepare(ctx); err != nil {
		return err
	}

	sched := scheduler.New(app.clock, app.logger,
		scheduler.LifecycleJobs(app.services.Lifecycle, app.config.SweepInterval, app.config.OtpCleanupInterval)...)
	grpcServer := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, healthCheckInterval)
	httpServer := app.httpServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpServer.Run(ctx) })
	g.Go(func() error { return grpcServer.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })

	err := g.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "app stopped")
	return err
}
