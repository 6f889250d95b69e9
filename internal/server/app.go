// Package server wires the server: configuration, PostgreSQL, services and
// the gRPC endpoint, with graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/server/services"

	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
)

// tokenPurgeInterval is how often expired refresh tokens are deleted.
const tokenPurgeInterval = time.Hour

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	userService   *services.UserService
	recordService *services.RecordService
}

// NewApp connects to the database, migrates it and builds the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(c.LogLevel))

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	return &App{
		config:        c,
		logger:        logger,
		db:            db,
		userService:   services.NewUserService(db, rm, c),
		recordService: services.NewRecordService(db, rm),
	}, nil
}

// Close releases the database pool.
func (app *App) Close() error {
	return app.db.Close()
}

// Run serves until ctx is cancelled or a shutdown signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runTokenJanitor(ctx, app.logger, tokenPurgeInterval, app.userService.PurgeExpiredTokens)
	}()

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.recordService, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		runErr = err
		stop()
	}

	wg.Wait()
	app.logger.Info(ctx, "App stopped")
	return runErr
}

// runTokenJanitor calls purge every interval until ctx is done.
func runTokenJanitor(ctx context.Context, logger logging.Logger, interval time.Duration, purge func(context.Context) (int64, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				logger.Warn(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "purged expired refresh tokens", "count", n)
			}
		}
	}
}
