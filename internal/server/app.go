// Package server initializes and runs the authentication service.
// It opens the database, applies migrations, wires the session services,
// starts the expired-token sweeper and serves the HTTP API until a
// termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/LouAnabel/someContacts/internal/logging"
	"github.com/LouAnabel/someContacts/internal/server/auth"
	"github.com/LouAnabel/someContacts/internal/server/config"
	"github.com/LouAnabel/someContacts/internal/server/httpapi"
	"github.com/LouAnabel/someContacts/internal/server/metrics"
	"github.com/LouAnabel/someContacts/internal/server/repositories/repomanager"
	"github.com/LouAnabel/someContacts/internal/server/services"
	"github.com/LouAnabel/someContacts/internal/server/sweeper"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	userService    *services.UserService
	sessionService *services.SessionService
	metrics        *metrics.Metrics
	sweeper        *sweeper.Sweeper
}

// openDB is a seam for tests.
var openDB = repomanager.OpenDB

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	return newApp(c, logger, db, rm), nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) *App {
	mtr := metrics.New()
	codec := auth.NewCodec([]byte(c.SecretKey))

	us := services.NewUserService(db, rm, logger)
	gate := services.NewGate(db, rm, c.LedgerTimeout, c.RevokedCacheTTL, logger, mtr)
	ss := services.NewSessionService(db, rm, codec, us, gate, c, logger, mtr)

	return &App{
		config:         c,
		logger:         logger,
		db:             db,
		userService:    us,
		sessionService: ss,
		metrics:        mtr,
		sweeper:        sweeper.New(ss, c.PurgeInterval, c.PurgeTimeout, logger),
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Handler builds the HTTP API served by Run.
func (app *App) Handler() *httpapi.Handler {
	return httpapi.NewHandler(app.sessionService, app.userService, app.db, app.metrics.Handler(), app.logger)
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.HTTPAddr, app.Handler().Routes(), app.config.ShutdownTimeout, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// stops the sweeper and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.sweeper.Start(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.sweeper.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "failed to close database", "err", err)
	}
	app.logger.Info(ctx, "App stopped")
}
