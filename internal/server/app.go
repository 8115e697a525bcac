// Package server wires the relay together: it opens the store, restores a
// consistent state after a restart and runs the Telegram poller alongside
// the admin gRPC server until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/anonchat/internal/logging"
	"github.com/dmitrijs2005/anonchat/internal/server/agent"
	"github.com/dmitrijs2005/anonchat/internal/server/config"
	"github.com/dmitrijs2005/anonchat/internal/server/dedup"
	"github.com/dmitrijs2005/anonchat/internal/server/matchmaker"
	"github.com/dmitrijs2005/anonchat/internal/server/relay"
	"github.com/dmitrijs2005/anonchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/anonchat/internal/server/services"
	"github.com/dmitrijs2005/anonchat/internal/server/session"
	"github.com/dmitrijs2005/anonchat/internal/server/telegram"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/anonchat/internal/server/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	pseudo *logging.Pseudonymizer
	store  repomanager.RepositoryManager
	dedup  dedup.Deduplicator
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	store, err := openStore(c)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	return &App{
		config: c,
		logger: logger,
		pseudo: logging.NewPseudonymizer(c.PseudonymKey),
		store:  store,
	}, nil
}

func openStore(c *config.Config) (repomanager.RepositoryManager, error) {
	if c.Store == config.StoreMemory {
		return repomanager.NewMemoryRepositoryManager(), nil
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	return repomanager.NewPostgresRepositoryManager(db)
}

// prepare migrates the schema and returns everyone to Idle. Pairings and the
// queue do not survive a restart, users have to ask again.
func (app *App) prepare(ctx context.Context) error {
	if err := app.store.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	n, err := app.store.Users().ResetAllToIdle(ctx)
	if err != nil {
		return fmt.Errorf("reset error: %w", err)
	}
	app.logger.Info(ctx, "sessions reset", "users", n)

	if app.config.RedisURL != "" {
		d, err := dedup.NewRedisDeduplicatorFromURL(ctx, app.config.RedisURL, app.config.DedupTTL)
		if err != nil {
			return fmt.Errorf("redis init error: %w", err)
		}
		app.dedup = d
	} else {
		app.dedup = dedup.NewMemoryDeduplicator(app.config.DedupTTL)
	}
	return nil
}

func (app *App) newAgent() agent.Bridge {
	if app.config.AgentAPIKey == "" {
		app.logger.Warn(context.Background(), "AI agent disabled, no API key configured")
		return agent.Unavailable{}
	}
	return agent.NewOpenAI(agent.Config{
		Endpoint:     app.config.AgentEndpoint,
		Model:        app.config.AgentModel,
		APIKey:       app.config.AgentAPIKey,
		SystemPrompt: app.config.AgentSystemPrompt,
		Timeout:      app.config.AgentTimeout,
	}, app.pseudo)
}

// newController assembles the chat side around out.
func (app *App) newController(out *telegram.Outbox, stats *services.StatsService) *session.Controller {
	repo := app.store.Users()
	return session.NewController(session.Deps{
		Users:      repo,
		Matchmaker: matchmaker.New(app.store, app.logger, matchmaker.WithPseudonymizer(app.pseudo)),
		Relay:      relay.New(repo, out, app.logger, app.pseudo),
		Agent:      app.newAgent(),
		Out:        out,
		Stats:      stats,
		Logger:     app.logger,
		Pseudo:     app.pseudo,
		AdminID:    app.config.AdminUserID,
	})
}

func (app *App) initSignalHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
}

func (app *App) Run(ctx context.Context) error {
	ctx, stop := app.initSignalHandler(ctx)
	defer stop()
	defer app.close(ctx)

	app.logger.Info(ctx, "Starting app...")

	if err := app.prepare(ctx); err != nil {
		return err
	}

	api, err := telegram.NewAPI(app.config.TelegramToken)
	if err != nil {
		return fmt.Errorf("telegram login error: %w", err)
	}

	stats := services.NewStatsService(app.store)
	outbox := telegram.NewOutbox(api, app.config.SendRatePerSecond, app.config.OutboxSize, app.logger, app.pseudo)
	controller := app.newController(outbox, stats)
	dispatcher := telegram.NewDispatcher(controller, app.dedup, app.config.Workers, app.logger, app.pseudo)
	bot := telegram.NewBot(api, outbox, dispatcher, app.config.TelegramPollTimeout, app.logger)

	admin := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, stats, app.config.SecretKey)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(ctx) })
	g.Go(func() error { return admin.Run(ctx) })

	err = g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}

func (app *App) close(ctx context.Context) {
	if c, ok := app.dedup.(io.Closer); ok {
		if err := c.Close(); err != nil {
			app.logger.Warn(ctx, "error closing dedup store", "error", err)
		}
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn(ctx, "error closing store", "error", err)
	}
}
