// Package commands contains the dispatchd CLI commands.
package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gigboard/dispatch/bus"
	"github.com/gigboard/dispatch/config"
	"github.com/gigboard/dispatch/db"
	"github.com/gigboard/dispatch/dispatch"
	"github.com/gigboard/dispatch/errors"
	"github.com/gigboard/dispatch/live"
	"github.com/gigboard/dispatch/logger"
	"github.com/gigboard/dispatch/notify"
	"github.com/gigboard/dispatch/queue"
	"github.com/gigboard/dispatch/server"
	"github.com/gigboard/dispatch/skillfolio"
)

// ServeCmd runs the full daemon: queue workers, sweeper, listeners, and the
// HTTP/WebSocket server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

const shutdownTimeout = 30 * time.Second

func serve(parent context.Context, cfg *config.Config) error {
	log := logger.Logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return err
	}

	eventBus := bus.New(log)

	jobQueue := queue.NewQueue(database)

	dispatcher := dispatch.New(jobQueue, eventBus, log)
	if err := dispatcher.Attach(); err != nil {
		return err
	}

	pool := queue.NewWorkerPool(ctx, jobQueue, queue.WorkerPoolConfig{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		StalledAfter: cfg.Queue.StalledAfter,
	}, log)
	pool.Registry().Register(skillfolio.NewHandler(
		jobQueue,
		skillfolio.NewArtifactStore(database),
		skillfolio.LocalGenerator{},
		eventBus,
		cfg.Skillfolio.SettleDelay,
		log,
	))

	notifications := notify.NewStore(database)
	notify.NewListener(notifications, dispatcher, eventBus, log).Register()

	hub := live.NewHub(log)
	hub.Forward(eventBus, skillfolio.JobType)

	sweeper, err := dispatch.NewSweeper(jobQueue, cfg.Queue.SweepEvery, log)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, dispatcher, notifications, hub, log)

	pool.Start()
	sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		sweeper.Stop()
		pool.Stop()
		return srv.Shutdown(shutdownCtx)
	})

	log.Infow("dispatchd running",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"workers", cfg.Queue.Workers,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
