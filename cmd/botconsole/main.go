// Package main contains the entrypoint for the botconsole owner console.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/akarpov/botconsole/internal/app"
	"github.com/akarpov/botconsole/internal/config"
	"github.com/akarpov/botconsole/internal/database"
	"github.com/akarpov/botconsole/internal/feed"
	"github.com/akarpov/botconsole/internal/logger"
	"github.com/akarpov/botconsole/internal/registry"
	"github.com/akarpov/botconsole/internal/scheduler"
	"github.com/akarpov/botconsole/internal/webhook"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, local store,
// remote clients, controller, scheduler, console), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format == "json")
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// An unreachable local store is not fatal: the session continues as an
	// unidentified device and the owner is told why.
	var store database.Store
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open local store, continuing unidentified", "path", cfg.Database.Path, "error", err)
		store = database.UnavailableStore{Err: err}
	} else {
		defer database.CloseDB(db)
		store = database.NewStore(db, log)
	}

	regClient := registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.Timeout, log)
	feedClient := feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Timeout, log)
	activator := webhook.NewTelegramActivator(log, cfg.Webhook.TelegramServerURL)

	notifier := newConsoleNotifier(os.Stdout)

	ctrl := app.NewController(app.Deps{
		Logger:          log,
		Registry:        regClient,
		Feed:            feedClient,
		Webhook:         activator,
		Identity:        store,
		Notifier:        notifier,
		CallbackBaseURL: cfg.Webhook.CallbackBaseURL,
		WelcomeText:     cfg.Bot.WelcomeText,
	})

	if cfg.Maintenance.Enabled && db != nil {
		sched, err := scheduler.New(log)
		if err != nil {
			log.Error("Failed to create scheduler", "error", err)
			return 1
		}
		err = sched.AddCronJob("store_maintenance", cfg.Maintenance.Schedule, func(jobCtx context.Context) {
			if err := store.RunMaintenance(jobCtx); err != nil {
				log.Error("Store maintenance failed", "error", err)
			}
		})
		if err != nil {
			log.Error("Failed to schedule store maintenance", "error", err)
			return 1
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				log.Error("Failed to stop scheduler", "error", err)
			}
		}()
	} else if cfg.Maintenance.Enabled {
		log.Warn("Store maintenance disabled, local store unavailable")
	}

	ctrl.Bootstrap(ctx)

	con := newConsole(ctrl, os.Stdin, os.Stdout)
	log.Info("Starting console...")
	runErr := con.Run(ctx) // Run blocks until quit, EOF, or context cancellation

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Console stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Console stopped gracefully.")
	return 0
}
