package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/webhunter-dev/webhunter/internal/config"
	"github.com/webhunter-dev/webhunter/internal/engine"
	"github.com/webhunter-dev/webhunter/internal/notify"
	"github.com/webhunter-dev/webhunter/internal/source"
	"github.com/webhunter-dev/webhunter/internal/store"
	"github.com/webhunter-dev/webhunter/pkg/logger"
)

// app bundles the assembled service collaborators shared by the serve, once,
// and seed commands.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *store.SQLiteStore
	sender    notify.Sender
	scheduler *engine.Scheduler
}

func buildApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	st, err := store.OpenSQLite(cfg.Storage.Path,
		store.WithLogger(log),
		store.WithWriteAttempts(cfg.Storage.WriteAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("opening seen store: %w", err)
	}

	sender := buildSender(cfg, log)
	dispatcher := notify.NewDispatcher(sender,
		notify.WithDispatcherLogger(log),
		notify.WithMaxAttempts(cfg.Notifications.MaxAttempts),
		notify.WithBackoff(cfg.Notifications.BaseDelay, cfg.Notifications.MaxDelay),
	)

	deps := source.Deps{
		Client:    &http.Client{Timeout: cfg.Fetch.Timeout},
		Limiter:   source.NewLimiter(cfg.Fetch.PerSecond, cfg.Fetch.Burst),
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    log,
	}

	entries := make([]engine.Entry, 0, len(cfg.Sources))
	for _, sc := range cfg.ActiveSources() {
		adapter, err := source.New(sc, deps)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("building source %s: %w", sc.Name, err)
		}
		entries = append(entries, engine.Entry{
			Worker:   engine.NewWorker(adapter, st, dispatcher, engine.WithWorkerLogger(log)),
			Interval: sc.PollInterval,
			Jitter:   sc.Jitter(),
		})
	}

	scheduler := engine.NewScheduler(entries, st,
		engine.WithSchedulerLogger(log),
		engine.WithRetention(cfg.Storage.Retention, cfg.Storage.PruneSchedule),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		sender:    sender,
		scheduler: scheduler,
	}, nil
}

func buildSender(cfg *config.Config, log *slog.Logger) notify.Sender {
	if cfg.Notifications.Simulate {
		return notify.NewNoOpSender(log)
	}
	switch cfg.Notifications.Provider {
	case "pushover":
		return notify.NewPushoverSender(cfg.Notifications.Pushover)
	case "webhook":
		return notify.NewWebhookSender(cfg.Notifications.Webhook)
	default:
		return notify.NewNoOpSender(log)
	}
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("closing seen store", "error", err)
	}
}
