package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/codecoach/internal/api"
	"github.com/abhisek/codecoach/internal/coach"
	"github.com/abhisek/codecoach/internal/config"
	"github.com/abhisek/codecoach/internal/logging"
	"github.com/abhisek/codecoach/internal/session"
	"github.com/abhisek/codecoach/internal/store"
	"github.com/abhisek/codecoach/internal/stream"
)

// deps is everything a session-running command needs.
type deps struct {
	cfg     *config.Config
	logger  *zap.Logger
	client  *api.Client
	coach   *coach.Coordinator
	db      *store.Store // nil when history is disabled
	journal *store.Journal

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// newLogger loads the config and opens the log file.
func newLogger(cmd *cobra.Command) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, flush, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log: %w", err)
	}
	return cfg, logger, flush, nil
}

// openHistory opens the journal database named by cfg.
func openHistory(cfg *config.Config) (*store.Store, error) {
	path := cfg.DBPath
	if path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve DB path: %w", err)
		}
		path = p
	} else if err := store.EnsureDir(path); err != nil {
		return nil, fmt.Errorf("create DB dir: %w", err)
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// buildDeps wires config, logging, the API client, the streaming dialer,
// the session store, the journal and the coordinator.
func buildDeps(cmd *cobra.Command, confirmer coach.Confirmer) (*deps, error) {
	cfg, logger, flush, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	d := &deps{cfg: cfg, logger: logger, closers: []func(){flush}}

	d.client, err = api.NewClient(cfg.BaseURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithFeedbackV2(cfg.FeedbackV2),
		api.WithLogger(logger.Named("api")),
	)
	if err != nil {
		d.Close()
		return nil, err
	}

	tmpl, err := cfg.StreamTemplate()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("stream url: %w", err)
	}
	dialer, err := stream.NewWSDialer(tmpl)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("stream url: %w", err)
	}

	st := session.NewStore(session.WithMaxMessages(cfg.MaxMessages))

	if cfg.History {
		db, err := openHistory(cfg)
		if err != nil {
			// History is optional; run without it.
			logger.Warn("history disabled", zap.Error(err))
		} else {
			d.db = db
			d.closers = append(d.closers, func() { _ = db.Close() })
			d.journal = store.NewJournal(db, logger.Named("journal"), store.DefaultQueueSize)
			unsubscribe := st.Subscribe(d.journal.Observe)
			d.closers = append(d.closers, d.journal.Close, unsubscribe)
		}
	}

	d.coach = coach.New(d.client, dialer, st, coach.Options{
		Confirmer: confirmer,
		Logger:    logger.Named("coach"),
		Reconnect: cfg.ReconnectPolicy(),
	})
	d.closers = append(d.closers, d.coach.Close)

	logger.Info("starting",
		zap.String("base_url", cfg.BaseURL),
		zap.String("stream", tmpl),
		zap.Bool("history", d.db != nil),
	)
	return d, nil
}
