package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/pushsub/internal/config"
	"github.com/roach88/pushsub/internal/discovery"
	"github.com/roach88/pushsub/internal/lease"
	"github.com/roach88/pushsub/internal/metrics"
	"github.com/roach88/pushsub/internal/model"
	"github.com/roach88/pushsub/internal/push"
	"github.com/roach88/pushsub/internal/store"
)

// app is the set of components a command works with, built from config.
type app struct {
	cfg      *config.Config
	store    *store.Store
	tokens   *push.TokenGenerator
	metrics  *metrics.Recorder
	resolver *discovery.Resolver
	manager  *push.Manager
	verifier *push.Verifier
}

// loadConfig reads the config file, applies flag overrides and installs
// the slog handler. When validate is set the config must pass the schema.
func loadConfig(opts *RootOptions, validate bool) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}

	setupLogging(opts, cfg)

	if validate {
		if errs := config.Validate(cfg); len(errs) > 0 {
			joined := make([]error, len(errs))
			for i, e := range errs {
				joined[i] = e
			}
			return nil, WrapExitError(ExitCommandError, "invalid config", errors.Join(joined...))
		}
	}
	return cfg, nil
}

// setupLogging configures logging based on the verbose flag and log_level.
func setupLogging(opts *RootOptions, cfg *config.Config) {
	logLevel := cfg.SlogLevel()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// openApp opens the store and wires the subscription components.
func openApp(cfg *config.Config) (*app, error) {
	tokens, err := push.NewTokenGenerator([]byte(cfg.Secret), cfg.TokenHash)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid token settings", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.HTTPTimeoutDuration()}
	rec := metrics.New()
	resolver := discovery.NewResolver(client)

	opts := []push.Option{
		push.WithResolver(resolver),
		push.WithHTTPClient(client),
		push.WithCallback(push.CallbackTemplate(cfg.CallbackBaseURL)),
		push.WithLeaseSeconds(cfg.LeaseSeconds),
		push.WithObservers(rec),
	}

	return &app{
		cfg:      cfg,
		store:    st,
		tokens:   tokens,
		metrics:  rec,
		resolver: resolver,
		manager:  push.NewManager(st, tokens, opts...),
		verifier: push.NewVerifier(st, tokens, opts...),
	}, nil
}

// openStore opens the configured database, creating its directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(cfg.Database); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// scheduler builds a lease scheduler from the config.
func (a *app) scheduler() *lease.Scheduler {
	return lease.NewScheduler(a.store, a.manager, a.loadFeed,
		lease.WithWindow(a.cfg.RenewWindowDuration()),
		lease.WithInterval(a.cfg.RenewIntervalDuration()),
		lease.WithConcurrency(a.cfg.RenewConcurrency),
		lease.WithLeaseSeconds(a.cfg.LeaseSeconds),
		lease.WithObserver(a.metrics),
	)
}

func (a *app) loadFeed(ctx context.Context, id string) (push.Feed, error) {
	feed, err := a.store.LoadFeed(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load feed %s: %w", id, err)
	}
	return feed, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// subscriptionView is the CLI rendering of a subscription.
type subscriptionView struct {
	model.Subscription
	State model.State `json:"state"`
}

func newSubscriptionView(sub model.Subscription, now time.Time) subscriptionView {
	return subscriptionView{Subscription: sub, State: sub.State(now)}
}

// pushErrorCode returns the push error code of err, or "" for other errors.
func pushErrorCode(err error) string {
	var pe *push.Error
	if errors.As(err, &pe) {
		return string(pe.Code)
	}
	return ""
}
