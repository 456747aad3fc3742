package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/pushsub/internal/callback"
)

// shutdownTimeout bounds how long in-flight callbacks may take to finish.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve hub callbacks and renew leases",
		Long: `Start the callback server and the lease scheduler.

The server answers hub verification requests under the path of
callback_base_url and exposes Prometheus metrics on /metrics. The
scheduler renews leases that expire within renew_window, once per
renew_interval.

Example:
  pushsub serve --config ./pushsub.yaml
  pushsub serve --listen 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, true)
	if err != nil {
		return err
	}
	if cfg.CallbackBaseURL == "" {
		return NewExitError(ExitCommandError, "callback_base_url is required to serve callbacks")
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router, err := newRouter(a)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid callback_base_url", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("callback server starting", "addr", ln.Addr().String(), "callback_base_url", cfg.CallbackBaseURL)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Run only returns once gctx is done.
		_ = a.scheduler().Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "serve error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newRouter mounts the callback routes under the path of the callback base
// URL, next to /metrics and /healthz.
func newRouter(a *app) (*mux.Router, error) {
	base, err := url.Parse(a.cfg.CallbackBaseURL)
	if err != nil {
		return nil, err
	}

	router := mux.NewRouter()
	router.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	routes := router
	if prefix := strings.TrimRight(base.Path, "/"); prefix != "" {
		routes = router.PathPrefix(prefix).Subrouter()
	}
	handler := callback.NewHandler(a.verifier, a.store, callback.WithContentFunc(a.metrics.Content))
	handler.RegisterRoutes(routes)

	return router, nil
}
