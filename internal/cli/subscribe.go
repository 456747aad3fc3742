package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsub/internal/push"
)

// SubscribeOptions holds flags for the subscribe command.
type SubscribeOptions struct {
	*RootOptions
	Hub          string
	Callback     string
	Feed         string
	LeaseSeconds int
}

// resultView is the CLI rendering of a handshake result.
type resultView struct {
	Subscription subscriptionView `json:"subscription"`
	Created      bool             `json:"created"`
	StatusCode   int              `json:"status_code"`
	Accepted     bool             `json:"accepted"`
	Failure      string           `json:"failure,omitempty"`
}

// NewSubscribeCommand creates the subscribe command.
func NewSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "subscribe <topic>",
		Short: "Subscribe to a topic through its hub",
		Long: `Request a subscription to a topic feed.

When --hub is omitted the hub is discovered from the topic's Link
headers or feed body. The callback URL is derived from callback_base_url
unless --callback is given. Repeating the command renews the lease of
the existing subscription.

Examples:
  pushsub subscribe https://example.com/feed.atom
  pushsub subscribe https://example.com/rss --hub https://hub.example.com/ --lease-seconds 86400`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Hub, "hub", "", "hub URL (discovered from the topic when empty)")
	cmd.Flags().StringVar(&opts.Callback, "callback", "", "callback URL (derived from callback_base_url when empty)")
	cmd.Flags().StringVar(&opts.Feed, "feed", "", "feed URL the subscription delivers to (defaults to the topic)")
	cmd.Flags().IntVar(&opts.LeaseSeconds, "lease-seconds", 0, "requested lease in seconds (defaults to lease_seconds)")

	return cmd
}

func runSubscribe(opts *SubscribeOptions, topic string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig(opts.RootOptions, true)
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	feedURL := opts.Feed
	if feedURL == "" {
		feedURL = topic
	}
	feed, err := a.store.EnsureFeed(ctx, feedURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to record feed", err)
	}

	result, err := a.manager.Subscribe(ctx, push.SubscribeRequest{
		Topic:        topic,
		Feed:         feed,
		Hub:          opts.Hub,
		Callback:     opts.Callback,
		LeaseSeconds: opts.LeaseSeconds,
	})
	if err != nil {
		return handshakeError(cmd, opts.RootOptions, "subscribe failed", err)
	}

	return outputResult(cmd, opts.RootOptions, "subscribe", result)
}

// handshakeError reports err as a JSON envelope when asked to and wraps it
// with an exit code.
func handshakeError(cmd *cobra.Command, opts *RootOptions, message string, err error) error {
	if opts.Format == "json" {
		code := pushErrorCode(err)
		if code == "" {
			code = "ERROR"
		}
		_ = newPrinter(cmd, opts).fail(code, err.Error(), nil)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// outputResult prints a handshake result. A result the hub did not accept
// yields an ExitFailure error after printing.
func outputResult(cmd *cobra.Command, opts *RootOptions, action string, result *push.Result) error {
	view := resultView{
		Subscription: newSubscriptionView(result.Subscription, time.Now()),
		Created:      result.Created,
		StatusCode:   result.StatusCode,
		Accepted:     result.Accepted,
		Failure:      result.Failure,
	}
	p := newPrinter(cmd, opts)
	p.tracef("%s %s sent to %s", action, view.Subscription.ID, view.Subscription.Hub)

	switch {
	case opts.Format != "json":
		writeResultText(p.out, action, view)
	case !result.Accepted:
		_ = p.fail("HUB_REJECTED", result.Failure, view)
	default:
		if err := p.ok(view); err != nil {
			return err
		}
	}

	if !result.Accepted {
		return NewExitError(ExitFailure, fmt.Sprintf("hub did not accept %s (status %d)", action, result.StatusCode))
	}
	return nil
}

func writeResultText(w io.Writer, action string, v resultView) {
	sub := v.Subscription
	if v.Accepted {
		fmt.Fprintf(w, "✓ %s accepted by hub (status %d)\n", action, v.StatusCode)
	} else {
		fmt.Fprintf(w, "✗ %s not accepted by hub (status %d): %s\n", action, v.StatusCode, v.Failure)
	}
	fmt.Fprintf(w, "  id:     %s\n", sub.ID)
	fmt.Fprintf(w, "  hub:    %s\n", sub.Hub)
	fmt.Fprintf(w, "  topic:  %s\n", sub.Topic)
	fmt.Fprintf(w, "  state:  %s\n", sub.State)
	if !sub.LeaseExpires.IsZero() {
		fmt.Fprintf(w, "  lease:  %s\n", sub.LeaseExpires.Format(time.RFC3339))
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
