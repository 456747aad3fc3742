package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsub/internal/model"
	"github.com/roach88/pushsub/internal/push"
)

// UnsubscribeOptions holds flags for the unsubscribe command.
type UnsubscribeOptions struct {
	*RootOptions
	Hub      string
	Callback string
}

// NewUnsubscribeCommand creates the unsubscribe command.
func NewUnsubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UnsubscribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "unsubscribe <topic>",
		Short: "End a subscription",
		Long: `Ask the hub to end the subscription for a topic.

A hub answering 204 ends the subscription immediately. A hub answering
202 verifies the request through the callback first.

Example:
  pushsub unsubscribe https://example.com/feed.atom --hub https://hub.example.com/`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnsubscribe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Hub, "hub", "", "hub URL (required)")
	_ = cmd.MarkFlagRequired("hub")
	cmd.Flags().StringVar(&opts.Callback, "callback", "", "callback URL (derived from callback_base_url when empty)")

	return cmd
}

func runUnsubscribe(opts *UnsubscribeOptions, topic string, cmd *cobra.Command) error {
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

	result, err := a.manager.Unsubscribe(ctx, push.UnsubscribeRequest{
		Hub:      opts.Hub,
		Topic:    topic,
		Callback: opts.Callback,
	})
	if errors.Is(err, model.ErrNotFound) {
		return handshakeError(cmd, opts.RootOptions, "no subscription for topic on this hub", err)
	}
	if err != nil {
		return handshakeError(cmd, opts.RootOptions, "unsubscribe failed", err)
	}

	return outputResult(cmd, opts.RootOptions, "unsubscribe", result)
}
