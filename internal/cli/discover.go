package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsub/internal/discovery"
)

// discoverResult is the JSON payload of the discover command.
type discoverResult struct {
	Topic string `json:"topic"`
	Hub   string `json:"hub"`
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover <topic>",
		Short: "Print the hub a topic advertises",
		Long: `Fetch a topic and print the hub it advertises in its Link
headers or feed body. Nothing is stored.

Example:
  pushsub discover https://example.com/feed.atom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDiscover(opts *RootOptions, topic string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts, false)
	if err != nil {
		return err
	}

	p := newPrinter(cmd, opts)
	p.tracef("fetching %s", topic)
	resolver := discovery.NewResolver(&http.Client{Timeout: cfg.HTTPTimeoutDuration()})
	hub, err := resolver.ResolveHub(commandContext(cmd), topic)
	if err != nil {
		return WrapExitError(ExitFailure, "hub discovery failed", err)
	}
	p.tracef("resolved hub %q", hub)

	if opts.Format == "json" {
		return p.ok(discoverResult{Topic: topic, Hub: hub})
	}
	if hub == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "No hub advertised by %s\n", topic)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), hub)
	return nil
}
