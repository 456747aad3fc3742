package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsub/internal/model"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	ExpiringWithin time.Duration
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Long: `List stored subscriptions with their current state.

Examples:
  pushsub list
  pushsub list --expiring-within 48h --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.ExpiringWithin, "expiring-within", 0, "only active subscriptions whose lease ends within this duration")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	// Listing needs no secret, so the config is not validated.
	cfg, err := loadConfig(opts.RootOptions, false)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now()
	var subs []model.Subscription
	if opts.ExpiringWithin > 0 {
		subs, err = st.FindExpiringBefore(ctx, now.Add(opts.ExpiringWithin))
	} else {
		subs, err = st.List(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list subscriptions", err)
	}

	views := make([]subscriptionView, len(subs))
	for i, sub := range subs {
		views[i] = newSubscriptionView(sub, now)
	}

	if opts.Format == "json" {
		return newPrinter(cmd, opts.RootOptions).ok(views)
	}

	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions found")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tLEASE EXPIRES\tTOPIC\tHUB")
	for _, v := range views {
		expires := "-"
		if !v.LeaseExpires.IsZero() {
			expires = v.LeaseExpires.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.ID, v.State, expires, v.Topic, v.Hub)
	}
	return tw.Flush()
}
