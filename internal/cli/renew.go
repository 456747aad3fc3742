package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRenewCommand creates the renew command.
func NewRenewCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Run one lease renewal pass",
		Long: `Renew every active subscription whose lease ends within
renew_window, and re-request subscriptions still waiting for hub
verification.

Example:
  pushsub renew --config ./pushsub.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRenew(rootOpts, cmd)
		},
	}

	return cmd
}

func runRenew(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts, true)
	if err != nil {
		return err
	}
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.scheduler().RunOnce(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "renewal pass failed", err)
	}

	if opts.Format == "json" {
		if err := newPrinter(cmd, opts).ok(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Renewal pass: %d due, %d renewed, %d failed, %d deferred\n",
			report.Due, report.Renewed, report.Failed, report.Deferred)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d renewal(s) failed", report.Failed))
	}
	return nil
}
