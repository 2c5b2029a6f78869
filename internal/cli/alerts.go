package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newAlertsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect stored alerts",
	}
	cmd.AddCommand(newAlertsListCmd(opts))
	cmd.AddCommand(newAlertsReadCmd(opts))
	cmd.AddCommand(newAlertsClearCmd(opts))
	return cmd
}

func newAlertsListCmd(opts *rootOptions) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			list := rt.svc.GetAlerts(cmd.Context(), unread)
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSEVERITY\tREAD\tID\tMESSAGE")
			for _, a := range list {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
					a.Timestamp.Local().Format(time.DateTime), a.Severity, a.Read, a.ID, a.Message)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread alerts")
	return cmd
}

func newAlertsReadCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "read [alert-id]",
		Short: "Mark an alert, or all alerts, as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("an alert id or --all is required")
			}
			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			if all {
				rt.svc.MarkAllAsRead(cmd.Context())
				return nil
			}
			rt.svc.MarkAsRead(cmd.Context(), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Mark every alert as read")
	return cmd
}

func newAlertsClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.svc.ClearAlerts(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Alerts cleared.")
			return nil
		},
	}
}
