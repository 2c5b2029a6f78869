package cli

import (
	"fmt"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smartalerts/internal/model"
)

func newThresholdsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Manage alert thresholds",
	}
	cmd.AddCommand(newThresholdsListCmd(opts))
	cmd.AddCommand(newThresholdsAddCmd(opts))
	cmd.AddCommand(newThresholdsDeleteCmd(opts))
	return cmd
}

func newThresholdsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			list := rt.svc.GetThresholds(cmd.Context())
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No thresholds defined.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tFIELD\tOPERATOR\tVALUE\tSEVERITY\tENABLED")
			for _, th := range list {
				value := fmt.Sprint(th.Value)
				if th.Operator == model.OpBetween {
					value = fmt.Sprintf("%v..%v", th.Value, th.MaxValue)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
					th.ID, th.Name, th.Field, th.Operator, value, th.Severity, th.Enabled)
			}
			return tw.Flush()
		},
	}
}

func newThresholdsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		spec     model.ThresholdSpec
		operator string
		severity string
		value    string
		maxValue string
		disabled bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec.Operator = model.Operator(operator)
			spec.Severity = model.Severity(severity)
			spec.Value = parseOperand(value)
			if cmd.Flags().Changed("max") {
				spec.MaxValue = parseOperand(maxValue)
			}
			spec.Enabled = !disabled

			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			th, err := rt.svc.AddThreshold(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added threshold %s (%s)\n", th.ID, th.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&spec.Field, "field", "", "Dot path of the record field")
	cmd.Flags().StringVar(&operator, "operator", "greaterThan", "greaterThan, lessThan, equals, notEquals or between")
	cmd.Flags().StringVar(&value, "value", "", "Comparison value")
	cmd.Flags().StringVar(&maxValue, "max", "", "Upper bound for between")
	cmd.Flags().StringVar(&severity, "severity", "medium", "low, medium, high or critical")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the threshold disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newThresholdsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [threshold-id]",
		Short: "Delete a threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.svc.DeleteThreshold(cmd.Context(), args[0])
		},
	}
}

// parseOperand keeps numeric input numeric so equals compares against
// JSON numbers. NaN and infinities stay strings since JSON cannot hold them.
func parseOperand(s string) any {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return f
}
