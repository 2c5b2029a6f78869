package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// tests can run commands in isolation.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "smartalerts",
		Short: "Threshold alerting over arbitrary records",
		Long: `smartalerts evaluates user-defined thresholds against JSON records,
stores the resulting alerts and fans them out to browser, email and SMS
channels.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML or JSON config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newServeCmd(opts, version))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newThresholdsCmd(opts))
	root.AddCommand(newAlertsCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd(version))
	return root
}

// Execute runs the root command
func Execute(version string) error {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "smartalerts %s\n", version)
		},
	}
}
