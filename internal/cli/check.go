package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"smartalerts/internal/ingest"
	"smartalerts/internal/model"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate records once against the stored thresholds",
		Long: `Reads a JSON object or array of records, evaluates every enabled
threshold against them and prints the created alerts as JSON. Alerts are
stored and notifications sent as in normal operation.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			records, err := ingest.DecodeRecords(data)
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			created, err := rt.svc.CheckData(cmd.Context(), records)
			if err != nil {
				return err
			}
			rt.svc.WaitForDeliveries()
			if created == nil {
				created = []model.Alert{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(created)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Records file, - for stdin")
	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return data, nil
}
