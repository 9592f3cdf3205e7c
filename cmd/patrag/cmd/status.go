package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index state and manifest summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			status, err := svc.Status()
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			if !status.Built {
				fmt.Fprintln(cmd.OutOrStdout(), "index: not built (run 'patrag index')")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index: %s\nchunks: %d\nmodel: %s (%d dimensions)\nbuilt: %s\n",
				status.State, status.ChunkCount, status.ModelName, status.Dimensions,
				status.BuiltAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}
