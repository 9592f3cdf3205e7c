package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSectionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "section <label>",
		Short: "Look up chunks by exact section label, bypassing ranking",
		Args:  cobra.ExactArgs(1),
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

			if err := svc.Load(cmd.Context()); err != nil {
				return err
			}

			chunks, err := svc.Engine().Section(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(chunks)
			}
			if len(chunks) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no chunks in section %s\n", args[0])
				return nil
			}
			for _, c := range chunks {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", c.ID, c.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}
