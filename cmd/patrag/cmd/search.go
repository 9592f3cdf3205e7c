package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrag/patrag/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		topK       int
		section    string
		expansion  string
		noRerank   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid query against the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			mode, err := search.ParseExpansionMode(expansion)
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

			if topK <= 0 {
				topK = cfg.Search.FinalTopK
			}
			results, err := svc.Engine().Search(cmd.Context(), args[0], search.Options{
				TopK:          topK,
				SectionPrefix: section,
				Expansion:     mode,
				SkipRerank:    noRerank,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%s] score=%.4f\n    %s\n",
					r.Rank, r.Section, r.Score, r.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringVar(&section, "section", "", "Restrict to sections with this prefix")
	cmd.Flags().StringVar(&expansion, "expansion", "", "Expansion mode: none, single or multiple")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "Skip cross-encoder reranking")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}
