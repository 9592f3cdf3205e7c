package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/patrag/patrag/internal/store"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index <chunks.jsonl>",
		Short: "Build the index from a chunk file",
		Long: `Reads a JSONL file of chunks (one JSON object per line: id, text,
section, page, metadata) and builds the sparse, dense and chunk-store
artifacts. A build over an unchanged corpus is a no-op unless --force
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			chunks, err := readChunkFile(args[0])
			if err != nil {
				return err
			}

			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Rebuild(cmd.Context(), chunks, force); err != nil {
				return err
			}

			status, err := svc.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks (model %s, %d dimensions)\n",
				status.ChunkCount, status.ModelName, status.Dimensions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Rebuild even if the corpus is unchanged")
	return cmd
}

// readChunkFile parses a JSONL chunk file.
func readChunkFile(path string) ([]*store.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer f.Close()

	var chunks []*store.Chunk
	reader := bufio.NewReader(f)
	line := 0
	for {
		line++
		data, err := reader.ReadBytes('\n')
		if len(data) > 0 {
			var c store.Chunk
			if jsonErr := json.Unmarshal(data, &c); jsonErr != nil {
				return nil, fmt.Errorf("chunk file line %d: %w", line, jsonErr)
			}
			chunks = append(chunks, &c)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read chunk file: %w", err)
		}
	}
	return chunks, nil
}
