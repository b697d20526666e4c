package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/plateiq/plateiq/internal/knowledge"
)

var (
	flagIngestTitle  string
	flagIngestType   string
	flagIngestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a knowledge document from a file or stdin",
	Long: `Ingest reads a document, splits it into overlapping chunks, embeds
them when a provider is configured, and stores the result transactionally.
Re-ingesting a title fully replaces the previous chunk set.

Document types: rule, food, portion, conversion, support.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.store.Upsert(ctx, knowledge.UpsertParams{
			Title:      flagIngestTitle,
			SourceType: flagIngestSource,
			DocType:    flagIngestType,
			Text:       string(text),
		})
		if err != nil {
			return fmt.Errorf("ingesting %q: %w", flagIngestTitle, err)
		}

		fmt.Printf("ingested %q: document %s, %d chunks\n", flagIngestTitle, res.DocumentID, res.ChunkCount)
		return nil
	},
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	text, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return text, nil
}

func init() {
	ingestCmd.Flags().StringVarP(&flagIngestTitle, "title", "t", "", "document title (identity key)")
	ingestCmd.Flags().StringVar(&flagIngestType, "type", knowledge.DocTypeFood, "document type")
	ingestCmd.Flags().StringVar(&flagIngestSource, "source", "manual", "source type label")
	_ = ingestCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(ingestCmd)
}
