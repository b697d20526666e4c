package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plateiq/plateiq/internal/rag"
)

var flagRetrievePreset string

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve knowledge chunks for a query",
	Long: `Retrieve ranks stored chunks against the query, using vector
similarity when an embedding provider is configured and text search
otherwise. Presets: meal, swap.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, err := presetByName(flagRetrievePreset)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args, " ")
		results, err := a.retriever.RetrievePreset(ctx, query, preset)
		if err != nil {
			return fmt.Errorf("retrieving: %w", err)
		}

		fmt.Printf("retrieval: %s (%d chunks)\n", rag.Classify(results), len(results))
		for i, rc := range results {
			fmt.Printf("[%d] %.2f %s (%s) chunk %d\n    %s\n",
				i+1, rc.Similarity, rc.DocTitle, rc.DocType, rc.ChunkIndex, firstLine(rc.Content))
		}
		return nil
	},
}

func presetByName(name string) (rag.Preset, error) {
	switch name {
	case "meal":
		return rag.MealEstimationPreset, nil
	case "swap":
		return rag.SwapSuggestionPreset, nil
	default:
		return rag.Preset{}, fmt.Errorf("unknown preset %q (expected meal or swap)", name)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	retrieveCmd.Flags().StringVar(&flagRetrievePreset, "preset", "meal", "retrieval preset (meal or swap)")
	rootCmd.AddCommand(retrieveCmd)
}
