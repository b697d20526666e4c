package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plateiq/plateiq/internal/estimate"
)

var (
	flagEstimatePhoto   bool
	flagEstimatePortion string
	flagEstimateClarity int
	flagEstimateScene   string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate <meal description>",
	Short: "Estimate calories and macros for a meal",
	Long: `Estimate retrieves supporting evidence from the knowledge base,
asks the configured model for a structured estimate, validates it strictly,
and falls back to a deterministic wide-range estimate when the model cannot
produce a valid one.

With --photo the arguments are treated as recognized food items rather than
a free-text description; --clarity below 40 forces ranged output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var res *estimate.Result
		if flagEstimatePhoto {
			res, err = a.orchestrator.EstimatePhoto(ctx, estimate.PhotoRequest{
				Items:            args,
				PortionHint:      flagEstimatePortion,
				Clarity:          flagEstimateClarity,
				SceneDescription: flagEstimateScene,
				LocalTime:        time.Now(),
			})
		} else {
			res, err = a.orchestrator.EstimateText(ctx, estimate.TextRequest{
				Description: strings.Join(args, " "),
				LocalTime:   time.Now(),
			})
		}
		if err != nil {
			if errors.Is(err, estimate.ErrNoProvider) {
				return fmt.Errorf("no generation provider configured, set GEMINI_API_KEY")
			}
			return err
		}

		out, err := json.MarshalIndent(res.Estimate, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding estimate: %w", err)
		}
		fmt.Println(string(out))

		fmt.Fprintf(os.Stderr, "retrieval: %s, %d chunks; attempts: %d",
			res.Strength, len(res.Evidence), res.Attempts)
		if res.Fallback {
			fmt.Fprint(os.Stderr, " (fallback estimate)")
		}
		fmt.Fprintln(os.Stderr)
		return nil
	},
}

func init() {
	estimateCmd.Flags().BoolVar(&flagEstimatePhoto, "photo", false, "treat arguments as recognized photo items")
	estimateCmd.Flags().StringVar(&flagEstimatePortion, "portion", "", "portion hint for photo mode")
	estimateCmd.Flags().IntVar(&flagEstimateClarity, "clarity", 100, "photo recognition clarity 0-100")
	estimateCmd.Flags().StringVar(&flagEstimateScene, "scene", "", "scene description for photo mode")
	rootCmd.AddCommand(estimateCmd)
}
