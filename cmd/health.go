package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check storage readiness",
	Long: `Health verifies the pgvector extension, the backing tables, and
reports document and chunk counts. Exits non-zero when the schema is not
ready.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.store.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		fmt.Printf("vector extension: %v\n", h.VectorExtension)
		for _, table := range []string{"documents", "chunks", "audit_log"} {
			fmt.Printf("table %-10s %v\n", table+":", h.Tables[table])
		}
		fmt.Printf("documents: %d\nchunks: %d\n", h.Documents, h.Chunks)

		if !h.Ready() {
			return fmt.Errorf("storage not ready, run: plateiq migrate")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
