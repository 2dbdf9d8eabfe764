package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Recompute missing verse ranges for stored passages",
	Long: `Backfill walks passages that have no verse range and recomputes it from
the stored verse ids, or failing that from the primary, detected, hinted
and unmatched references kept in passage metadata. Running it again is a
no-op.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().Int("batch", 200, "passages read per batch")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	batch, _ := cmd.Flags().GetInt("batch")
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.indexer.BackfillMissing(cmd.Context(), a.store, batch, log.With("component", "backfill"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "updated %d passage(s)\n", n)
	return nil
}
