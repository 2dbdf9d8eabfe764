package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/store"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List ingested documents",
	RunE:  runDocs,
}

func init() {
	addFormatFlag(docsCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.store.Documents(cmd.Context())
	if err != nil {
		return err
	}
	_, passages, err := a.store.Counts(cmd.Context())
	if err != nil {
		return err
	}
	out := struct {
		Documents []store.Document `json:"documents" yaml:"documents"`
		Passages  int              `json:"passages" yaml:"passages"`
	}{docs, passages}

	return emit(cmd, out, func(w io.Writer) error {
		for _, d := range docs {
			fmt.Fprintf(w, "%s  %-10s  %-40s  %s\n", d.ID, d.SourceType, truncate(d.Title, 40), d.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(w, "\n%d documents, %d passages\n", len(docs), passages)
		return nil
	})
}
