package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/retrieval"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Hybrid search over ingested passages",
	Long: `Search fuses vector similarity and lexical relevance, then highlights the
query terms in each snippet. --ref restricts results to passages citing the
given verses, e.g. --ref "Rom 8:28-30". With --ref and no query, passages in
the scope are listed.

With embed.backend and retrieval.lexical both set to none, search falls back
to a token-overlap scan.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntP("k", "k", 0, "number of results (default retrieval.k)")
	searchCmd.Flags().String("ref", "", "restrict to passages citing these verses")
	searchCmd.Flags().String("collection", "", "filter by collection")
	searchCmd.Flags().String("author", "", "filter by author")
	searchCmd.Flags().String("source-type", "", "filter by source type: file, url, transcript or markup")
	searchCmd.Flags().String("document", "", "filter by document id")
	searchCmd.Flags().StringSlice("highlight", nil, "terms to mark instead of the query words")
	addFormatFlag(searchCmd)
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := retrieval.Query{Text: strings.Join(args, " ")}
	q.K, _ = cmd.Flags().GetInt("k")
	q.Highlight, _ = cmd.Flags().GetStringSlice("highlight")
	q.Filters.Reference, _ = cmd.Flags().GetString("ref")
	q.Filters.Collection, _ = cmd.Flags().GetString("collection")
	q.Filters.Author, _ = cmd.Flags().GetString("author")
	q.Filters.SourceType, _ = cmd.Flags().GetString("source-type")
	q.Filters.DocumentID, _ = cmd.Flags().GetString("document")
	if strings.TrimSpace(q.Text) == "" && q.Filters.Reference == "" {
		return fmt.Errorf("query or --ref required")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	eng, err := a.engine()
	if err != nil {
		return err
	}

	results, err := eng.Search(cmd.Context(), q)
	if err != nil {
		return err
	}
	return emit(cmd, results, func(w io.Writer) error {
		if len(results) == 0 {
			fmt.Fprintln(w, "No results found.")
			return nil
		}
		for i, r := range results {
			ref := r.Primary
			if ref == "" {
				ref = "-"
			}
			fmt.Fprintf(w, "%2d. %.4f  %s  %s#%d\n", i+1, r.Score, ref, r.DocumentID, r.Index)
			fmt.Fprintf(w, "    %s\n", r.Highlighted)
			for _, n := range r.Annotations {
				fmt.Fprintf(w, "    note: %s\n", truncate(n.Body, 100))
			}
		}
		fmt.Fprintf(w, "\n%d results\n", len(results))
		return nil
	})
}
