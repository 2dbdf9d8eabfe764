package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/versegest/internal/retrieval"
	"github.com/dgallion1/versegest/internal/store"
	"github.com/dgallion1/versegest/internal/verserange"
)

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "Load and query seed relationships between references",
	Long: `Seeds are curated contradiction and harmony pairs between two references,
plus commentary excerpts anchored on one reference. Each side is stored
with its own verse range.`,
}

var seedsLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Load pairs and commentary from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeedsLoad,
}

var seedsQueryCmd = &cobra.Command{
	Use:   "query <reference>",
	Short: "List seeds touching a reference",
	Long: `Query lists pairs whose either side touches the reference, and commentary
anchored on it. --policy range trusts the stored range overlap; the default
exact policy also requires the seed reference to share a verse with the
query.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeedsQuery,
}

func init() {
	seedsQueryCmd.Flags().String("kind", "", "contradiction or harmony (default both)")
	seedsQueryCmd.Flags().String("policy", "exact", "exact or range")
	addFormatFlag(seedsQueryCmd)

	seedsCmd.AddCommand(seedsLoadCmd, seedsQueryCmd)
	rootCmd.AddCommand(seedsCmd)
}

func runSeedsLoad(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pairs, notes, err := retrieval.LoadSeeds(cmd.Context(), f, a.resolver, a.store)
	if err != nil {
		return fmt.Errorf("%s: %w (loaded %d pairs, %d commentary before the error)", args[0], err, pairs, notes)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d pair(s), %d commentary excerpt(s)\n", pairs, notes)
	return nil
}

func runSeedsQuery(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	switch store.SeedKind(kind) {
	case "", store.Contradiction, store.Harmony:
	default:
		return fmt.Errorf("--kind must be contradiction or harmony, got %q", kind)
	}
	policy := verserange.VerifyExact
	switch p, _ := cmd.Flags().GetString("policy"); p {
	case "exact":
	case "range":
		policy = verserange.TrustRange
	default:
		return fmt.Errorf("--policy must be exact or range, got %q", p)
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

	pairs, err := eng.PairSeedsFor(cmd.Context(), args[0], store.SeedKind(kind), policy)
	if err != nil {
		return err
	}
	notes, err := eng.CommentariesFor(cmd.Context(), args[0], policy)
	if err != nil {
		return err
	}
	out := struct {
		Pairs      []store.PairSeed       `json:"pairs" yaml:"pairs"`
		Commentary []store.CommentarySeed `json:"commentary" yaml:"commentary"`
	}{pairs, notes}

	return emit(cmd, out, func(w io.Writer) error {
		for _, p := range pairs {
			fmt.Fprintf(w, "%-13s %s <> %s  %s\n", p.Kind, p.A, p.B, truncate(p.Summary, 60))
		}
		for _, c := range notes {
			fmt.Fprintf(w, "%-13s %s  %s\n", "commentary", c.Ref, truncate(c.Excerpt, 70))
		}
		if len(pairs)+len(notes) == 0 {
			fmt.Fprintln(w, "No seeds found.")
		}
		return nil
	})
}
